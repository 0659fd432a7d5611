package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration for the coordinator.
type Config struct {
	Version     string           `yaml:"version" json:"version"`
	Logging     LoggingConfig    `yaml:"logging" json:"logging"`
	Coordinator CoordinatorConfig `yaml:"coordinator" json:"coordinator"`
	Repository  RepositoryConfig `yaml:"repository" json:"repository"`
	Registry    RegistryConfig   `yaml:"registry" json:"registry"`
	Bus         BusConfig        `yaml:"bus" json:"bus"`
	Runner      RunnerConfig     `yaml:"runner" json:"runner"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// CoordinatorConfig controls the pacing of the periodic loops and the
// per-call runner budget.
type CoordinatorConfig struct {
	PollInterval      time.Duration `yaml:"pollInterval" json:"pollInterval"`
	PropagateInterval time.Duration `yaml:"propagateInterval" json:"propagateInterval"`
	AckListenInterval time.Duration `yaml:"ackListenInterval" json:"ackListenInterval"`
	JobUpdateTimeout  time.Duration `yaml:"jobUpdateTimeout" json:"jobUpdateTimeout"`
}

// RepositoryConfig selects and configures the persistence backend.
type RepositoryConfig struct {
	Backend  string         `yaml:"backend" json:"backend"` // "memory" or "dynamodb"
	DynamoDB DynamoDBConfig `yaml:"dynamodb" json:"dynamodb"`
}

// DynamoDBConfig holds connection details for the production repository.
type DynamoDBConfig struct {
	Region           string `yaml:"region" json:"region"`
	Endpoint         string `yaml:"endpoint" json:"endpoint"` // non-empty for local/dev endpoints
	JobsTable        string `yaml:"jobsTable" json:"jobsTable"`
	FeatureSetsTable string `yaml:"featureSetsTable" json:"featureSetsTable"`
	StoresTable      string `yaml:"storesTable" json:"storesTable"`
	SourcesTable     string `yaml:"sourcesTable" json:"sourcesTable"`
}

// RegistryConfig configures the HTTP client for the spec-registry service.
type RegistryConfig struct {
	BaseURL      string        `yaml:"baseUrl" json:"baseUrl"`
	CacheTTL     time.Duration `yaml:"cacheTtl" json:"cacheTtl"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
	SyncInterval time.Duration `yaml:"syncInterval" json:"syncInterval"`
}

// BusConfig configures the message bus used for spec publication and ack
// consumption.
type BusConfig struct {
	Brokers       []string `yaml:"brokers" json:"brokers"`
	SpecTopic     string   `yaml:"specTopic" json:"specTopic"`
	AckTopic      string   `yaml:"ackTopic" json:"ackTopic"`
	ConsumerGroup string   `yaml:"consumerGroup" json:"consumerGroup"`
}

// RunnerConfig selects and configures the runner backend jobs execute on:
// "grpc" dials an external stream-engine backend, "test" uses the in-process
// fake for local/dev runs.
type RunnerConfig struct {
	Type     string         `yaml:"type" json:"type"`
	Endpoint string         `yaml:"endpoint" json:"endpoint"`
	Timeout  time.Duration  `yaml:"timeout" json:"timeout"`
	Security SecurityConfig `yaml:"security" json:"security"`
}

// SecurityConfig holds mTLS material as embedded PEM content, used when
// dialing a runner backend.
type SecurityConfig struct {
	ClientCert string `yaml:"clientCert" json:"clientCert"`
	ClientKey  string `yaml:"clientKey" json:"clientKey"`
	CACert     string `yaml:"caCert" json:"caCert"`
	ServerName string `yaml:"serverName" json:"serverName"`
}

// DefaultConfig provides default configuration values.
var DefaultConfig = Config{
	Version: "1.0",
	Logging: LoggingConfig{
		Level:  "INFO",
		Format: "text",
		Output: "stdout",
	},
	Coordinator: CoordinatorConfig{
		PollInterval:      10 * time.Second,
		PropagateInterval: 5 * time.Second,
		AckListenInterval: 2 * time.Second,
		JobUpdateTimeout:  5 * time.Second,
	},
	Repository: RepositoryConfig{
		Backend: "memory",
		DynamoDB: DynamoDBConfig{
			Region:           "us-east-1",
			JobsTable:        "feast-jobs",
			FeatureSetsTable: "feast-feature-sets",
			StoresTable:      "feast-stores",
			SourcesTable:     "feast-sources",
		},
	},
	Registry: RegistryConfig{
		BaseURL:      "http://localhost:8080",
		CacheTTL:     30 * time.Second,
		Timeout:      5 * time.Second,
		SyncInterval: 10 * time.Second,
	},
	Bus: BusConfig{
		Brokers:       []string{"localhost:9092"},
		SpecTopic:     "feature-set-specs",
		AckTopic:      "feature-set-acks",
		ConsumerGroup: "feast-coordinator",
	},
	Runner: RunnerConfig{
		Type:     "grpc",
		Endpoint: "localhost:50051",
		Timeout:  5 * time.Second,
	},
}

// GetClientTLSConfig builds a client-side mTLS configuration from embedded
// PEM material, for dialing a runner backend.
func (s SecurityConfig) GetClientTLSConfig() (*tls.Config, error) {
	if s.ClientCert == "" || s.ClientKey == "" || s.CACert == "" {
		return nil, fmt.Errorf("runner client certificates are not configured")
	}

	clientCert, err := tls.X509KeyPair([]byte(s.ClientCert), []byte(s.ClientKey))
	if err != nil {
		return nil, fmt.Errorf("failed to load runner client certificate: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if ok := caCertPool.AppendCertsFromPEM([]byte(s.CACert)); !ok {
		return nil, fmt.Errorf("failed to parse runner CA certificate")
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{clientCert},
		RootCAs:      caCertPool,
		MinVersion:   tls.VersionTLS13,
		ServerName:   s.ServerName,
	}

	return tlsConfig, nil
}

// LoadConfig loads the coordinator configuration from file and environment
// variables, in order of precedence:
//  1. Path specified in FEAST_CONFIG_PATH environment variable
//  2. /etc/feast/coordinator-config.yml
//  3. ./config/coordinator-config.yml
//  4. ./coordinator-config.yml
//
// Applies environment variable overrides, then validates the final
// configuration before returning.
// Returns (config, configPath, error) - configPath indicates source of configuration.
func LoadConfig() (*Config, string, error) {
	config := DefaultConfig

	path, err := loadFromFile(&config)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config file: %w", err)
	}

	if val := os.Getenv("FEAST_LOG_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("FEAST_LOG_FORMAT"); val != "" {
		config.Logging.Format = val
	}
	if val := os.Getenv("FEAST_REPOSITORY_BACKEND"); val != "" {
		config.Repository.Backend = val
	}
	if val := os.Getenv("FEAST_REGISTRY_BASE_URL"); val != "" {
		config.Registry.BaseURL = val
	}
	if val := os.Getenv("FEAST_RUNNER_ENDPOINT"); val != "" {
		config.Runner.Endpoint = val
	}
	if val := os.Getenv("FEAST_BUS_BROKERS"); val != "" {
		config.Bus.Brokers = splitCommaList(val)
	}

	if e := config.Validate(); e != nil {
		return nil, "", fmt.Errorf("configuration validation failed: %w", e)
	}

	return &config, path, nil
}

func splitCommaList(val string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(val); i++ {
		if i == len(val) || val[i] == ',' {
			if i > start {
				out = append(out, val[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// loadFromFile loads configuration from the first available YAML file.
// Returns the path of the loaded file or "built-in defaults" if no file found.
// Does not return error if no file is found - uses defaults instead.
func loadFromFile(config *Config) (string, error) {
	configPaths := []string{
		os.Getenv("FEAST_CONFIG_PATH"),
		"/etc/feast/coordinator-config.yml",
		"./config/coordinator-config.yml",
		"./coordinator-config.yml",
	}

	for _, path := range configPaths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return "", fmt.Errorf("failed to parse config file %s: %w", path, err)
		}

		return path, nil
	}

	return "built-in defaults (no config file found)", nil
}

// Validate performs comprehensive validation of the configuration.
// Returns error describing the first validation failure found.
func (c *Config) Validate() error {
	if c.Repository.Backend != "memory" && c.Repository.Backend != "dynamodb" {
		return fmt.Errorf("invalid repository backend: %s", c.Repository.Backend)
	}

	if c.Coordinator.PollInterval <= 0 {
		return fmt.Errorf("invalid poll interval: %s", c.Coordinator.PollInterval)
	}
	if c.Coordinator.PropagateInterval <= 0 {
		return fmt.Errorf("invalid propagate interval: %s", c.Coordinator.PropagateInterval)
	}
	if c.Coordinator.AckListenInterval <= 0 {
		return fmt.Errorf("invalid ack-listen interval: %s", c.Coordinator.AckListenInterval)
	}
	if c.Coordinator.JobUpdateTimeout <= 0 {
		return fmt.Errorf("invalid job update timeout: %s", c.Coordinator.JobUpdateTimeout)
	}

	if c.Repository.Backend == "dynamodb" {
		if c.Repository.DynamoDB.JobsTable == "" {
			return fmt.Errorf("dynamodb jobs table name is required")
		}
		if c.Repository.DynamoDB.FeatureSetsTable == "" {
			return fmt.Errorf("dynamodb feature sets table name is required")
		}
		if c.Repository.DynamoDB.StoresTable == "" {
			return fmt.Errorf("dynamodb stores table name is required")
		}
		if c.Repository.DynamoDB.SourcesTable == "" {
			return fmt.Errorf("dynamodb sources table name is required")
		}
	}

	if c.Registry.SyncInterval <= 0 {
		return fmt.Errorf("invalid registry sync interval: %s", c.Registry.SyncInterval)
	}

	if len(c.Bus.Brokers) == 0 {
		return fmt.Errorf("at least one message bus broker is required")
	}
	if c.Bus.SpecTopic == "" {
		return fmt.Errorf("bus spec topic is required")
	}
	if c.Bus.AckTopic == "" {
		return fmt.Errorf("bus ack topic is required")
	}

	if c.Runner.Type != "grpc" && c.Runner.Type != "test" {
		return fmt.Errorf("invalid runner type: %s", c.Runner.Type)
	}
	if c.Runner.Type == "grpc" && c.Runner.Endpoint == "" {
		return fmt.Errorf("runner endpoint is required")
	}

	validLevels := map[string]bool{
		"DEBUG": true, "INFO": true, "WARN": true, "ERROR": true,
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}
