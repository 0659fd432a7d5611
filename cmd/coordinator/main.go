package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/egabancho/feast/internal/coordinator/bus"
	kafkabus "github.com/egabancho/feast/internal/coordinator/bus/kafka"
	"github.com/egabancho/feast/internal/coordinator/domain"
	"github.com/egabancho/feast/internal/coordinator/loop"
	"github.com/egabancho/feast/internal/coordinator/propagate"
	"github.com/egabancho/feast/internal/coordinator/reconcile"
	"github.com/egabancho/feast/internal/coordinator/registry"
	"github.com/egabancho/feast/internal/coordinator/registry/httpclient"
	"github.com/egabancho/feast/internal/coordinator/repository"
	dynamorepo "github.com/egabancho/feast/internal/coordinator/repository/dynamodb"
	"github.com/egabancho/feast/internal/coordinator/repository/memstore"
	"github.com/egabancho/feast/internal/coordinator/runner"
	"github.com/egabancho/feast/internal/coordinator/runner/fake"
	"github.com/egabancho/feast/internal/coordinator/runner/grpcrunner"
	"github.com/egabancho/feast/pkg/config"
	"github.com/egabancho/feast/pkg/logger"
	"github.com/egabancho/feast/pkg/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "coordinator",
		Short: "Feature-ingestion job coordinator",
		Long: "Reconciles ingestion jobs against the runner backend and propagates\n" +
			"feature-set schema updates to running jobs over the message bus.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				if err := os.Setenv("FEAST_CONFIG_PATH", configPath); err != nil {
					return err
				}
			}
			return run()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to coordinator-config.yml")
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.GetBuildInfo()
			fmt.Printf("coordinator %s\n", version.GetShortVersion())
			fmt.Printf("  build date: %s\n", info.BuildDate)
			fmt.Printf("  go:         %s (%s/%s)\n", info.GoVersion, info.Platform, info.Architecture)
		},
	}
}

func run() error {
	cfg, path, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log := newLogger(cfg.Logging)
	mainLog := log.WithField("component", "main")
	mainLog.Info("configuration loaded", "path", path, "repository", cfg.Repository.Backend, "runner", cfg.Runner.Type)

	ctx := context.Background()

	repo, err := newRepository(ctx, cfg)
	if err != nil {
		return err
	}

	jobManager, closeRunner, err := newJobManager(cfg.Runner)
	if err != nil {
		return err
	}
	defer closeRunner()

	messageBus := kafkabus.New(kafkabus.Config{
		Brokers:       cfg.Bus.Brokers,
		SpecTopic:     cfg.Bus.SpecTopic,
		AckTopic:      cfg.Bus.AckTopic,
		ConsumerGroup: cfg.Bus.ConsumerGroup,
	})
	defer closeQuietly(messageBus, mainLog)

	regClient := httpclient.New(cfg.Registry.BaseURL, cfg.Registry.CacheTTL)

	reconciler := reconcile.New(repo, jobManager, log.WithField("component", "reconciler"),
		reconcile.WithJobUpdateTimeout(cfg.Coordinator.JobUpdateTimeout))
	propagator := propagate.New(repo, messageBus, log.WithField("component", "propagator"))
	syncer := registry.NewSyncer(regClient, repo, log.WithField("component", "registry-sync"))

	driver := loop.New(reconciler, propagator, syncer, messageBus, loop.Intervals{
		Sync:      cfg.Registry.SyncInterval,
		Poll:      cfg.Coordinator.PollInterval,
		Propagate: cfg.Coordinator.PropagateInterval,
		AckListen: cfg.Coordinator.AckListenInterval,
	}, log.WithField("component", "loop"))

	if err := driver.Start(); err != nil {
		return fmt.Errorf("start coordinator loops: %w", err)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	sig := <-signals
	mainLog.Info("shutting down", "signal", sig.String())

	return driver.Stop()
}

func newLogger(cfg config.LoggingConfig) *logger.Logger {
	level, err := logger.ParseLevel(cfg.Level)
	if err != nil {
		level = logger.INFO
	}

	output := os.Stdout
	if cfg.Output != "" && cfg.Output != "stdout" {
		if f, ferr := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); ferr == nil {
			output = f
		}
	}

	return logger.NewWithConfig(logger.Config{Level: level, Output: output, Format: cfg.Format})
}

func newRepository(ctx context.Context, cfg *config.Config) (repository.Repository, error) {
	switch cfg.Repository.Backend {
	case "dynamodb":
		repo, err := dynamorepo.New(ctx, cfg.Repository.DynamoDB)
		if err != nil {
			return nil, fmt.Errorf("connect dynamodb repository: %w", err)
		}
		return repo, nil
	default:
		return memstore.New(), nil
	}
}

func newJobManager(cfg config.RunnerConfig) (runner.JobManager, func(), error) {
	if cfg.Type == "test" {
		return fake.New(), func() {}, nil
	}

	grpcRunner, err := grpcrunner.Dial(domain.RunnerStreamEngine, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("dial runner backend: %w", err)
	}
	return grpcRunner, func() { _ = grpcRunner.Close() }, nil
}

func closeQuietly(b bus.MessageBus, log *logger.Logger) {
	if err := b.Close(); err != nil {
		log.Warn("message bus close failed", "error", err)
	}
}
