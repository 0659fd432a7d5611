// Package httpclient implements registry.SpecRegistry against a plain HTTP
// JSON API, caching responses for a configurable TTL so the sync loop does
// not hammer the registry service.
package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/egabancho/feast/internal/coordinator/domain"
	"github.com/egabancho/feast/internal/coordinator/registry"
	ferrors "github.com/egabancho/feast/pkg/errors"
)

// DefaultTimeout is the HTTP timeout applied to every request.
const DefaultTimeout = 5 * time.Second

// cachedStores / cachedFeatureSets hold a fetched response and the time it
// was fetched, so TTL expiry can be checked without a background goroutine.
type cachedStores struct {
	stores    []domain.Store
	fetchedAt time.Time
}

type cachedFeatureSets struct {
	featureSets []domain.FeatureSet
	fetchedAt   time.Time
}

// Client is an HTTP-backed registry.SpecRegistry.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cacheTTL   time.Duration

	mu               sync.RWMutex
	storesCache      *cachedStores
	featureSetsCache map[string]*cachedFeatureSets // keyed by filter
}

var _ registry.SpecRegistry = (*Client)(nil)

// New builds a Client against baseURL (e.g. "http://feast-registry:8080"),
// caching responses for ttl. A ttl of zero disables caching.
func New(baseURL string, ttl time.Duration) *Client {
	return &Client{
		httpClient:       &http.Client{Timeout: DefaultTimeout},
		baseURL:          baseURL,
		cacheTTL:         ttl,
		featureSetsCache: make(map[string]*cachedFeatureSets),
	}
}

// storesWire / featureSetWire mirror the registry service's JSON schema.
type storesWire struct {
	Stores []storeWire `json:"stores"`
}

type storeWire struct {
	Name          string              `json:"name"`
	Config        map[string]string   `json:"config"`
	Subscriptions []subscriptionWire  `json:"subscriptions"`
}

type subscriptionWire struct {
	ProjectGlob string `json:"project_glob"`
	NameGlob    string `json:"name_glob"`
}

type featureSetsWire struct {
	FeatureSets []featureSetSpecWire `json:"feature_sets"`
}

type featureSetSpecWire struct {
	Project  string            `json:"project"`
	Name     string            `json:"name"`
	Version  int64             `json:"version"`
	Entities []string          `json:"entities"`
	Features []featureSpecWire `json:"features"`
	Source   sourceWire        `json:"source"`
}

type featureSpecWire struct {
	Name      string `json:"name"`
	ValueType string `json:"value_type"`
}

type sourceWire struct {
	Type   string            `json:"type"`
	Config map[string]string `json:"config"`
}

func (c *Client) ListStores(ctx context.Context) ([]domain.Store, error) {
	c.mu.RLock()
	if c.storesCache != nil && c.cacheTTL > 0 && time.Since(c.storesCache.fetchedAt) < c.cacheTTL {
		stores := c.storesCache.stores
		c.mu.RUnlock()
		return stores, nil
	}
	c.mu.RUnlock()

	var wire storesWire
	if err := c.get(ctx, "/stores", nil, &wire); err != nil {
		return nil, ferrors.WrapRegistryError("listStores", err)
	}

	stores := make([]domain.Store, 0, len(wire.Stores))
	for _, s := range wire.Stores {
		subs := make([]domain.Subscription, 0, len(s.Subscriptions))
		for _, sub := range s.Subscriptions {
			subs = append(subs, domain.Subscription{ProjectGlob: sub.ProjectGlob, NameGlob: sub.NameGlob})
		}
		stores = append(stores, domain.Store{Name: s.Name, Config: s.Config, Subscriptions: subs})
	}

	c.mu.Lock()
	c.storesCache = &cachedStores{stores: stores, fetchedAt: now()}
	c.mu.Unlock()

	return stores, nil
}

func (c *Client) ListFeatureSets(ctx context.Context, filter registry.Filter) ([]domain.FeatureSet, error) {
	cacheKey := filter.Project + "\x00" + filter.Name

	c.mu.RLock()
	if cached, ok := c.featureSetsCache[cacheKey]; ok && c.cacheTTL > 0 && time.Since(cached.fetchedAt) < c.cacheTTL {
		featureSets := cached.featureSets
		c.mu.RUnlock()
		return featureSets, nil
	}
	c.mu.RUnlock()

	query := url.Values{}
	if filter.Project != "" {
		query.Set("project", filter.Project)
	}
	if filter.Name != "" {
		query.Set("name", filter.Name)
	}

	var wire featureSetsWire
	if err := c.get(ctx, "/feature-sets", query, &wire); err != nil {
		return nil, ferrors.WrapRegistryError("listFeatureSets", err)
	}

	featureSets := make([]domain.FeatureSet, 0, len(wire.FeatureSets))
	for _, fs := range wire.FeatureSets {
		features := make([]domain.FeatureSpec, 0, len(fs.Features))
		for _, f := range fs.Features {
			features = append(features, domain.FeatureSpec{Name: f.Name, ValueType: f.ValueType})
		}
		featureSets = append(featureSets, domain.FeatureSet{
			Project: fs.Project,
			Name:    fs.Name,
			Version: fs.Version,
			Source: domain.Source{
				Type:   domain.SourceType(fs.Source.Type),
				Config: fs.Source.Config,
			},
			Spec: domain.FeatureSetSpec{
				Project:  fs.Project,
				Name:     fs.Name,
				Version:  fs.Version,
				Entities: fs.Entities,
				Features: features,
			},
		})
	}

	c.mu.Lock()
	c.featureSetsCache[cacheKey] = &cachedFeatureSets{featureSets: featureSets, fetchedAt: now()}
	c.mu.Unlock()

	return featureSets, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ClearCache evicts all cached responses, forcing the next call to re-fetch.
func (c *Client) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.storesCache = nil
	c.featureSetsCache = make(map[string]*cachedFeatureSets)
}

func now() time.Time { return time.Now() }
