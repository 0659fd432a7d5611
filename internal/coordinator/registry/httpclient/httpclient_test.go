package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/egabancho/feast/internal/coordinator/domain"
	"github.com/egabancho/feast/internal/coordinator/registry"
)

func TestListStoresParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stores" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"stores":[{"name":"redis-1","config":{"addr":"localhost:6379"},"subscriptions":[{"project_glob":"*","name_glob":"*"}]}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Minute)
	stores, err := c.ListStores(context.Background())
	if err != nil {
		t.Fatalf("ListStores() error = %v", err)
	}
	if len(stores) != 1 || stores[0].Name != "redis-1" {
		t.Fatalf("ListStores() = %+v, want one store named redis-1", stores)
	}
	if len(stores[0].Subscriptions) != 1 {
		t.Fatalf("ListStores() subscriptions = %+v, want 1", stores[0].Subscriptions)
	}
}

func TestListStoresCachesWithinTTL(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"stores":[]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Hour)
	ctx := context.Background()
	if _, err := c.ListStores(ctx); err != nil {
		t.Fatalf("ListStores() error = %v", err)
	}
	if _, err := c.ListStores(ctx); err != nil {
		t.Fatalf("ListStores() error = %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (second call should be served from cache)", calls)
	}
}

func TestListFeatureSetsAppliesFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("project"); got != "proj1" {
			t.Fatalf("project query = %q, want proj1", got)
		}
		w.Write([]byte(`{"feature_sets":[{"project":"proj1","name":"fs1","version":2,"entities":["e1"],"features":[{"name":"f1","value_type":"INT64"}],"source":{"type":"KAFKA","config":{"topic":"t1"}}}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	featureSets, err := c.ListFeatureSets(context.Background(), registry.Filter{Project: "proj1", Name: "*"})
	if err != nil {
		t.Fatalf("ListFeatureSets() error = %v", err)
	}
	if len(featureSets) != 1 || featureSets[0].Version != 2 {
		t.Fatalf("ListFeatureSets() = %+v, want one feature set at version 2", featureSets)
	}
	if featureSets[0].Source.Type != domain.SourceKafka || featureSets[0].Source.Config["topic"] != "t1" {
		t.Fatalf("ListFeatureSets() source = %+v, want KAFKA topic t1", featureSets[0].Source)
	}
	if featureSets[0].Spec.Version != 2 || len(featureSets[0].Spec.Features) != 1 {
		t.Fatalf("ListFeatureSets() spec = %+v, want embedded spec at version 2 with one feature", featureSets[0].Spec)
	}
}

func TestListStoresReturnsErrorOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	if _, err := c.ListStores(context.Background()); err == nil {
		t.Fatalf("expected error on HTTP 500")
	}
}
