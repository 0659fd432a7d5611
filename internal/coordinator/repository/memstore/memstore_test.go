package memstore

import (
	"context"
	"testing"

	"github.com/egabancho/feast/internal/coordinator/domain"
)

func TestListFeatureSetsMatchesSubscriptionGlobs(t *testing.T) {
	s := New()
	s.SeedFeatureSet(domain.FeatureSet{Project: "proj1", Name: "features1"})
	s.SeedFeatureSet(domain.FeatureSet{Project: "proj2", Name: "features2"})

	got, err := s.ListFeatureSets(context.Background(), "proj1", "*")
	if err != nil {
		t.Fatalf("ListFeatureSets() error = %v", err)
	}
	if len(got) != 1 || got[0].Reference() != "proj1/features1" {
		t.Fatalf("ListFeatureSets() = %v, want exactly proj1/features1", got)
	}
}

func TestFindCanonicalSourceReturnsEarliestPersisted(t *testing.T) {
	s := New()
	s.SeedSource(domain.Source{ID: "src-2", Type: domain.SourceKafka, Config: map[string]string{"topic": "t"}})
	s.SeedSource(domain.Source{ID: "src-1", Type: domain.SourceKafka, Config: map[string]string{"topic": "t"}})

	got, err := s.FindCanonicalSource(context.Background(), domain.SourceKafka, map[string]string{"topic": "t"})
	if err != nil {
		t.Fatalf("FindCanonicalSource() error = %v", err)
	}
	if got.ID != "src-2" {
		t.Fatalf("FindCanonicalSource() = %+v, want the first-seeded record (src-2)", got)
	}
}

func TestFindCanonicalSourceErrorsWhenAbsent(t *testing.T) {
	s := New()
	if _, err := s.FindCanonicalSource(context.Background(), domain.SourceKafka, map[string]string{"topic": "missing"}); err == nil {
		t.Fatalf("expected error for unknown source business key")
	}
}

func TestFindLatestNonTerminalJobIgnoresTerminalAndPicksMostRecent(t *testing.T) {
	s := New()
	store := domain.Store{Name: "redis-1"}
	source := domain.Source{Type: domain.SourceKafka, Config: map[string]string{"topic": "t"}}

	if err := s.SaveAllJobs(context.Background(), []domain.Job{
		{ID: "job-1", Source: source, Store: store, Status: domain.JobAborted},
	}); err != nil {
		t.Fatalf("SaveAllJobs() error = %v", err)
	}
	if err := s.SaveAllJobs(context.Background(), []domain.Job{
		{ID: "job-2", Source: source, Store: store, Status: domain.JobRunning},
	}); err != nil {
		t.Fatalf("SaveAllJobs() error = %v", err)
	}

	got, err := s.FindLatestNonTerminalJob(context.Background(), domain.SourceKafka, "topic=t", "redis-1")
	if err != nil {
		t.Fatalf("FindLatestNonTerminalJob() error = %v", err)
	}
	if got == nil || got.ID != "job-2" {
		t.Fatalf("FindLatestNonTerminalJob() = %v, want job-2", got)
	}
}

func TestFindJobsByStatus(t *testing.T) {
	s := New()
	if err := s.SaveAllJobs(context.Background(), []domain.Job{
		{ID: "job-1", Status: domain.JobRunning},
		{ID: "job-2", Status: domain.JobRunning},
		{ID: "job-3", Status: domain.JobAborted},
	}); err != nil {
		t.Fatalf("SaveAllJobs() error = %v", err)
	}

	running, err := s.FindJobsByStatus(context.Background(), domain.JobRunning)
	if err != nil {
		t.Fatalf("FindJobsByStatus() error = %v", err)
	}
	if len(running) != 2 {
		t.Fatalf("FindJobsByStatus(RUNNING) = %d jobs, want 2", len(running))
	}
}

func TestSaveFeatureSetRoundTrips(t *testing.T) {
	s := New()
	fs := domain.FeatureSet{Project: "proj1", Name: "features1", Status: domain.FeatureSetPending}
	if err := s.SaveFeatureSet(context.Background(), fs); err != nil {
		t.Fatalf("SaveFeatureSet() error = %v", err)
	}

	got, err := s.FindFeatureSet(context.Background(), "proj1", "features1")
	if err != nil {
		t.Fatalf("FindFeatureSet() error = %v", err)
	}
	if got == nil || got.Status != domain.FeatureSetPending {
		t.Fatalf("FindFeatureSet() = %v, want status PENDING", got)
	}
}

func TestFindFeatureSetReturnsNilWhenMissing(t *testing.T) {
	s := New()
	got, err := s.FindFeatureSet(context.Background(), "nope", "nope")
	if err != nil {
		t.Fatalf("FindFeatureSet() error = %v", err)
	}
	if got != nil {
		t.Fatalf("FindFeatureSet() = %v, want nil", got)
	}
}

func TestSaveSourceIsIdempotentByBusinessKey(t *testing.T) {
	s := New()

	first, err := s.SaveSource(context.Background(), domain.Source{Type: domain.SourceKafka, Config: map[string]string{"topic": "t"}})
	if err != nil {
		t.Fatalf("SaveSource() error = %v", err)
	}
	second, err := s.SaveSource(context.Background(), domain.Source{ID: "other", Type: domain.SourceKafka, Config: map[string]string{"topic": "t"}})
	if err != nil {
		t.Fatalf("SaveSource() error = %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("SaveSource() second = %+v, want the canonical record %+v", second, first)
	}
}

func TestSaveStoreUpserts(t *testing.T) {
	s := New()
	if err := s.SaveStore(context.Background(), domain.Store{Name: "redis-1"}); err != nil {
		t.Fatalf("SaveStore() error = %v", err)
	}
	if err := s.SaveStore(context.Background(), domain.Store{
		Name:          "redis-1",
		Subscriptions: []domain.Subscription{{ProjectGlob: "*", NameGlob: "*"}},
	}); err != nil {
		t.Fatalf("SaveStore() error = %v", err)
	}

	stores, err := s.ListStores(context.Background())
	if err != nil {
		t.Fatalf("ListStores() error = %v", err)
	}
	if len(stores) != 1 || len(stores[0].Subscriptions) != 1 {
		t.Fatalf("ListStores() = %+v, want one store with the updated subscription", stores)
	}
}
