package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/egabancho/feast/internal/coordinator/domain"
	"github.com/egabancho/feast/internal/coordinator/repository/memstore"
	"github.com/egabancho/feast/pkg/logger"
)

type stubRegistry struct {
	stores      []domain.Store
	featureSets []domain.FeatureSet
	err         error
}

func (s *stubRegistry) ListStores(ctx context.Context) ([]domain.Store, error) {
	return s.stores, s.err
}

func (s *stubRegistry) ListFeatureSets(ctx context.Context, filter Filter) ([]domain.FeatureSet, error) {
	return s.featureSets, s.err
}

func kafkaSource(topic string) domain.Source {
	return domain.Source{Type: domain.SourceKafka, Config: map[string]string{"topic": topic}}
}

func TestSyncRegistersNewFeatureSetAsPending(t *testing.T) {
	repo := memstore.New()
	reg := &stubRegistry{
		stores: []domain.Store{{Name: "redis-1", Subscriptions: []domain.Subscription{{ProjectGlob: "*", NameGlob: "*"}}}},
		featureSets: []domain.FeatureSet{
			{Project: "proj1", Name: "features1", Version: 1, Source: kafkaSource("t1")},
		},
	}

	if err := NewSyncer(reg, repo, logger.New()).Sync(context.Background()); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	stores, err := repo.ListStores(context.Background())
	if err != nil || len(stores) != 1 {
		t.Fatalf("ListStores() = %v, %v, want the synced store", stores, err)
	}

	fs, err := repo.FindFeatureSet(context.Background(), "proj1", "features1")
	if err != nil || fs == nil {
		t.Fatalf("FindFeatureSet() = %v, %v, want the synced feature set", fs, err)
	}
	if fs.Status != domain.FeatureSetPending {
		t.Errorf("status = %v, want PENDING", fs.Status)
	}

	src, err := repo.FindCanonicalSource(context.Background(), domain.SourceKafka, map[string]string{"topic": "t1"})
	if err != nil {
		t.Fatalf("FindCanonicalSource() error = %v, want the synced source to be registered", err)
	}
	if fs.Source.ID != src.ID {
		t.Errorf("feature set source ID = %q, want the canonical record's %q", fs.Source.ID, src.ID)
	}
}

func TestSyncVersionBumpResetsStatusAndKeepsLinks(t *testing.T) {
	repo := memstore.New()
	repo.SeedFeatureSet(domain.FeatureSet{
		Project: "proj1", Name: "features1", Version: 1,
		Status: domain.FeatureSetReady,
		Source: kafkaSource("t1"),
		Jobs: []domain.FeatureSetJobStatus{
			{JobID: "job-1", Version: 1, DeliveryStatus: domain.DeliveryDelivered},
		},
	})

	reg := &stubRegistry{featureSets: []domain.FeatureSet{
		{Project: "proj1", Name: "features1", Version: 2, Source: kafkaSource("t1")},
	}}

	if err := NewSyncer(reg, repo, logger.New()).Sync(context.Background()); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	fs, _ := repo.FindFeatureSet(context.Background(), "proj1", "features1")
	if fs.Version != 2 {
		t.Errorf("version = %d, want 2", fs.Version)
	}
	if fs.Status != domain.FeatureSetPending {
		t.Errorf("status = %v, want PENDING after version bump", fs.Status)
	}
	if len(fs.Jobs) != 1 || fs.Jobs[0].Version != 1 {
		t.Errorf("jobs = %+v, want the existing link untouched", fs.Jobs)
	}
}

func TestSyncSameVersionIsNoOp(t *testing.T) {
	repo := memstore.New()
	repo.SeedFeatureSet(domain.FeatureSet{
		Project: "proj1", Name: "features1", Version: 3,
		Status: domain.FeatureSetReady,
		Source: kafkaSource("t1"),
	})

	reg := &stubRegistry{featureSets: []domain.FeatureSet{
		{Project: "proj1", Name: "features1", Version: 3, Source: kafkaSource("t1")},
	}}

	if err := NewSyncer(reg, repo, logger.New()).Sync(context.Background()); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	fs, _ := repo.FindFeatureSet(context.Background(), "proj1", "features1")
	if fs.Status != domain.FeatureSetReady {
		t.Errorf("status = %v, want READY left alone when the version is unchanged", fs.Status)
	}
}

func TestSyncAbortsOnRegistryError(t *testing.T) {
	repo := memstore.New()
	reg := &stubRegistry{err: errors.New("registry down")}

	if err := NewSyncer(reg, repo, logger.New()).Sync(context.Background()); err == nil {
		t.Fatalf("expected Sync() to surface the registry error")
	}
}
