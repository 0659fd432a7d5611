// Package memstore is the default in-memory Repository implementation, used
// for tests and for standalone/dev deployments that don't need durability.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/egabancho/feast/internal/coordinator/domain"
	ferrors "github.com/egabancho/feast/pkg/errors"
)

// sourceRecord pairs a Source with its insertion order, so that
// FindCanonicalSource can return the earliest-persisted match.
type sourceRecord struct {
	source domain.Source
	seq    int64
}

// Store is an in-memory Repository. All operations are protected by a single
// mutex; this is not meant to scale, only to exercise the core correctly.
type Store struct {
	mu sync.RWMutex

	stores      map[string]domain.Store
	featureSets map[string]domain.FeatureSet // keyed by Reference()
	jobs        map[string]domain.Job        // keyed by ID
	sources     []sourceRecord

	seq int64
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		stores:      make(map[string]domain.Store),
		featureSets: make(map[string]domain.FeatureSet),
		jobs:        make(map[string]domain.Job),
	}
}

// SeedStore adds or replaces a store. Test/bootstrap helper; the core never
// writes stores, only the registry side does.
func (s *Store) SeedStore(store domain.Store) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stores[store.Name] = store
}

// SeedFeatureSet adds or replaces a feature set. Test/bootstrap helper.
func (s *Store) SeedFeatureSet(fs domain.FeatureSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.featureSets[fs.Reference()] = fs
}

// SeedSource registers a Source as if it had been persisted, preserving
// insertion order for canonicalization. Test/bootstrap helper.
func (s *Store) SeedSource(source domain.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.sources = append(s.sources, sourceRecord{source: source, seq: s.seq})
}

// SeedJob adds or replaces a job. Test/bootstrap helper.
func (s *Store) SeedJob(job domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *Store) SaveStore(ctx context.Context, store domain.Store) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stores[store.Name] = store
	return nil
}

func (s *Store) SaveSource(ctx context.Context, source domain.Source) (domain.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := source.Key()
	var earliest *sourceRecord
	for i := range s.sources {
		rec := &s.sources[i]
		if rec.source.Key() != want {
			continue
		}
		if earliest == nil || rec.seq < earliest.seq {
			earliest = rec
		}
	}
	if earliest != nil {
		return earliest.source, nil
	}

	s.seq++
	if source.ID == "" {
		source.ID = fmt.Sprintf("source-%d", s.seq)
	}
	s.sources = append(s.sources, sourceRecord{source: source, seq: s.seq})
	return source, nil
}

func (s *Store) ListStores(ctx context.Context) ([]domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Store, 0, len(s.stores))
	for _, st := range s.stores {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) ListFeatureSets(ctx context.Context, projectGlob, nameGlob string) ([]domain.FeatureSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub := domain.Subscription{ProjectGlob: projectGlob, NameGlob: nameGlob}
	out := make([]domain.FeatureSet, 0)
	for _, fs := range s.featureSets {
		if sub.Matches(fs.Project, fs.Name) {
			out = append(out, fs)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) FindFeatureSet(ctx context.Context, project, name string) (*domain.FeatureSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fs, ok := s.featureSets[project+"/"+name]
	if !ok {
		return nil, nil
	}
	cp := fs
	return &cp, nil
}

func (s *Store) FindFeatureSetsByStatus(ctx context.Context, status domain.FeatureSetStatus) ([]domain.FeatureSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.FeatureSet, 0)
	for _, fs := range s.featureSets {
		if fs.Status == status {
			out = append(out, fs)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) SaveFeatureSet(ctx context.Context, fs domain.FeatureSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.featureSets[fs.Reference()] = fs
	return nil
}

func (s *Store) FindCanonicalSource(ctx context.Context, sourceType domain.SourceType, config map[string]string) (domain.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := domain.Source{Type: sourceType, Config: config}.Key()

	var earliest *sourceRecord
	for i := range s.sources {
		rec := &s.sources[i]
		if rec.source.Key() != want {
			continue
		}
		if earliest == nil || rec.seq < earliest.seq {
			earliest = rec
		}
	}

	if earliest == nil {
		return domain.Source{}, ferrors.WrapRepositoryError("findCanonicalSource", ferrors.ErrRepositoryUnavailable)
	}
	return earliest.source, nil
}

func (s *Store) FindLatestNonTerminalJob(ctx context.Context, sourceType domain.SourceType, sourceConfig string, storeName string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := domain.JobKey{SourceType: sourceType, SourceConfig: sourceConfig, StoreName: storeName}

	var latest *domain.Job
	for id := range s.jobs {
		job := s.jobs[id]
		if job.Status.IsTerminal() {
			continue
		}
		if job.Key() != key {
			continue
		}
		if latest == nil || job.UpdatedSeq > latest.UpdatedSeq {
			cp := job
			latest = &cp
		}
	}
	return latest, nil
}

func (s *Store) FindJob(ctx context.Context, jobID string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, nil
	}
	cp := job
	return &cp, nil
}

func (s *Store) FindJobsByStatus(ctx context.Context, status domain.JobStatus) ([]domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Job, 0)
	for _, job := range s.jobs {
		if job.Status == status {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SaveAllJobs(ctx context.Context, jobs []domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range jobs {
		s.seq++
		job.UpdatedSeq = s.seq
		s.jobs[job.ID] = job
	}
	return nil
}
