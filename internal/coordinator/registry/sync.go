package registry

import (
	"context"

	"github.com/egabancho/feast/internal/coordinator/domain"
	"github.com/egabancho/feast/internal/coordinator/repository"
	ferrors "github.com/egabancho/feast/pkg/errors"
	"github.com/egabancho/feast/pkg/logger"
)

// Syncer pulls the registry's stores, sources, and feature-set schemas into
// the coordinator's repository. It is the only writer of stores and sources;
// for feature sets it writes the registry-owned fields (version, spec,
// source) and resets status to PENDING when the version advances, leaving
// job links intact so the propagator republishes to the attached jobs.
type Syncer struct {
	registry SpecRegistry
	repo     repository.Repository
	log      *logger.Logger
}

// NewSyncer builds a Syncer.
func NewSyncer(reg SpecRegistry, repo repository.Repository, log *logger.Logger) *Syncer {
	return &Syncer{registry: reg, repo: repo, log: log}
}

// Sync runs one pull. Any registry or repository failure aborts the pass;
// the next tick re-runs it from scratch.
func (s *Syncer) Sync(ctx context.Context) error {
	stores, err := s.registry.ListStores(ctx)
	if err != nil {
		return ferrors.WrapRegistryError("listStores", err)
	}
	for _, store := range stores {
		if err := s.repo.SaveStore(ctx, store); err != nil {
			return ferrors.WrapRepositoryError("saveStore", err)
		}
	}

	upstream, err := s.registry.ListFeatureSets(ctx, Filter{Project: "*", Name: "*"})
	if err != nil {
		return ferrors.WrapRegistryError("listFeatureSets", err)
	}

	for _, remote := range upstream {
		if err := s.syncFeatureSet(ctx, remote); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) syncFeatureSet(ctx context.Context, remote domain.FeatureSet) error {
	source, err := s.repo.SaveSource(ctx, remote.Source)
	if err != nil {
		return ferrors.WrapRepositoryError("saveSource", err)
	}

	existing, err := s.repo.FindFeatureSet(ctx, remote.Project, remote.Name)
	if err != nil {
		return ferrors.WrapRepositoryError("findFeatureSet", err)
	}

	if existing == nil {
		remote.Source = source
		remote.Status = domain.FeatureSetPending
		s.log.Info("registering feature set", "reference", remote.Reference(), "version", remote.Version)
		if err := s.repo.SaveFeatureSet(ctx, remote); err != nil {
			return ferrors.WrapRepositoryError("saveFeatureSet", err)
		}
		return nil
	}

	if remote.Version <= existing.Version {
		return nil
	}

	// A version bump means the schema changed upstream: carry the new
	// version/spec/source over, drop the feature set back to PENDING, and
	// keep the job links so the propagator can push the new version to the
	// jobs already ingesting it.
	existing.Version = remote.Version
	existing.Spec = remote.Spec
	existing.Source = source
	existing.Status = domain.FeatureSetPending

	s.log.Info("feature set version advanced", "reference", existing.Reference(), "version", existing.Version)
	if err := s.repo.SaveFeatureSet(ctx, *existing); err != nil {
		return ferrors.WrapRepositoryError("saveFeatureSet", err)
	}
	return nil
}
