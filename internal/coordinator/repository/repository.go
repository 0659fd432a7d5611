// Package repository defines the persistence contracts the reconciler and
// propagator depend on, independent of the concrete backend.
package repository

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

import (
	"context"

	"github.com/egabancho/feast/internal/coordinator/domain"
)

//counterfeiter:generate . Repository

// Repository is the single persistence surface the core depends on. It is
// implemented by memstore (default, in-memory) and dynamodb (production).
type Repository interface {
	// ListStores returns all stores with their subscriptions.
	ListStores(ctx context.Context) ([]domain.Store, error)

	// SaveStore upserts a store by name. Called only by the registry sync
	// path; the reconciler treats stores as read-only.
	SaveStore(ctx context.Context, store domain.Store) error

	// SaveSource persists a source if no record with the same business key
	// exists yet, and returns the canonical (earliest-persisted) record for
	// that key either way.
	SaveSource(ctx context.Context, source domain.Source) (domain.Source, error)

	// ListFeatureSets returns feature sets whose project and name match the
	// given globs, ordered by name ascending. "*" matches any non-empty
	// string in either field.
	ListFeatureSets(ctx context.Context, projectGlob, nameGlob string) ([]domain.FeatureSet, error)

	// FindFeatureSet looks up a single feature set by its primary key.
	FindFeatureSet(ctx context.Context, project, name string) (*domain.FeatureSet, error)

	// FindFeatureSetsByStatus returns every feature set currently in status.
	FindFeatureSetsByStatus(ctx context.Context, status domain.FeatureSetStatus) ([]domain.FeatureSet, error)

	// SaveFeatureSet persists a feature set, including its job-status links.
	SaveFeatureSet(ctx context.Context, fs domain.FeatureSet) error

	// FindCanonicalSource returns the earliest-persisted Source matching the
	// given business key, used to collapse duplicate in-memory Source
	// records sharing the same (type, config) before grouping.
	FindCanonicalSource(ctx context.Context, sourceType domain.SourceType, config map[string]string) (domain.Source, error)

	// FindLatestNonTerminalJob returns the most-recently-updated job for the
	// given business key whose status is not terminal, if any.
	FindLatestNonTerminalJob(ctx context.Context, sourceType domain.SourceType, sourceConfig string, storeName string) (*domain.Job, error)

	// FindJobsByStatus returns all jobs currently in the given status.
	FindJobsByStatus(ctx context.Context, status domain.JobStatus) ([]domain.Job, error)

	// FindJob looks up a single job by its coordinator-assigned ID. Used by
	// the spec propagator and ack listener to resolve a FeatureSetJobStatus
	// link's terminality; the reconciler does not use this query.
	FindJob(ctx context.Context, jobID string) (*domain.Job, error)

	// SaveAllJobs persists a batch of jobs. memstore applies the whole batch
	// under one lock; dynamodb writes it in BatchWriteItem chunks of 25 and
	// is not atomic across chunks, so a failure can leave earlier chunks
	// written.
	SaveAllJobs(ctx context.Context, jobs []domain.Job) error
}
