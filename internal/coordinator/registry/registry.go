// Package registry adapts the upstream spec-registry service: the external
// source of truth for stores, sources, and feature-set schemas. The
// coordinator never writes to the registry; it periodically pulls the
// registry's view into its own repository (see Syncer), and the reconciler
// and propagator read only from that repository.
package registry

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

import (
	"context"

	"github.com/egabancho/feast/internal/coordinator/domain"
)

// Filter narrows a ListFeatureSets call to feature sets whose project and
// name match the given globs. Either field may be "*".
type Filter struct {
	Project string
	Name    string
}

//counterfeiter:generate . SpecRegistry

// SpecRegistry is the read-only view of the upstream spec-registry service,
// implemented by httpclient (production) and a test fake.
type SpecRegistry interface {
	// ListStores returns every store and its subscriptions as currently
	// defined in the registry.
	ListStores(ctx context.Context) ([]domain.Store, error)

	// ListFeatureSets returns feature sets matching filter, carrying the
	// registry's current version, spec, and source for each. Status and
	// job links are coordinator-owned and are not populated here.
	ListFeatureSets(ctx context.Context, filter Filter) ([]domain.FeatureSet, error)
}
