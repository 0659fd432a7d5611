// Package reconcile implements the reconciliation loop: it maps feature sets
// to jobs, deduplicates by (source, store) key, starts missing jobs, and
// aborts duplicates.
package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/egabancho/feast/internal/coordinator/domain"
	"github.com/egabancho/feast/internal/coordinator/repository"
	"github.com/egabancho/feast/internal/coordinator/runner"
	ferrors "github.com/egabancho/feast/pkg/errors"
	"github.com/egabancho/feast/pkg/logger"
)

// Reconciler runs one independent, idempotent Poll pass per invocation.
type Reconciler struct {
	repo             repository.Repository
	jobManager       runner.JobManager
	log              *logger.Logger
	jobUpdateTimeout time.Duration
	idGen            func() string
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithIDGenerator overrides the job ID generator; used by tests that need
// deterministic IDs.
func WithIDGenerator(gen func() string) Option {
	return func(r *Reconciler) { r.idGen = gen }
}

// WithJobUpdateTimeout overrides the per-call runner budget (default 5s,
// config key jobUpdateTimeout).
func WithJobUpdateTimeout(d time.Duration) Option {
	return func(r *Reconciler) { r.jobUpdateTimeout = d }
}

// New builds a Reconciler.
func New(repo repository.Repository, jobManager runner.JobManager, log *logger.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		repo:             repo,
		jobManager:       jobManager,
		log:              log,
		jobUpdateTimeout: 5 * time.Second,
		idGen:            func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// group is the per-(source,store) unit of desired state computed in steps
// 2-4: every feature set in refs is attached to at most one job for this
// key.
type group struct {
	key    domain.JobKey
	store  domain.Store
	source domain.Source
	refs   []string
}

func (g *group) addRef(ref string) {
	for _, existing := range g.refs {
		if existing == ref {
			return
		}
	}
	g.refs = append(g.refs, ref)
}

// Poll runs one reconciliation pass. A repository failure before the job
// batch is saved aborts the pass with nothing persisted. Feature-set links
// for newly started jobs are attached after the batch is saved, one feature
// set at a time, so a failure at that stage leaves the saved jobs and any
// links already attached in place.
func (r *Reconciler) Poll(ctx context.Context) error {
	stores, err := r.repo.ListStores(ctx)
	if err != nil {
		return ferrors.WrapRepositoryError("listStores", err)
	}
	if len(stores) == 0 {
		return nil
	}

	// canonical holds, per feature-set reference, the feature set with its
	// Source replaced by the repository's canonical record. pendingLinks
	// collects, per reference, the IDs of jobs started this pass that the
	// feature set must be linked to after the job batch is persisted.
	canonical := make(map[string]domain.FeatureSet)
	pendingLinks := make(map[string][]string)

	var order []domain.JobKey
	groups := make(map[domain.JobKey]*group)

	for _, store := range stores {
		for _, sub := range store.Subscriptions {
			featureSets, err := r.repo.ListFeatureSets(ctx, sub.ProjectGlob, sub.NameGlob)
			if err != nil {
				return ferrors.WrapRepositoryError("listFeatureSets", err)
			}

			for _, fs := range featureSets {
				ref := fs.Reference()
				canon, ok := canonical[ref]
				if !ok {
					canonSource, err := r.repo.FindCanonicalSource(ctx, fs.Source.Type, fs.Source.Config)
					if err != nil {
						return ferrors.WrapRepositoryError("findCanonicalSource", err)
					}
					canon = fs
					canon.Source = canonSource
					canonical[ref] = canon
				}

				key := domain.JobKey{
					SourceType:   canon.Source.Type,
					SourceConfig: canon.Source.Key().Config,
					StoreName:    store.Name,
				}

				g, ok := groups[key]
				if !ok {
					g = &group{key: key, store: store, source: canon.Source}
					groups[key] = g
					order = append(order, key)
				}
				g.addRef(ref)
			}
		}
	}

	var results []domain.Job
	distinguished := make(map[domain.JobKey]string)

	for _, key := range order {
		g := groups[key]

		existing, err := r.repo.FindLatestNonTerminalJob(ctx, key.SourceType, key.SourceConfig, key.StoreName)
		if err != nil {
			return ferrors.WrapRepositoryError("findLatestNonTerminalJob", err)
		}

		var job domain.Job
		if existing != nil && existing.MatchesFeatureSetReferences(g.refs) {
			job = *existing
		} else {
			job = r.startNewJob(ctx, g)
			for _, ref := range g.refs {
				pendingLinks[ref] = append(pendingLinks[ref], job.ID)
			}
		}

		distinguished[key] = job.ID
		results = append(results, job)
	}

	// Abort surplus running jobs. The RUNNING snapshot is taken now, after
	// the desired jobs have been resolved but before anything from this pass
	// has been persisted, so a job this pass just started (not yet saved)
	// cannot appear in it and be mistaken for a duplicate.
	runningBefore, err := r.repo.FindJobsByStatus(ctx, domain.JobRunning)
	if err != nil {
		return ferrors.WrapRepositoryError("findJobsByStatus", err)
	}

	for _, running := range runningBefore {
		key := running.Key()
		distinguishedID, isDesired := distinguished[key]
		if !isDesired || running.ID == distinguishedID {
			continue
		}

		abortCtx, cancel := context.WithTimeout(ctx, r.jobUpdateTimeout)
		aborted, err := r.jobManager.AbortJob(abortCtx, running)
		cancel()
		if err != nil {
			r.log.Warn("abortJob failed, will retry next pass", "jobId", running.ID, "error", err)
			continue
		}
		results = append(results, aborted)
	}

	if err := r.repo.SaveAllJobs(ctx, results); err != nil {
		return ferrors.WrapRepositoryError("saveAllJobs", err)
	}

	for ref, jobIDs := range pendingLinks {
		if err := r.attachJobLinks(ctx, ref, jobIDs); err != nil {
			return err
		}
	}

	return nil
}

// startNewJob constructs and starts a fresh job for g. On runner failure the
// returned job carries Status == ERROR: it is still returned for
// persistence, and the next pass will observe it as terminal and create a
// replacement.
func (r *Reconciler) startNewJob(ctx context.Context, g *group) domain.Job {
	job := domain.Job{
		ID:         r.idGen(),
		ExtID:      "",
		Runner:     r.jobManager.RunnerType(),
		Source:     g.source,
		Store:      g.store,
		Status:     domain.JobPending,
		FeatureSet: append([]string(nil), g.refs...),
	}

	startCtx, cancel := context.WithTimeout(ctx, r.jobUpdateTimeout)
	defer cancel()

	started, err := r.jobManager.StartJob(startCtx, job)
	if err != nil {
		r.log.Warn("startJob failed, job persisted as ERROR for next pass to replace",
			"jobId", job.ID, "error", err)
	}
	return started
}

// attachJobLinks re-reads the feature set and appends a FeatureSetJobStatus
// link for every job in jobIDs not yet attached. The link is owned by the
// feature set; the job only mirrors it via its FeatureSet reference list.
// The initial version is 0 so the propagator (which compares against
// F.Version) always sends at least one spec to a freshly attached job, and
// the status drops back to PENDING whatever it was: a job that has never
// received the spec means the feature set is no longer fully delivered, and
// the propagator only republishes PENDING feature sets. Re-reading right
// before the write keeps a concurrent ack-side update (a delivery mark, a
// promotion) from being clobbered by this pass's earlier snapshot.
func (r *Reconciler) attachJobLinks(ctx context.Context, ref string, jobIDs []string) error {
	project, name, ok := domain.ParseReference(ref)
	if !ok {
		return nil
	}

	fs, err := r.repo.FindFeatureSet(ctx, project, name)
	if err != nil {
		return ferrors.WrapRepositoryError("findFeatureSet", err)
	}
	if fs == nil {
		return nil
	}

	attached := false
	for _, jobID := range jobIDs {
		if fs.JobStatusFor(jobID) != nil {
			continue
		}
		fs.Jobs = append(fs.Jobs, domain.FeatureSetJobStatus{
			JobID:          jobID,
			Version:        0,
			DeliveryStatus: domain.DeliveryInProgress,
		})
		attached = true
	}
	if !attached {
		return nil
	}

	fs.Status = domain.FeatureSetPending
	if err := r.repo.SaveFeatureSet(ctx, *fs); err != nil {
		return ferrors.WrapRepositoryError("saveFeatureSet", err)
	}
	return nil
}
