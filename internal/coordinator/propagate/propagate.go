// Package propagate implements the spec-propagation protocol: publishing a
// feature set's spec to every job that ingests it whenever the feature set's
// version changes, and promoting a feature set to READY once every attached
// job has acknowledged the current version.
package propagate

import (
	"context"

	"github.com/egabancho/feast/internal/coordinator/bus"
	"github.com/egabancho/feast/internal/coordinator/domain"
	"github.com/egabancho/feast/internal/coordinator/repository"
	ferrors "github.com/egabancho/feast/pkg/errors"
	"github.com/egabancho/feast/pkg/logger"
)

// Propagator drives both halves of the protocol. Each method runs one
// independent pass; callers (the loop package) schedule them on their own
// cadence.
type Propagator struct {
	repo repository.Repository
	bus  bus.MessageBus
	log  *logger.Logger
}

// New builds a Propagator.
func New(repo repository.Repository, b bus.MessageBus, log *logger.Logger) *Propagator {
	return &Propagator{repo: repo, bus: b, log: log}
}

// NotifyJobsWhenFeatureSetUpdated is the publish half of the protocol: a
// PENDING feature set with at least one link to a non-terminal job whose
// recorded Version differs from the feature set's current Version gets its
// spec published once, and every such link then records the published
// version with delivery IN_PROGRESS. Links are updated only on publish
// success; on failure (including a cancelled Wait) they are left untouched
// so the next pass retries.
func (p *Propagator) NotifyJobsWhenFeatureSetUpdated(ctx context.Context) error {
	featureSets, err := p.repo.FindFeatureSetsByStatus(ctx, domain.FeatureSetPending)
	if err != nil {
		return ferrors.WrapRepositoryError("findFeatureSetsByStatus", err)
	}

	for _, fs := range featureSets {
		// One publish covers every job ingesting this feature set (the
		// consumer side fans out by subscription), so find the stale links
		// first and publish at most once.
		var stale []int
		for i := range fs.Jobs {
			link := &fs.Jobs[i]

			terminal, err := p.isTerminalJob(ctx, link.JobID)
			if err != nil {
				p.log.Warn("findJob failed, skipping link this pass", "jobId", link.JobID, "error", err)
				continue
			}
			if terminal {
				continue
			}
			if link.Version == fs.Version {
				continue
			}
			stale = append(stale, i)
		}
		if len(stale) == 0 {
			continue
		}

		if err := p.publish(ctx, fs); err != nil {
			p.log.Warn("publishSpec failed, will retry next pass",
				"featureSet", fs.Reference(), "error", err)
			continue
		}

		for _, i := range stale {
			fs.Jobs[i].Version = fs.Version
			fs.Jobs[i].DeliveryStatus = domain.DeliveryInProgress
		}

		if err := p.repo.SaveFeatureSet(ctx, fs); err != nil {
			return ferrors.WrapRepositoryError("saveFeatureSet", err)
		}
	}

	return nil
}

func (p *Propagator) publish(ctx context.Context, fs domain.FeatureSet) error {
	handle, err := p.bus.PublishSpec(ctx, fs.Reference(), fs.Spec)
	if err != nil {
		return ferrors.WrapBusError("spec", "publish", err)
	}
	if err := handle.Wait(ctx); err != nil {
		return ferrors.WrapBusError("spec", "wait", err)
	}
	return nil
}

func (p *Propagator) isTerminalJob(ctx context.Context, jobID string) (bool, error) {
	job, err := p.repo.FindJob(ctx, jobID)
	if err != nil {
		return false, ferrors.WrapRepositoryError("findJob", err)
	}
	if job == nil {
		// No backing job record: treat as terminal so the link is never
		// republished or counted toward promotion.
		return true, nil
	}
	return job.Status.IsTerminal(), nil
}

// ListenAckFromJobs is the consume half of the protocol: it drains the ack
// channel and, for each record, either discards it (malformed key, unknown
// feature set, unknown or invalid job reference, stale version) or marks the
// matching link DELIVERED and re-evaluates promotion to READY.
func (p *Propagator) ListenAckFromJobs(ctx context.Context, acks <-chan bus.AckRecord) error {
	for {
		select {
		case rec, ok := <-acks:
			if !ok {
				return nil
			}
			p.handleAck(ctx, rec)
		case <-ctx.Done():
			return nil
		}
	}
}

func (p *Propagator) handleAck(ctx context.Context, rec bus.AckRecord) {
	project, name, ok := domain.ParseReference(rec.Key)
	if !ok {
		p.log.Debug("discarding ack with malformed key", "key", rec.Key)
		return
	}

	fs, err := p.repo.FindFeatureSet(ctx, project, name)
	if err != nil {
		p.log.Warn("findFeatureSet failed while handling ack", "key", rec.Key, "error", err)
		return
	}
	if fs == nil {
		p.log.Debug("discarding ack for unknown feature set", "key", rec.Key)
		return
	}

	if rec.JobName == "" || rec.FeatureSetVersion < 0 {
		p.log.Debug("discarding ack with invalid fields", "key", rec.Key, "jobName", rec.JobName, "version", rec.FeatureSetVersion)
		return
	}

	link := fs.JobStatusFor(rec.JobName)
	if link == nil {
		p.log.Debug("discarding ack for unlinked job", "key", rec.Key, "jobId", rec.JobName)
		return
	}

	if rec.FeatureSetVersion != fs.Version {
		p.log.Debug("discarding stale ack", "key", rec.Key, "jobId", rec.JobName,
			"ackVersion", rec.FeatureSetVersion, "currentVersion", fs.Version)
		return
	}

	link.DeliveryStatus = domain.DeliveryDelivered

	if fs.Status == domain.FeatureSetPending && p.allNonTerminalLinksDelivered(ctx, *fs) {
		fs.Status = domain.FeatureSetReady
	}

	if err := p.repo.SaveFeatureSet(ctx, *fs); err != nil {
		p.log.Warn("saveFeatureSet failed after ack", "key", rec.Key, "error", err)
	}
}

// allNonTerminalLinksDelivered reports whether every link to a non-terminal
// job is DELIVERED at the feature set's current version. A link still
// carrying an older version does not count even if it was delivered at that
// version: the ack topic is untrusted, and a spurious current-version ack
// for one job must not promote a feature set whose other jobs only ever
// received an earlier schema. A feature set with no non-terminal job links
// is not promoted: the safe default is to leave it PENDING rather than
// declare it ready with nothing attached to serve it.
func (p *Propagator) allNonTerminalLinksDelivered(ctx context.Context, fs domain.FeatureSet) bool {
	seen := 0
	for _, link := range fs.Jobs {
		terminal, err := p.isTerminalJob(ctx, link.JobID)
		if err != nil {
			p.log.Warn("findJob failed during promotion check", "jobId", link.JobID, "error", err)
			return false
		}
		if terminal {
			continue
		}
		seen++
		if link.DeliveryStatus != domain.DeliveryDelivered || link.Version != fs.Version {
			return false
		}
	}
	return seen > 0
}
