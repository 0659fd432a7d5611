// Package runner defines the JobManager contract: the only surface the
// reconciler needs to dispatch over runner-specific execution backends.
// Dispatch over runner variants belongs in the adapter, not in the
// reconciler.
package runner

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

import (
	"context"

	"github.com/egabancho/feast/internal/coordinator/domain"
)

//counterfeiter:generate . JobManager

// JobManager starts, aborts, and observes a single job on one runner
// backend. All operations are synchronous from the reconciler's point of
// view; implementations may internally poll an async backend.
type JobManager interface {
	// RunnerType returns the enum value this manager stamps on jobs it
	// creates.
	RunnerType() domain.Runner

	// StartJob starts job, which must have Status == PENDING and
	// ExtID == "". On success the returned job has a populated ExtID and
	// Status == RUNNING. On failure the returned job has Status == ERROR;
	// StartJob itself also returns a non-nil error in that case, but the
	// job value must still be used for persistence.
	//
	// Implementations must be idempotent per job ID: retrying a call for a
	// job that was already started must not spawn a second external job.
	StartJob(ctx context.Context, job domain.Job) (domain.Job, error)

	// AbortJob requests termination of job, which must be non-terminal. The
	// returned job has Status in {ABORTING, ABORTED}; the adapter eventually
	// drives it to ABORTED, whether or not this call observes that directly.
	AbortJob(ctx context.Context, job domain.Job) (domain.Job, error)

	// GetJobStatus is an observational call, used for health checks; it
	// never mutates job state.
	GetJobStatus(ctx context.Context, job domain.Job) (domain.JobStatus, error)
}
