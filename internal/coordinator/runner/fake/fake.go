// Package fake implements runner.JobManager entirely in memory, for local
// development and for the RunnerTest enum value. It transitions PENDING jobs
// straight to RUNNING and ABORTING jobs straight to ABORTED: a same-process
// stand-in with no external dependency.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/egabancho/feast/internal/coordinator/domain"
	"github.com/egabancho/feast/internal/coordinator/runner"
)

// Manager is an in-memory runner.JobManager. Started job IDs are tracked so
// a repeated StartJob call for the same job ID is a no-op, satisfying the
// adapter's idempotency requirement.
type Manager struct {
	mu      sync.Mutex
	started map[string]domain.Job
	extSeq  int64
}

var _ runner.JobManager = (*Manager)(nil)

// New returns an empty Manager.
func New() *Manager {
	return &Manager{started: make(map[string]domain.Job)}
}

func (m *Manager) RunnerType() domain.Runner {
	return domain.RunnerTest
}

func (m *Manager) StartJob(ctx context.Context, job domain.Job) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.started[job.ID]; ok {
		return existing, nil
	}

	m.extSeq++
	job.ExtID = fmt.Sprintf("fake-ext-%d", m.extSeq)
	job.Status = domain.JobRunning
	m.started[job.ID] = job
	return job, nil
}

func (m *Manager) AbortJob(ctx context.Context, job domain.Job) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = domain.JobAborted
	m.started[job.ID] = job
	return job, nil
}

func (m *Manager) GetJobStatus(ctx context.Context, job domain.Job) (domain.JobStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.started[job.ID]; ok {
		return existing.Status, nil
	}
	return job.Status, nil
}
