package fake

import (
	"context"
	"testing"

	"github.com/egabancho/feast/internal/coordinator/domain"
)

func TestStartJobIsIdempotentPerID(t *testing.T) {
	m := New()
	job := domain.Job{ID: "job-1", Status: domain.JobPending}

	first, err := m.StartJob(context.Background(), job)
	if err != nil {
		t.Fatalf("StartJob() error = %v", err)
	}
	if first.Status != domain.JobRunning || first.ExtID == "" {
		t.Fatalf("StartJob() = %+v, want RUNNING with populated ExtID", first)
	}

	second, err := m.StartJob(context.Background(), job)
	if err != nil {
		t.Fatalf("StartJob() (retry) error = %v", err)
	}
	if second.ExtID != first.ExtID {
		t.Fatalf("StartJob() retried with different ExtID %q, want %q (idempotent)", second.ExtID, first.ExtID)
	}
}

func TestAbortJobTransitionsToAborted(t *testing.T) {
	m := New()
	job := domain.Job{ID: "job-1", Status: domain.JobRunning}

	got, err := m.AbortJob(context.Background(), job)
	if err != nil {
		t.Fatalf("AbortJob() error = %v", err)
	}
	if got.Status != domain.JobAborted {
		t.Fatalf("AbortJob() status = %v, want ABORTED", got.Status)
	}
}
