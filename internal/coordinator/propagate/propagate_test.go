package propagate_test

import (
	"context"
	"errors"
	"testing"

	"github.com/egabancho/feast/internal/coordinator/bus"
	"github.com/egabancho/feast/internal/coordinator/bus/memstream"
	"github.com/egabancho/feast/internal/coordinator/domain"
	"github.com/egabancho/feast/internal/coordinator/propagate"
	"github.com/egabancho/feast/internal/coordinator/repository/memstore"
	"github.com/egabancho/feast/pkg/logger"
)

func seedFeatureSetWithJobs(t *testing.T, repo *memstore.Store, version int64, links []domain.FeatureSetJobStatus) domain.FeatureSet {
	t.Helper()
	fs := domain.FeatureSet{
		Project: "project1",
		Name:    "features1",
		Version: version,
		Status:  domain.FeatureSetPending,
		Spec:    domain.FeatureSetSpec{Project: "project1", Name: "features1", Version: version},
		Jobs:    links,
	}
	repo.SeedFeatureSet(fs)
	for _, l := range links {
		repo.SeedJob(domain.Job{ID: l.JobID, Status: domain.JobRunning})
	}
	return fs
}

// countingBus wraps another MessageBus and counts PublishSpec calls.
type countingBus struct {
	bus.MessageBus
	publishes int
}

func (c *countingBus) PublishSpec(ctx context.Context, key string, payload domain.FeatureSetSpec) (bus.PublishHandle, error) {
	c.publishes++
	return c.MessageBus.PublishSpec(ctx, key, payload)
}

// Spec propagation and promotion: a feature set at version 2 with three
// links, two stale and one already current, yields exactly one publish and
// the two stale links move to v=2/IN_PROGRESS; acking both promotes to
// READY.
func TestNotifyJobsWhenFeatureSetUpdatedPublishesStaleLinksOnly(t *testing.T) {
	repo := memstore.New()
	seedFeatureSetWithJobs(t, repo, 2, []domain.FeatureSetJobStatus{
		{JobID: "job-1", Version: 1, DeliveryStatus: domain.DeliveryDelivered},
		{JobID: "job-2", Version: 1, DeliveryStatus: domain.DeliveryDelivered},
		{JobID: "job-3", Version: 2, DeliveryStatus: domain.DeliveryDelivered},
	})

	inner := memstream.New(0)
	defer inner.Close()
	b := &countingBus{MessageBus: inner}
	p := propagate.New(repo, b, logger.New())

	ctx := context.Background()
	if err := p.NotifyJobsWhenFeatureSetUpdated(ctx); err != nil {
		t.Fatalf("NotifyJobsWhenFeatureSetUpdated() error = %v", err)
	}
	if b.publishes != 1 {
		t.Fatalf("publishes = %d, want exactly 1 per feature set", b.publishes)
	}

	fs, err := repo.FindFeatureSet(ctx, "project1", "features1")
	if err != nil || fs == nil {
		t.Fatalf("FindFeatureSet() = %v, %v", fs, err)
	}

	want := map[string]domain.FeatureSetJobStatus{
		"job-1": {JobID: "job-1", Version: 2, DeliveryStatus: domain.DeliveryInProgress},
		"job-2": {JobID: "job-2", Version: 2, DeliveryStatus: domain.DeliveryInProgress},
		"job-3": {JobID: "job-3", Version: 2, DeliveryStatus: domain.DeliveryDelivered},
	}
	for _, link := range fs.Jobs {
		if link != want[link.JobID] {
			t.Fatalf("link %s = %+v, want %+v", link.JobID, link, want[link.JobID])
		}
	}

	// Now ack job-1 and job-2 at version 2; job-3 was already delivered.
	acksCh := make(chan bus.AckRecord, 2)
	acksCh <- bus.AckRecord{Key: "project1/features1", FeatureSetVersion: 2, JobName: "job-1"}
	acksCh <- bus.AckRecord{Key: "project1/features1", FeatureSetVersion: 2, JobName: "job-2"}
	close(acksCh)

	if err := p.ListenAckFromJobs(ctx, acksCh); err != nil {
		t.Fatalf("ListenAckFromJobs() error = %v", err)
	}

	fs, err = repo.FindFeatureSet(context.Background(), "project1", "features1")
	if err != nil || fs == nil {
		t.Fatalf("FindFeatureSet() = %v, %v", fs, err)
	}
	if fs.Status != domain.FeatureSetReady {
		t.Fatalf("fs.Status = %v, want READY", fs.Status)
	}
	for _, link := range fs.Jobs {
		if link.DeliveryStatus != domain.DeliveryDelivered {
			t.Fatalf("link %s DeliveryStatus = %v, want DELIVERED", link.JobID, link.DeliveryStatus)
		}
	}
}

// failingBus always fails PublishSpec; ConsumeAcks is unused by these tests.
type failingBus struct{}

func (failingBus) PublishSpec(ctx context.Context, key string, payload domain.FeatureSetSpec) (bus.PublishHandle, error) {
	return nil, errors.New("broker unavailable")
}

func (failingBus) ConsumeAcks(ctx context.Context) (<-chan bus.AckRecord, error) {
	ch := make(chan bus.AckRecord)
	close(ch)
	return ch, nil
}

func (failingBus) Close() error { return nil }

// Publish failure leaves the link's Version and DeliveryStatus
// unchanged so the next pass retries it.
func TestNotifyJobsWhenFeatureSetUpdatedLeavesLinkUnchangedOnPublishFailure(t *testing.T) {
	repo := memstore.New()
	seedFeatureSetWithJobs(t, repo, 2, []domain.FeatureSetJobStatus{
		{JobID: "job-1", Version: 1, DeliveryStatus: domain.DeliveryDelivered},
	})

	p := propagate.New(repo, failingBus{}, logger.New())

	ctx := context.Background()
	if err := p.NotifyJobsWhenFeatureSetUpdated(ctx); err != nil {
		t.Fatalf("NotifyJobsWhenFeatureSetUpdated() error = %v", err)
	}

	fs, err := repo.FindFeatureSet(ctx, "project1", "features1")
	if err != nil || fs == nil {
		t.Fatalf("FindFeatureSet() = %v, %v", fs, err)
	}
	link := fs.JobStatusFor("job-1")
	if link == nil {
		t.Fatalf("link to job-1 missing")
	}
	if link.Version != 1 || link.DeliveryStatus != domain.DeliveryDelivered {
		t.Fatalf("link = %+v, want unchanged (Version=1, DELIVERED)", *link)
	}
}

// Stale and invalid acks leave all delivery statuses untouched.
func TestListenAckFromJobsDiscardsStaleAndInvalidAcks(t *testing.T) {
	repo := memstore.New()
	seedFeatureSetWithJobs(t, repo, 3, []domain.FeatureSetJobStatus{
		{JobID: "job-1", Version: 3, DeliveryStatus: domain.DeliveryInProgress},
	})

	p := propagate.New(repo, memstream.New(0), logger.New())

	cases := []bus.AckRecord{
		{Key: "not-a-valid-key", FeatureSetVersion: 3, JobName: "job-1"},     // malformed key
		{Key: "project1/features1", FeatureSetVersion: 3, JobName: ""},      // empty jobName
		{Key: "project1/features1", FeatureSetVersion: -1, JobName: "job-1"}, // negative version
		{Key: "project1/features1", FeatureSetVersion: 2, JobName: "job-1"}, // stale version
		{Key: "project1/features1", FeatureSetVersion: 3, JobName: "job-9"}, // unlinked job
		{Key: "unknown/featureset", FeatureSetVersion: 3, JobName: "job-1"}, // unknown feature set
	}

	ctx := context.Background()
	for _, rec := range cases {
		acks := make(chan bus.AckRecord, 1)
		acks <- rec
		close(acks)
		if err := p.ListenAckFromJobs(ctx, acks); err != nil {
			t.Fatalf("ListenAckFromJobs(%+v) error = %v", rec, err)
		}
	}

	fs, err := repo.FindFeatureSet(ctx, "project1", "features1")
	if err != nil || fs == nil {
		t.Fatalf("FindFeatureSet() = %v, %v", fs, err)
	}
	if fs.Status != domain.FeatureSetPending {
		t.Fatalf("fs.Status = %v, want unchanged PENDING", fs.Status)
	}
	link := fs.JobStatusFor("job-1")
	if link == nil || link.DeliveryStatus != domain.DeliveryInProgress {
		t.Fatalf("link = %+v, want unchanged IN_PROGRESS", link)
	}
}

// A current-version ack for one job must not promote a feature set whose
// other non-terminal links were only ever delivered at an older version.
func TestListenAckFromJobsDoesNotPromoteWhileOtherLinksHoldOldVersion(t *testing.T) {
	repo := memstore.New()
	seedFeatureSetWithJobs(t, repo, 2, []domain.FeatureSetJobStatus{
		{JobID: "job-1", Version: 1, DeliveryStatus: domain.DeliveryDelivered},
		{JobID: "job-2", Version: 1, DeliveryStatus: domain.DeliveryDelivered},
	})

	p := propagate.New(repo, memstream.New(0), logger.New())

	ctx := context.Background()
	acks := make(chan bus.AckRecord, 1)
	acks <- bus.AckRecord{Key: "project1/features1", FeatureSetVersion: 2, JobName: "job-1"}
	close(acks)
	if err := p.ListenAckFromJobs(ctx, acks); err != nil {
		t.Fatalf("ListenAckFromJobs() error = %v", err)
	}

	fs, err := repo.FindFeatureSet(ctx, "project1", "features1")
	if err != nil || fs == nil {
		t.Fatalf("FindFeatureSet() = %v, %v", fs, err)
	}
	if fs.Status != domain.FeatureSetPending {
		t.Fatalf("fs.Status = %v, want PENDING while links still carry version 1", fs.Status)
	}
}
