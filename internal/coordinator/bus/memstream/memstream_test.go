package memstream

import (
	"context"
	"testing"
	"time"

	"github.com/egabancho/feast/internal/coordinator/bus"
	"github.com/egabancho/feast/internal/coordinator/domain"
)

func TestPublishSpecResolves(t *testing.T) {
	b := New(0)
	defer b.Close()

	h, err := b.PublishSpec(context.Background(), "proj1/fs1", domain.FeatureSetSpec{Project: "proj1", Name: "fs1"})
	if err != nil {
		t.Fatalf("PublishSpec() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}

func TestConsumeAcksDeliversPushedRecord(t *testing.T) {
	b := New(0)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	acks, err := b.ConsumeAcks(ctx)
	if err != nil {
		t.Fatalf("ConsumeAcks() error = %v", err)
	}

	want := bus.AckRecord{Key: "proj1/fs1", FeatureSetVersion: 2, JobName: "job-1"}
	if err := b.PushAck(ctx, want); err != nil {
		t.Fatalf("PushAck() error = %v", err)
	}

	select {
	case got := <-acks:
		if got != want {
			t.Fatalf("ConsumeAcks() = %+v, want %+v", got, want)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for ack")
	}
}
