// Package bus defines the message-bus contract: a keyed publish channel for
// feature-set specs and a consume channel for job acknowledgements.
package bus

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

import (
	"context"

	"github.com/egabancho/feast/internal/coordinator/domain"
)

// AckRecord is a single record delivered on the ack channel. The ack topic
// is shared and writable by every ingestion job, so keys and payloads are
// untrusted; the ack listener validates both before acting on one.
type AckRecord struct {
	Key               string
	FeatureSetVersion int64
	JobName           string
}

// PublishHandle resolves once the broker has acknowledged the publish
// itself, not once any consumer has acted on it.
type PublishHandle interface {
	// Wait blocks until the broker-level publish settles, returning its
	// error (nil on success). Cancellation or a timeout on ctx must be
	// surfaced the same way as any other publish failure.
	Wait(ctx context.Context) error
}

//counterfeiter:generate . MessageBus

// MessageBus is the spec-propagation transport: PublishSpec is ordered per
// key; ConsumeAcks need not be ordered across keys.
type MessageBus interface {
	// PublishSpec publishes payload for key ("<project>/<name>") on the spec
	// channel and returns a handle that resolves on broker acknowledgement.
	PublishSpec(ctx context.Context, key string, payload domain.FeatureSetSpec) (PublishHandle, error)

	// ConsumeAcks returns a channel of ack records. The channel is closed
	// when ctx is cancelled or the underlying connection is closed.
	ConsumeAcks(ctx context.Context) (<-chan AckRecord, error)

	// Close releases the underlying connection(s).
	Close() error
}
