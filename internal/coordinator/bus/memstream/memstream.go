// Package memstream implements bus.MessageBus entirely in memory, for tests
// and single-process dev runs: topics become the spec key space, with
// per-key ordering enforced by a dedicated goroutine per key rather than a
// shared fan-out buffer.
package memstream

import (
	"context"
	"sync"

	"github.com/egabancho/feast/internal/coordinator/bus"
	"github.com/egabancho/feast/internal/coordinator/domain"
	ferrors "github.com/egabancho/feast/pkg/errors"
)

type specMessage struct {
	key     string
	payload domain.FeatureSetSpec
	done    chan error
}

// Bus is an in-memory bus.MessageBus, for local development and tests. Spec
// publication per key is serialized by routing every message for a key
// through the same buffered channel.
type Bus struct {
	mu        sync.Mutex
	keyQueues map[string]chan specMessage
	acks      chan bus.AckRecord
	closed    bool
	closeOnce sync.Once
	stopCh    chan struct{}
}

var _ bus.MessageBus = (*Bus)(nil)

// New returns an empty Bus. ackBuffer sizes the ack channel; 0 uses a
// reasonable default.
func New(ackBuffer int) *Bus {
	if ackBuffer <= 0 {
		ackBuffer = 64
	}
	return &Bus{
		keyQueues: make(map[string]chan specMessage),
		acks:      make(chan bus.AckRecord, ackBuffer),
		stopCh:    make(chan struct{}),
	}
}

type handle struct {
	done chan error
}

func (h handle) Wait(ctx context.Context) error {
	select {
	case err := <-h.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) PublishSpec(ctx context.Context, key string, payload domain.FeatureSetSpec) (bus.PublishHandle, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ferrors.WrapBusError("spec", "publish", ferrors.ErrBusUnavailable)
	}
	q, ok := b.keyQueues[key]
	if !ok {
		q = make(chan specMessage, 16)
		b.keyQueues[key] = q
		go b.drainKey(q)
	}
	b.mu.Unlock()

	msg := specMessage{key: key, payload: payload, done: make(chan error, 1)}

	select {
	case q <- msg:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return handle{done: msg.done}, nil
}

// drainKey resolves every publish for a key as an immediate broker-ack
// success, in arrival order, simulating a single-partition topic.
func (b *Bus) drainKey(q chan specMessage) {
	for {
		select {
		case msg := <-q:
			msg.done <- nil
		case <-b.stopCh:
			return
		}
	}
}

// PushAck is a test/dev helper that injects an ack record as if it had
// arrived from the ack channel's consumer side.
func (b *Bus) PushAck(ctx context.Context, rec bus.AckRecord) error {
	select {
	case b.acks <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) ConsumeAcks(ctx context.Context) (<-chan bus.AckRecord, error) {
	out := make(chan bus.AckRecord)
	go func() {
		defer close(out)
		for {
			select {
			case rec := <-b.acks:
				select {
				case out <- rec:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			case <-b.stopCh:
				return
			}
		}
	}()
	return out, nil
}

func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		close(b.stopCh)
	})
	return nil
}
