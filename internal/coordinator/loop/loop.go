// Package loop drives the coordinator's independent periodic passes
// (registry sync, reconcile, spec propagation, ack consumption) on their own
// cadences. Each loop is serialized with itself; the loops run concurrently
// with respect to one another.
package loop

import (
	"context"
	"sync"
	"time"

	"github.com/egabancho/feast/internal/coordinator/bus"
	"github.com/egabancho/feast/internal/coordinator/propagate"
	"github.com/egabancho/feast/internal/coordinator/reconcile"
	"github.com/egabancho/feast/internal/coordinator/registry"
	"github.com/egabancho/feast/pkg/logger"
)

// Reconciler is the subset of reconcile.Reconciler the loop depends on.
type Reconciler interface {
	Poll(ctx context.Context) error
}

// Propagator is the subset of propagate.Propagator the loop depends on.
type Propagator interface {
	NotifyJobsWhenFeatureSetUpdated(ctx context.Context) error
	ListenAckFromJobs(ctx context.Context, acks <-chan bus.AckRecord) error
}

// Syncer is the subset of registry.Syncer the loop depends on. Optional: a
// nil Syncer disables the registry sync loop (test and embedded setups that
// seed the repository directly).
type Syncer interface {
	Sync(ctx context.Context) error
}

var (
	_ Reconciler = (*reconcile.Reconciler)(nil)
	_ Propagator = (*propagate.Propagator)(nil)
	_ Syncer     = (*registry.Syncer)(nil)
)

// Intervals configures the pacing of the periodic loops.
type Intervals struct {
	Sync      time.Duration
	Poll      time.Duration
	Propagate time.Duration
	AckListen time.Duration
}

// Driver owns the coordinator's periodic goroutines. A single Driver is
// meant to run per process: the coordinator is the single writer of jobs and
// feature-set statuses, and the reconciler and propagator are not safe to
// run concurrently against the same repository from two Drivers.
type Driver struct {
	reconciler Reconciler
	propagator Propagator
	syncer     Syncer
	messageBus bus.MessageBus
	intervals  Intervals
	log        *logger.Logger

	runMutex sync.RWMutex
	running  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Driver. syncer may be nil.
func New(reconciler Reconciler, propagator Propagator, syncer Syncer, messageBus bus.MessageBus, intervals Intervals, log *logger.Logger) *Driver {
	return &Driver{
		reconciler: reconciler,
		propagator: propagator,
		syncer:     syncer,
		messageBus: messageBus,
		intervals:  intervals,
		log:        log,
	}
}

// Start launches the loops in their own goroutines. Calling Start twice
// without an intervening Stop is a no-op.
func (d *Driver) Start() error {
	d.runMutex.Lock()
	if d.running {
		d.runMutex.Unlock()
		return nil
	}
	d.running = true
	d.ctx, d.cancel = context.WithCancel(context.Background())
	ctx := d.ctx
	d.runMutex.Unlock()

	acks, err := d.messageBus.ConsumeAcks(ctx)
	if err != nil {
		d.runMutex.Lock()
		d.running = false
		d.cancel()
		d.runMutex.Unlock()
		return err
	}

	d.log.Info("coordinator loops starting",
		"syncInterval", d.intervals.Sync,
		"pollInterval", d.intervals.Poll,
		"propagateInterval", d.intervals.Propagate,
		"ackListenInterval", d.intervals.AckListen)

	d.wg.Add(3)
	go d.runPeriodic(ctx, "reconcile", d.intervals.Poll, func(passCtx context.Context) error {
		return d.reconciler.Poll(passCtx)
	})
	go d.runPeriodic(ctx, "propagate", d.intervals.Propagate, func(passCtx context.Context) error {
		return d.propagator.NotifyJobsWhenFeatureSetUpdated(passCtx)
	})
	go d.runAckListener(ctx, acks)

	if d.syncer != nil {
		d.wg.Add(1)
		go d.runPeriodic(ctx, "registry-sync", d.intervals.Sync, func(passCtx context.Context) error {
			return d.syncer.Sync(passCtx)
		})
	}

	d.log.Info("coordinator loops started")
	return nil
}

// Stop cancels all loops and blocks until they have returned.
func (d *Driver) Stop() error {
	d.runMutex.Lock()
	if !d.running {
		d.runMutex.Unlock()
		return nil
	}
	d.running = false
	cancel := d.cancel
	d.runMutex.Unlock()

	d.log.Info("coordinator loops stopping")
	cancel()
	d.wg.Wait()
	d.log.Info("coordinator loops stopped")
	return nil
}

// runPeriodic invokes pass on a fixed interval until ctx is cancelled. Every
// invocation receives the loop's own ctx. Passes never overlap because the
// loop calls pass() synchronously; ticks that fire while a pass is still
// running are dropped by the ticker rather than queued.
func (d *Driver) runPeriodic(ctx context.Context, name string, interval time.Duration, pass func(context.Context) error) {
	defer d.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Debug("loop stopping", "loop", name)
			return
		case <-ticker.C:
			if err := pass(ctx); err != nil {
				d.log.Warn("pass failed, will retry next tick", "loop", name, "error", err)
			}
		}
	}
}

// runAckListener drains the bus's ack channel for the lifetime of ctx. It
// restarts the listener if it returns early (e.g. a transient consumer
// error) rather than letting ack processing stop silently.
func (d *Driver) runAckListener(ctx context.Context, acks <-chan bus.AckRecord) {
	defer d.wg.Done()

	for {
		if err := d.propagator.ListenAckFromJobs(ctx, acks); err != nil {
			d.log.Warn("ack listener returned an error, restarting", "error", err)
		}

		select {
		case <-ctx.Done():
			d.log.Debug("ack listener stopping")
			return
		case <-time.After(d.intervals.AckListen):
		}
	}
}
