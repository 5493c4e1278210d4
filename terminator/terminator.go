// Package terminator runs the periodic sweep that fails out pending
// entries older than the configured deadline. Grounded on
// natsclient.Client's startHealthMonitoring ticker shape for the periodic
// goroutine, and on pkg/worker's Pool for fanning out the 504 write of each
// record a sweep evicts.
package terminator

import (
	"context"
	"time"

	"github.com/c360/reqgateway/idalloc"
	"github.com/c360/reqgateway/protocol"
	"github.com/c360/reqgateway/pkg/worker"
	"github.com/c360/reqgateway/reqtable"
)

// Default cadence and deadline from the spec's Terminator section.
const (
	DefaultCadence  = 2000 * time.Millisecond
	DefaultDeadline = 15000 * time.Millisecond
)

// Option configures a Terminator.
type Option func(*Terminator)

// WithCadence overrides the sweep interval.
func WithCadence(d time.Duration) Option { return func(t *Terminator) { t.cadence = d } }

// WithDeadline overrides the pending-record age limit.
func WithDeadline(d time.Duration) Option { return func(t *Terminator) { t.deadline = d } }

// WithWorkers sets the eviction worker pool size. Every record a sweep
// evicts is submitted to this pool.
func WithWorkers(n int) Option { return func(t *Terminator) { t.workers = n } }

// WithOnEvict registers a callback fired once per evicted record, after
// its completion has run. cmd/gateway uses this to feed the sweep
// eviction counter without terminator importing the metric package.
func WithOnEvict(fn func()) Option { return func(t *Terminator) { t.onEvict = fn } }

// Terminator periodically sweeps a reqtable.Table and fires the standard
// 504 completion for every record it evicts.
type Terminator struct {
	allocator *idalloc.Allocator
	table     *reqtable.Table
	cadence   time.Duration
	deadline  time.Duration
	workers   int
	onEvict   func()

	ticker *time.Ticker
	done   chan struct{}
}

// New builds a Terminator with the spec's default cadence and deadline.
func New(allocator *idalloc.Allocator, table *reqtable.Table, opts ...Option) *Terminator {
	t := &Terminator{
		allocator: allocator,
		table:     table,
		cadence:   DefaultCadence,
		deadline:  DefaultDeadline,
		workers:   4,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start launches the sweep goroutine. It returns immediately; Stop or
// cancelling ctx ends the loop.
func (t *Terminator) Start(ctx context.Context) {
	t.ticker = time.NewTicker(t.cadence)
	t.done = make(chan struct{})

	pool := worker.NewPool(t.workers, 256, t.evict)
	if err := pool.Start(ctx); err != nil {
		// Falls back to evicting synchronously in the sweep loop below.
		pool = nil
	}

	go func() {
		defer t.ticker.Stop()
		for {
			select {
			case <-t.done:
				t.stopPool(pool)
				return
			case <-ctx.Done():
				t.stopPool(pool)
				return
			case now := <-t.ticker.C:
				t.sweepOnce(ctx, now, pool)
			}
		}
	}()
}

func (t *Terminator) sweepOnce(ctx context.Context, now time.Time, pool *worker.Pool[*reqtable.Record]) {
	expired := t.table.Sweep(now, t.deadline)
	for _, rec := range expired {
		if pool != nil {
			if err := pool.Submit(rec); err == nil {
				continue
			}
		}
		_ = t.evict(ctx, rec)
	}
}

func (t *Terminator) stopPool(pool *worker.Pool[*reqtable.Record]) {
	if pool != nil {
		_ = pool.Stop(5 * time.Second)
	}
}

// Stop ends the sweep goroutine.
func (t *Terminator) Stop() {
	if t.done != nil {
		close(t.done)
	}
}

// evict fires the standard 504 completion for one expired record and
// releases its id. No retry is attempted; the caller must re-submit.
func (t *Terminator) evict(_ context.Context, rec *reqtable.Record) error {
	reply := &protocol.Reply{MsgID: rec.ID, Status: protocol.StatusLocalTimeout}
	rec.Completion(rec.Responder, rec.Timestamp, reply, protocol.StatusLocalTimeout)
	// Release only after the completion has run, so a concurrent Allocate
	// cannot reuse rec.ID and register a new record before this one is
	// done with it.
	t.allocator.Release(rec.ID)
	if t.onEvict != nil {
		t.onEvict()
	}
	return nil
}
