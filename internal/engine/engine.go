package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/roach88/fxledger/internal/durable"
	"github.com/roach88/fxledger/internal/ledger"
)

// Engine is the single-writer operation queue that owns the ledger.
//
// CRITICAL: All ledger mutations happen in the Run loop goroutine.
// External callers use Submit or Do to hand work to it.
//
// Thread-safety model:
//   - Submit(), Do(), View(), Len(), Stats(), Stop(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//
// INVARIANTS:
//   - Items execute and commit in seq order
//   - At most one item executes at a time; the next starts only after the
//     previous future is settled
//   - A rejected item leaves the ledger and the backend as they were
type Engine struct {
	store   *ledger.Store
	backend durable.Backend
	clock   *Clock
	ids     IDGenerator
	now     func() time.Time
	queue   *workQueue

	view      atomic.Pointer[ledger.Snapshot]
	running   atomic.Bool
	committed atomic.Int64
	failed    atomic.Int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDGenerator sets the generator for queue item ids.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithNow sets the wall clock used for enqueue timestamps.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an Engine that owns s and persists through backend.
//
// s must not be touched by anything but the Engine afterwards. The initial
// read view is a snapshot of s as given.
func New(s *ledger.Store, backend durable.Backend, opts ...Option) *Engine {
	e := &Engine{
		store:   s,
		backend: backend,
		clock:   NewClock(),
		ids:     UUIDv7Generator{},
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}
	e.queue = newWorkQueue(e.clock, e.now)

	s.ClearDirty()
	e.view.Store(s.Snapshot())
	return e
}

// Recover loads the persisted ledger from backend and checks it.
// Missing artifacts recover as empty; corrupt ones are an error.
func Recover(ctx context.Context, backend durable.Backend) (*ledger.Store, error) {
	snap, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	s, err := ledger.FromSnapshot(snap)
	if err != nil {
		return nil, fmt.Errorf("rebuild ledger: %w", err)
	}
	if err := s.Verify(); err != nil {
		return nil, fmt.Errorf("verify recovered ledger: %w", err)
	}

	slog.Info("ledger recovered",
		"accounts", len(snap.Accounts),
		"rates", len(snap.Rates),
		"log_entries", len(snap.Log),
	)
	return s, nil
}

// Submit queues op and returns its future.
// Safe from any goroutine. Returns ErrQueueClosed after Stop.
func (e *Engine) Submit(op Operation) (*Future, error) {
	it := &item{
		ID: e.ids.Generate(),
		op: op,
	}
	if !e.queue.Enqueue(it) {
		return nil, ErrQueueClosed
	}

	slog.Debug("operation queued", "id", it.ID, "seq", it.Seq)
	return it.future, nil
}

// Do submits op and waits for its result.
func (e *Engine) Do(ctx context.Context, op Operation) (any, error) {
	f, err := e.Submit(op)
	if err != nil {
		return nil, err
	}
	return f.Wait(ctx)
}

// View returns the last committed snapshot. Never nil. Treat as read-only.
func (e *Engine) View() *ledger.Snapshot {
	return e.view.Load()
}

// Len returns the number of items waiting to start.
func (e *Engine) Len() int {
	return e.queue.Len()
}

// Stats reports queue counters.
type Stats struct {
	Pending   int   `json:"pending"`
	Committed int64 `json:"committed"`
	Failed    int64 `json:"failed"`
}

// Stats returns the current queue counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Pending:   e.queue.Len(),
		Committed: e.committed.Load(),
		Failed:    e.failed.Load(),
	}
}

// Run starts the consumer loop.
// Blocks until ctx is cancelled or Stop() is called.
//
// CRITICAL: Must be called from exactly ONE goroutine.
//
// An item that has started always runs to completion. Items still waiting
// when the loop stops are rejected with ErrQueueClosed.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer e.running.Store(false)

	slog.Info("operation queue starting")
	opCtx := context.WithoutCancel(ctx)

	for {
		it, ok := e.queue.TryDequeue()
		if ok {
			e.process(opCtx, it)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("operation queue stopping: context cancelled")
			e.Stop()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes when the queue is closed.
			if e.queue.Closed() {
				slog.Info("operation queue stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Waiting items are rejected with ErrQueueClosed and
// Run returns once the item in progress, if any, has settled.
func (e *Engine) Stop() {
	pending := e.queue.Close()
	for _, it := range pending {
		it.future.reject(ErrQueueClosed)
	}
	if len(pending) > 0 {
		slog.Warn("rejected queued operations on shutdown", "count", len(pending))
	}
}

// process runs one item to a settled future.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) process(ctx context.Context, it *item) {
	start := time.Now()
	before := e.store.Snapshot()
	e.store.ClearDirty()

	result, err := e.execute(ctx, it)
	if err == nil {
		err = e.store.Verify()
	}

	dirty := e.store.Dirty()
	if err == nil && dirty != ledger.ArtifactNone {
		committed := e.store.Snapshot()
		if saveErr := e.backend.Save(ctx, committed, dirty); saveErr != nil {
			slog.Error("persisting operation failed",
				"id", it.ID,
				"seq", it.Seq,
				"artifacts", dirty.String(),
				"error", saveErr,
			)
			err = ledger.PersistenceFailure("persist", saveErr)
			e.repair(ctx, it, before, dirty)
		} else {
			e.view.Store(committed)
		}
	}

	if err != nil {
		e.store.Restore(before)
		e.failed.Add(1)
		slog.Info("operation rolled back",
			"id", it.ID,
			"seq", it.Seq,
			"error", err,
			"duration", time.Since(start),
		)
		it.future.reject(err)
		return
	}

	e.store.ClearDirty()
	e.committed.Add(1)
	slog.Info("operation committed",
		"id", it.ID,
		"seq", it.Seq,
		"artifacts", dirty.String(),
		"queued_for", start.Sub(it.EnqueuedAt),
		"duration", time.Since(start),
	)
	it.future.resolve(result)
}

// execute runs the operation, turning a panic into a PanicError.
func (e *Engine) execute(ctx context.Context, it *item) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("operation panicked", "id", it.ID, "seq", it.Seq, "panic", r)
			err = &PanicError{ItemID: it.ID, Value: r, Stack: debug.Stack()}
		}
	}()
	return it.op(ctx, e.store)
}

// repair rewrites the pre-operation state of the artifacts a failed save
// touched. Backends that are not atomic across artifacts may have written
// some of them before failing.
func (e *Engine) repair(ctx context.Context, it *item, before *ledger.Snapshot, which ledger.Artifact) {
	if err := e.backend.Save(ctx, before, which); err != nil {
		slog.Error("durable state may diverge from memory; reconcile before restart",
			"id", it.ID,
			"seq", it.Seq,
			"artifacts", which.String(),
			"error", err,
		)
	}
}
