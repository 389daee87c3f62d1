package engine

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/fxledger/internal/ledger"
)

// Operation is a unit of work against the ledger. It runs on the queue's
// consumer goroutine with exclusive access to s. A returned error rolls back
// every change the operation made.
//
// ctx is never cancelled while the operation runs.
type Operation func(ctx context.Context, s *ledger.Store) (any, error)

// item is one queued operation.
type item struct {
	ID         string
	Seq        int64
	EnqueuedAt time.Time
	op         Operation
	future     *Future
}

// workQueue is a thread-safe unbounded FIFO of items.
//
// Submitters append from any goroutine; the Run loop is the only consumer.
// The buffered signal channel wakes the consumer without holding the lock.
//
// Seq is stamped under mu, so queue order and seq order are the same.
type workQueue struct {
	mu     sync.Mutex
	items  []*item
	closed bool
	signal chan struct{} // buffered, size 1

	clock *Clock
	now   func() time.Time
}

func newWorkQueue(clock *Clock, now func() time.Time) *workQueue {
	return &workQueue{
		items:  make([]*item, 0, 64),
		signal: make(chan struct{}, 1),
		clock:  clock,
		now:    now,
	}
}

// Enqueue stamps it with the next seq and adds it to the back of the queue.
// Returns false if the queue is closed; it is left unstamped.
func (q *workQueue) Enqueue(it *item) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	it.Seq = q.clock.Next()
	it.EnqueuedAt = q.now()
	it.future = newFuture(it.ID, it.Seq)
	q.items = append(q.items, it)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns the front item without blocking.
// Returns (nil, false) if the queue is empty or closed.
func (q *workQueue) TryDequeue() (*item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.items) == 0 {
		return nil, false
	}

	it := q.items[0]
	// Release the slot so the finished item can be collected.
	q.items[0] = nil

	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	return it, true
}

// Wait returns a channel that signals when items may be available.
// It is closed once the queue is closed.
func (q *workQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of items waiting.
func (q *workQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Close has been called.
func (q *workQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops the queue and returns the items that never started.
// Only the first call returns items.
func (q *workQueue) Close() []*item {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	close(q.signal)

	pending := q.items
	q.items = nil
	return pending
}
