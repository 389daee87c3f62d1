package engine

import "context"

// Future is the pending result of a submitted operation.
type Future struct {
	// ID is the queue item id (UUIDv7).
	ID string

	// Seq is the item's position in submission order.
	Seq int64

	done   chan struct{}
	result any
	err    error
}

func newFuture(id string, seq int64) *Future {
	return &Future{ID: id, Seq: seq, done: make(chan struct{})}
}

// Wait blocks until the operation settles or ctx is done.
//
// Returning ctx.Err() only means the caller stopped waiting. The operation
// still runs, and commits or rolls back, on its own.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed once the operation has settled.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

func (f *Future) resolve(result any) {
	f.result = result
	close(f.done)
}

func (f *Future) reject(err error) {
	f.err = err
	close(f.done)
}
