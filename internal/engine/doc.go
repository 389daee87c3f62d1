// Package engine implements the ledger's operation queue.
//
// Every mutation of the ledger runs as an Operation on a single consumer
// goroutine. Callers Submit work from any goroutine and wait on the returned
// Future; the Run loop executes one item at a time in submission order.
//
// Item Processing:
// 1. Submit stamps the item with a UUIDv7 id and a logical seq from Clock
// 2. Run dequeues the oldest item and snapshots the ledger
// 3. The operation mutates the live ledger
// 4. Invariants are verified and the touched artifacts are saved through the
// durable.Backend
// 5. The committed snapshot becomes the new read view and the future resolves
//
// If any step fails (an error, a panic, an invariant violation or a failed
// save) the ledger is restored from the snapshot and the future is rejected.
// The next item starts only after the current future is settled.
//
// Reads never go through the queue: View returns the last committed
// snapshot, so a reader never observes an operation in progress.
package engine
