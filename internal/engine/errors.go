package engine

import (
	"errors"
	"fmt"
)

// ErrQueueClosed rejects items submitted after Stop, and items still waiting
// when the queue shut down.
var ErrQueueClosed = errors.New("operation queue closed")

// ErrAlreadyRunning is returned by Run when another Run loop owns the queue.
var ErrAlreadyRunning = errors.New("operation queue already running")

// PanicError is the rejection of an operation that panicked. The ledger has
// already been rolled back when it is returned.
type PanicError struct {
	// ItemID identifies the queue item.
	ItemID string

	// Value is the recovered panic value.
	Value any

	// Stack is the goroutine stack at the point of recovery.
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("operation %s panicked: %v", e.ItemID, e.Value)
}

// IsPanic returns true if err is, or wraps, a PanicError.
func IsPanic(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}
