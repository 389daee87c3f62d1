package engine

import "sync/atomic"

// Clock is a monotonic logical clock for queue items.
//
// Each submitted item takes the next seq; seq order is submission order,
// which is also execution and commit order.
//
// Clock is safe for concurrent use: Submit may be called from any goroutine.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
