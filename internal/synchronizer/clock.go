package synchronizer

import "sync/atomic"

// Clock is a monotonic logical clock stamping outgoing messages.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Uint64
}

// NewClock creates a clock whose first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next advances the clock and returns the new sequence number.
func (c *Clock) Next() uint64 {
	return c.seq.Add(1)
}
