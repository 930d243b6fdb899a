package engine

import "sync/atomic"

// Clock is a monotonic logical clock that sequences the messages and
// actions of one run.
//
// Wall-clock time is never used for ordering. The clock is reset at the
// start of every run, so sequence numbers are only unique within a run.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
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

// Reset moves the clock to start. The next call to Next returns start+1.
// Restore uses it to continue numbering after a persisted run.
func (c *Clock) Reset(start int64) {
	c.seq.Store(start)
}
