// Package timeout provides a deadline helper for loops that spend a fixed
// time budget across several blocking steps.
package timeout

import "time"

// Tracker records a deadline computed from a timeout at construction.
//
// A non-positive timeout produces a Tracker that is already expired, which
// lets callers express "check once, do not wait".
type Tracker struct {
	deadline time.Time
	now      func() time.Time
}

// New starts tracking timeout from the current time.
func New(timeout time.Duration) *Tracker {
	return newWithClock(timeout, time.Now)
}

func newWithClock(timeout time.Duration, now func() time.Time) *Tracker {
	return &Tracker{
		deadline: now().Add(timeout),
		now:      now,
	}
}

// Stopped reports whether the deadline has been reached.
func (t *Tracker) Stopped() bool {
	return !t.now().Before(t.deadline)
}

// Remaining returns the time left before the deadline, never negative.
func (t *Tracker) Remaining() time.Duration {
	if d := t.deadline.Sub(t.now()); d > 0 {
		return d
	}
	return 0
}

// Deadline returns the absolute deadline.
func (t *Tracker) Deadline() time.Time {
	return t.deadline
}
