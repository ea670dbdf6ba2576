// Package budget tracks the execution quantum of a single engine
// invocation. A run must stop doing new work once the budget is spent and
// use the safety buffer to persist its cursor and schedule a continuation.
package budget

import "time"

// Budget measures elapsed wall time against a hard limit minus a safety
// buffer. The zero value is unusable; construct with New.
type Budget struct {
	start        time.Time
	hardLimit    time.Duration
	safetyBuffer time.Duration
	now          func() time.Time
}

// New starts a budget clock at the current time.
func New(hardLimit, safetyBuffer time.Duration) *Budget {
	return NewWithClock(hardLimit, safetyBuffer, time.Now)
}

// NewWithClock starts a budget with an injectable clock.
func NewWithClock(hardLimit, safetyBuffer time.Duration, now func() time.Time) *Budget {
	return &Budget{
		start:        now(),
		hardLimit:    hardLimit,
		safetyBuffer: safetyBuffer,
		now:          now,
	}
}

// Expired reports whether the usable window has been consumed. The usable
// window is hardLimit minus safetyBuffer; a buffer at or above the hard
// limit makes the budget expired from the start.
func (b *Budget) Expired() bool {
	return b.Elapsed() >= b.usable()
}

// Remaining returns the usable time left, never negative.
func (b *Budget) Remaining() time.Duration {
	r := b.usable() - b.Elapsed()
	if r < 0 {
		return 0
	}
	return r
}

// Elapsed returns wall time since the budget started.
func (b *Budget) Elapsed() time.Duration {
	return b.now().Sub(b.start)
}

// HardLimit returns the configured hard limit.
func (b *Budget) HardLimit() time.Duration { return b.hardLimit }

func (b *Budget) usable() time.Duration {
	return b.hardLimit - b.safetyBuffer
}
