// Package tick provides the monotonic millisecond counter and the
// sleep-until-deadline primitive shared by the polling and feedback loops.
// Ticks wrap at 2^32; all comparisons and differences use modular arithmetic.
package tick

import (
	"context"
	"time"
)

// Tick is a point on the millisecond timeline, or a duration in milliseconds.
type Tick uint32

// Invalid marks a timestamp or duration that has not been recorded.
const Invalid Tick = ^Tick(0)

// Before reports whether t is earlier than u. Valid as long as the two
// are less than 2^31 ticks apart.
func (t Tick) Before(u Tick) bool {
	return int32(t-u) < 0
}

// Duration converts a tick count to a time.Duration.
func (t Tick) Duration() time.Duration {
	return time.Duration(t) * time.Millisecond
}

// FromDuration converts d to whole ticks, truncating.
func FromDuration(d time.Duration) Tick {
	return Tick(d / time.Millisecond)
}

// Clock supplies the current tick and suspends the caller until an absolute tick.
type Clock interface {
	// Now returns the current tick.
	Now() Tick

	// SleepUntil blocks until deadline has been reached or ctx is done.
	// A deadline already in the past returns immediately.
	// Returns ctx.Err() if the context ended first.
	SleepUntil(ctx context.Context, deadline Tick) error
}

// SystemClock counts milliseconds since it was created, using the runtime's
// monotonic clock.
type SystemClock struct {
	start time.Time
}

// NewSystemClock creates a clock whose tick 0 is now.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Now returns milliseconds elapsed since the clock was created.
func (c *SystemClock) Now() Tick {
	return Tick(time.Since(c.start) / time.Millisecond)
}

// SleepUntil blocks until deadline or until ctx is done.
func (c *SystemClock) SleepUntil(ctx context.Context, deadline Tick) error {
	remaining := int32(deadline - c.Now())
	if remaining <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(time.Duration(remaining) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
