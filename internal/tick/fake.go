package tick

import (
	"context"
	"sync"
	"time"
)

// StepClock is a simulated clock for single-goroutine tests. SleepUntil never
// blocks: it jumps the clock forward to the deadline and records the sleep.
type StepClock struct {
	mu  sync.Mutex
	now Tick

	// Sleeps holds every deadline passed to SleepUntil, in call order.
	Sleeps []Tick
}

// NewStepClock creates a StepClock starting at start.
func NewStepClock(start Tick) *StepClock {
	return &StepClock{now: start}
}

// Now returns the simulated tick.
func (c *StepClock) Now() Tick {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *StepClock) Set(t Tick) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *StepClock) Advance(d Tick) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

// SleepUntil jumps to deadline if it is in the future.
func (c *StepClock) SleepUntil(ctx context.Context, deadline Tick) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sleeps = append(c.Sleeps, deadline)
	if c.now.Before(deadline) {
		c.now = deadline
	}
	return nil
}

// ManualClock is a simulated clock for concurrent tests. Sleepers block until
// another goroutine calls Advance past their deadline.
type ManualClock struct {
	mu      sync.Mutex
	now     Tick
	waiters []waiter
}

type waiter struct {
	deadline Tick
	ch       chan struct{}
}

// NewManualClock creates a ManualClock starting at start.
func NewManualClock(start Tick) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the simulated tick.
func (c *ManualClock) Now() Tick {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// SleepUntil blocks until Advance reaches deadline or ctx is done.
func (c *ManualClock) SleepUntil(ctx context.Context, deadline Tick) error {
	c.mu.Lock()
	if !c.now.Before(deadline) {
		c.mu.Unlock()
		return ctx.Err()
	}
	w := waiter{deadline: deadline, ch: make(chan struct{})}
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		c.remove(w.ch)
		return ctx.Err()
	case <-w.ch:
		return nil
	}
}

// Advance moves the clock forward by d and wakes every sleeper whose
// deadline has been reached.
func (c *ManualClock) Advance(d Tick) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d

	kept := c.waiters[:0]
	for _, w := range c.waiters {
		if c.now.Before(w.deadline) {
			kept = append(kept, w)
			continue
		}
		close(w.ch)
	}
	c.waiters = kept
}

// Waiters returns the number of goroutines blocked in SleepUntil.
func (c *ManualClock) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// BlockUntil waits until at least n goroutines are blocked in SleepUntil,
// or timeout elapses. Reports whether n was reached.
func (c *ManualClock) BlockUntil(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.Waiters() >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return c.Waiters() >= n
}

func (c *ManualClock) remove(ch chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.waiters {
		if w.ch == ch {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}
