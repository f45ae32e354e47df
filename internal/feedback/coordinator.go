// Package feedback turns each key's last measured hold time into a visible
// signal: once per blink cycle the key's indicator is held on for the
// measured duration.
package feedback

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/key-timer/internal/keys"
	"github.com/sweeney/key-timer/internal/tick"
)

// CyclePeriod is the length of one blink cycle.
const CyclePeriod tick.Tick = 1000

// DurationSource exposes the stored hold time of a key.
type DurationSource interface {
	Duration(i keys.Index) tick.Tick
}

// Actuator drives the indicator of a key.
type Actuator interface {
	SetSignal(i keys.Index, on bool) error
}

// Coordinator runs the blink cycle of a single key. The only state carried
// between cycles is the deadline anchor kept by Run.
type Coordinator struct {
	index  keys.Index
	source DurationSource
	act    Actuator
	clock  tick.Clock
}

// New creates a coordinator bound to key i.
func New(i keys.Index, source DurationSource, act Actuator, clock tick.Clock) *Coordinator {
	return &Coordinator{
		index:  i,
		source: source,
		act:    act,
		clock:  clock,
	}
}

// NewAll creates one coordinator per index.
func NewAll(indices []keys.Index, source DurationSource, act Actuator, clock tick.Clock) []*Coordinator {
	out := make([]*Coordinator, len(indices))
	for n, i := range indices {
		out[n] = New(i, source, act, clock)
	}
	return out
}

// Index returns the key this coordinator drives.
func (c *Coordinator) Index() keys.Index {
	return c.index
}

// Cycle runs one blink cycle ending at deadline. A valid nonzero duration
// shorter than CyclePeriod lights the indicator for exactly that long; a
// longer one leaves it lit past the deadline. The stored duration is never
// cleared, so it repeats every cycle until a new release replaces it.
func (c *Coordinator) Cycle(ctx context.Context, deadline tick.Tick) error {
	d := c.source.Duration(c.index)
	if d != tick.Invalid && d != 0 {
		c.set(true)
		if d < CyclePeriod {
			if err := c.clock.SleepUntil(ctx, c.clock.Now()+d); err != nil {
				return err
			}
			c.set(false)
		}
	}
	return c.clock.SleepUntil(ctx, deadline)
}

// Run repeats Cycle every CyclePeriod ticks, anchored to the tick at which
// it started, until ctx is done. The indicator is switched off on return.
func (c *Coordinator) Run(ctx context.Context) error {
	next := c.clock.Now()
	for {
		next += CyclePeriod
		if err := c.Cycle(ctx, next); err != nil {
			c.set(false)
			return nil
		}
	}
}

func (c *Coordinator) set(on bool) {
	if err := c.act.SetSignal(c.index, on); err != nil {
		log.WithField("key", int(c.index)).Warnf("set signal %v: %v", on, err)
	}
}
