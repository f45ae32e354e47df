package keys

import (
	"context"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/key-timer/internal/tick"
)

// LineReader samples the digital line of a key. true means the key is
// asserted (pressed); active-low wiring is resolved by the reader.
type LineReader interface {
	ReadLine(i Index) (bool, error)
}

// Handler receives confirmed press and release events. It runs on the
// polling goroutine and must not block.
type Handler func(Event)

type counters struct {
	presses    atomic.Uint64
	releases   atomic.Uint64
	recoveries atomic.Uint64
}

// Engine advances the debounce state machine of every key in a Store.
type Engine struct {
	store   *Store
	reader  LineReader
	clock   tick.Clock
	handler Handler
	counts  []counters
}

// NewEngine creates an engine writing into store. handler may be nil.
func NewEngine(store *Store, reader LineReader, clock tick.Clock, handler Handler) *Engine {
	return &Engine{
		store:   store,
		reader:  reader,
		clock:   clock,
		handler: handler,
		counts:  make([]counters, store.Len()),
	}
}

// Advance samples key i once and applies one state-machine step.
// A corrupted state is reset to RELEASED without sampling. A failed read
// leaves the record untouched for this cycle.
func (e *Engine) Advance(i Index) {
	rec := &e.store.records[i]

	state := State(rec.state.Load())
	if !state.Valid() {
		e.recover(i, rec, state)
		return
	}

	active, err := e.reader.ReadLine(i)
	if err != nil {
		log.WithField("key", int(i)).Warnf("line read error: %v", err)
		return
	}

	switch state {
	case StateReleased:
		if active {
			rec.state.Store(uint32(StateFalling))
		}

	case StateFalling:
		if active {
			e.pressed(i, rec)
		} else {
			rec.state.Store(uint32(StateReleased))
		}

	case StatePressed:
		if !active {
			rec.state.Store(uint32(StateRising))
		}

	case StateRising:
		if active {
			rec.state.Store(uint32(StatePressed))
		} else {
			e.released(i, rec)
		}
	}
}

// Poll advances every key once, in index order.
func (e *Engine) Poll() {
	for i := range e.store.records {
		e.Advance(Index(i))
	}
}

// Run polls every PollPeriod ticks against absolute deadlines until ctx is
// done. Late wakeups shorten the next wait instead of shifting the schedule.
// Polls missed by an overrun are dropped, never replayed: two samples of a
// key are always at least PollPeriod apart.
func (e *Engine) Run(ctx context.Context) error {
	next := e.clock.Now()
	for {
		e.Poll()
		next += PollPeriod
		if now := e.clock.Now(); !now.Before(next) {
			log.Debugf("poll overran by %d ticks, skipping missed polls", now-next)
			next = now + PollPeriod
		}
		if err := e.clock.SleepUntil(ctx, next); err != nil {
			return nil
		}
	}
}

// Counts returns the transition counters of key i.
func (e *Engine) Counts(i Index) Counts {
	c := &e.counts[i]
	return Counts{
		Presses:    c.presses.Load(),
		Releases:   c.releases.Load(),
		Recoveries: c.recoveries.Load(),
	}
}

func (e *Engine) pressed(i Index, rec *record) {
	now := e.clock.Now()
	rec.timeDown.Store(uint32(now))
	rec.state.Store(uint32(StatePressed))
	e.counts[i].presses.Add(1)

	e.emit(Event{Key: i, Type: EventPress, Tick: now, Duration: tick.Invalid})
}

func (e *Engine) released(i Index, rec *record) {
	now := e.clock.Now()
	diff := now - tick.Tick(rec.timeDown.Load())
	rec.timeUp.Store(uint32(now))
	rec.timeDiff.Store(uint32(diff))
	rec.state.Store(uint32(StateReleased))
	e.counts[i].releases.Add(1)

	e.emit(Event{Key: i, Type: EventRelease, Tick: now, Duration: diff})
}

func (e *Engine) recover(i Index, rec *record, bad State) {
	rec.state.Store(uint32(StateReleased))
	e.counts[i].recoveries.Add(1)
	log.WithField("key", int(i)).Warnf("corrupted debounce state %v, reset to %v", bad, StateReleased)
}

func (e *Engine) emit(ev Event) {
	if e.handler != nil {
		e.handler(ev)
	}
}
