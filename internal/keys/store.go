package keys

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sweeney/key-timer/internal/tick"
)

// ErrKeyCount is returned when a store is requested with an unusable size.
var ErrKeyCount = errors.New("keys: key count out of range")

// record holds the debounce state and press timing of one key.
type record struct {
	state    atomic.Uint32
	timeDown atomic.Uint32
	timeUp   atomic.Uint32
	timeDiff atomic.Uint32
}

func (r *record) reset() {
	r.state.Store(uint32(StateReleased))
	r.timeDown.Store(uint32(tick.Invalid))
	r.timeUp.Store(uint32(tick.Invalid))
	r.timeDiff.Store(uint32(tick.Invalid))
}

// Store is a fixed-size set of key records, created once at startup and
// shared by handle between the engine and its readers.
type Store struct {
	records []record
}

// NewStore creates n records, all RELEASED with invalid timestamps.
func NewStore(n int) (*Store, error) {
	if n <= 0 || n > MaxKeys {
		return nil, fmt.Errorf("%w: %d (want 1..%d)", ErrKeyCount, n, MaxKeys)
	}
	s := &Store{records: make([]record, n)}
	for i := range s.records {
		s.records[i].reset()
	}
	return s, nil
}

// Len returns the number of keys.
func (s *Store) Len() int {
	return len(s.records)
}

// Indices returns every valid index in order.
func (s *Store) Indices() []Index {
	out := make([]Index, len(s.records))
	for i := range out {
		out[i] = Index(i)
	}
	return out
}

// Duration returns the hold time of the last completed press of key i, or
// tick.Invalid if none is recorded. It does not consume the value.
func (s *Store) Duration(i Index) tick.Tick {
	return tick.Tick(s.records[i].timeDiff.Load())
}

// ClearDuration resets the stored hold time of key i to tick.Invalid.
func (s *Store) ClearDuration(i Index) {
	s.records[i].timeDiff.Store(uint32(tick.Invalid))
}

// Snapshot loads every field of key i. Fields are loaded one at a time, so
// a snapshot taken during a transition may mix old and new fields.
func (s *Store) Snapshot(i Index) RecordSnapshot {
	r := &s.records[i]
	return RecordSnapshot{
		State:    State(r.state.Load()),
		TimeDown: tick.Tick(r.timeDown.Load()),
		TimeUp:   tick.Tick(r.timeUp.Load()),
		TimeDiff: tick.Tick(r.timeDiff.Load()),
	}
}
