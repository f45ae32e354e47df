// Package keys implements the per-key debounce state machine and the timing
// store it writes into. The engine is the only writer of a record; every
// field other goroutines read is a single atomic word stored whole.
package keys

import (
	"fmt"

	"github.com/sweeney/key-timer/internal/tick"
)

// PollPeriod is the fixed interval between two samples of the same key.
// It is also the debounce window: a level must persist for two consecutive
// samples to be confirmed.
const PollPeriod tick.Tick = 40

// MaxKeys bounds the number of keys a store can hold.
const MaxKeys = 64

// Index identifies a configured key. Valid indices are 0..Store.Len()-1.
type Index int

// State is the debounce state of one key.
type State uint32

const (
	StateReleased State = iota // steady, not pressed
	StateFalling               // press seen once, awaiting confirmation
	StatePressed               // steady, pressed
	StateRising                // release seen once, awaiting confirmation
)

// Valid reports whether s is one of the four defined states.
func (s State) Valid() bool {
	return s <= StateRising
}

func (s State) String() string {
	switch s {
	case StateReleased:
		return "RELEASED"
	case StateFalling:
		return "FALLING"
	case StatePressed:
		return "PRESSED"
	case StateRising:
		return "RISING"
	}
	return fmt.Sprintf("INVALID(%d)", uint32(s))
}

// EventType distinguishes confirmed presses from confirmed releases.
type EventType string

const (
	EventPress   EventType = "PRESS"
	EventRelease EventType = "RELEASE"
)

// Event is emitted when the engine confirms a press or a release.
type Event struct {
	Key  Index
	Type EventType
	Tick tick.Tick
	// Duration is the hold time for releases and tick.Invalid for presses.
	Duration tick.Tick
}

// Counts tracks confirmed transitions and state recoveries for one key.
type Counts struct {
	Presses    uint64
	Releases   uint64
	Recoveries uint64
}

// RecordSnapshot is a point-in-time copy of a key record.
type RecordSnapshot struct {
	State    State
	TimeDown tick.Tick
	TimeUp   tick.Tick
	TimeDiff tick.Tick
}
