package gpio

import (
	"fmt"
	"sync"

	"github.com/sweeney/key-timer/internal/keys"
)

// FakeReader is a test double that returns scripted or live key levels.
// Safe for concurrent use.
type FakeReader struct {
	mu sync.Mutex

	// scripts holds per-key samples; each ReadLine consumes the next one
	// and the last sample repeats once exhausted.
	scripts map[keys.Index][]bool
	pos     map[keys.Index]int

	// levels is returned for keys without a script.
	levels map[keys.Index]bool

	reads map[keys.Index]int

	// Closed tracks if Close was called.
	Closed bool

	// ReadError, if set, will be returned by ReadLine.
	ReadError error
}

// NewFakeReader creates a FakeReader with the given per-key scripts.
func NewFakeReader(scripts map[keys.Index][]bool) *FakeReader {
	if scripts == nil {
		scripts = map[keys.Index][]bool{}
	}
	return &FakeReader{
		scripts: scripts,
		pos:     map[keys.Index]int{},
		levels:  map[keys.Index]bool{},
		reads:   map[keys.Index]int{},
	}
}

// Set fixes the live level of an unscripted key.
func (f *FakeReader) Set(i keys.Index, pressed bool) {
	f.mu.Lock()
	f.levels[i] = pressed
	f.mu.Unlock()
}

// ReadLine returns the next scripted sample for key i, or its live level.
func (f *FakeReader) ReadLine(i keys.Index) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ReadError != nil {
		return false, f.ReadError
	}
	f.reads[i]++

	script, ok := f.scripts[i]
	if !ok {
		return f.levels[i], nil
	}
	if len(script) == 0 {
		return false, fmt.Errorf("no samples configured for key %d", i)
	}

	p := f.pos[i]
	if p < len(script)-1 {
		f.pos[i] = p + 1
	}
	return script[p], nil
}

// Reads returns how many successful reads key i has seen.
func (f *FakeReader) Reads(i keys.Index) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[i]
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Reset rewinds every script to its first sample.
func (f *FakeReader) Reset() {
	f.mu.Lock()
	f.pos = map[keys.Index]int{}
	f.reads = map[keys.Index]int{}
	f.Closed = false
	f.mu.Unlock()
}

// SignalCall records one SetSignal invocation.
type SignalCall struct {
	Key keys.Index
	On  bool
}

// FakeActuator records indicator changes. Safe for concurrent use.
type FakeActuator struct {
	mu    sync.Mutex
	calls []SignalCall
	state map[keys.Index]bool

	// SetError, if set, will be returned by SetSignal (the call is still recorded).
	SetError error
}

// NewFakeActuator creates an empty FakeActuator.
func NewFakeActuator() *FakeActuator {
	return &FakeActuator{state: map[keys.Index]bool{}}
}

// SetSignal records the call and the resulting indicator state.
func (f *FakeActuator) SetSignal(i keys.Index, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, SignalCall{Key: i, On: on})
	f.state[i] = on
	return f.SetError
}

// Calls returns a copy of all recorded calls.
func (f *FakeActuator) Calls() []SignalCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SignalCall(nil), f.calls...)
}

// On reports whether the indicator of key i is currently on.
func (f *FakeActuator) On(i keys.Index) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state[i]
}

// Close is a no-op so the fake satisfies io.Closer alongside FakeReader.
func (f *FakeActuator) Close() error {
	return nil
}
