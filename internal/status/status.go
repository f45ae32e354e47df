// Package status provides a thread-safe status view of the key-timer daemon.
// It is read by the HTTP handlers and by MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/key-timer/internal/keys"
	"github.com/sweeney/key-timer/internal/tick"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// KeyConfig describes one configured key for display. Unwired outputs
// are nil.
type KeyConfig struct {
	Name   string
	Pin    int
	LED    *int
	Mirror *int
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs      int64
	CycleMs     int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
	Keys        []KeyConfig
}

// RecordSource exposes the live timing records.
type RecordSource interface {
	Len() int
	Snapshot(i keys.Index) keys.RecordSnapshot
}

// CountSource exposes per-key transition counters.
type CountSource interface {
	Counts(i keys.Index) keys.Counts
}

// KeyStatus is the point-in-time status of one key.
type KeyStatus struct {
	Index    keys.Index
	Name     string
	State    keys.State
	Duration tick.Tick // tick.Invalid when no press has completed
	Counts   keys.Counts
}

// LastEvent is the most recent confirmed transition.
type LastEvent struct {
	Key  keys.Index
	Type keys.EventType
	At   time.Time
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Keys          []KeyStatus
	LastEvent     *LastEvent
	BootID        string
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	MQTTBuffered  int
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex. Key state is read
// live from the record and count sources on every Snapshot.
type Tracker struct {
	records RecordSource
	counts  CountSource

	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker. counts may be nil.
func NewTracker(startTime time.Time, bootID string, cfg Config, records RecordSource, counts CountSource) *Tracker {
	return &Tracker{
		records: records,
		counts:  counts,
		snap: Snapshot{
			BootID:    bootID,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// RecordEvent remembers the most recent confirmed transition.
func (t *Tracker) RecordEvent(ev keys.Event, at time.Time) {
	t.mu.Lock()
	t.snap.LastEvent = &LastEvent{Key: ev.Key, Type: ev.Type, At: at}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetMQTTBuffered sets the number of messages waiting for the broker.
func (t *Tracker) SetMQTTBuffered(n int) {
	t.mu.Lock()
	t.snap.MQTTBuffered = n
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.LastEvent != nil {
		last := *s.LastEvent
		s.LastEvent = &last
	}
	t.mu.RUnlock()

	s.Keys = t.keyStatus(s.Config.Keys)
	s.Now = time.Now()
	return s
}

func (t *Tracker) keyStatus(cfg []KeyConfig) []KeyStatus {
	if t.records == nil {
		return nil
	}
	out := make([]KeyStatus, t.records.Len())
	for n := range out {
		i := keys.Index(n)
		rec := t.records.Snapshot(i)
		ks := KeyStatus{
			Index:    i,
			State:    rec.State,
			Duration: rec.TimeDiff,
		}
		if n < len(cfg) {
			ks.Name = cfg[n].Name
		}
		if t.counts != nil {
			ks.Counts = t.counts.Counts(i)
		}
		out[n] = ks
	}
	return out
}
