package internal

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/key-timer/internal/feedback"
	"github.com/sweeney/key-timer/internal/gpio"
	"github.com/sweeney/key-timer/internal/keys"
	"github.com/sweeney/key-timer/internal/mqtt"
	"github.com/sweeney/key-timer/internal/status"
	"github.com/sweeney/key-timer/internal/tick"
)

var keyNames = []string{"TEC1", "TEC2"}

// pipeline wires the engine to a fake publisher the way the daemon does,
// but drives polls by hand on a step clock.
type pipeline struct {
	store  *keys.Store
	reader *gpio.FakeReader
	clock  *tick.StepClock
	engine *keys.Engine
	pub    *mqtt.FakePublisher
	start  time.Time
	errs   []error
}

func newPipeline(t *testing.T, scripts map[keys.Index][]bool) *pipeline {
	t.Helper()
	store, err := keys.NewStore(len(keyNames))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	p := &pipeline{
		store:  store,
		reader: gpio.NewFakeReader(scripts),
		clock:  tick.NewStepClock(0),
		pub:    mqtt.NewFakePublisher(),
		start:  time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	p.engine = keys.NewEngine(store, p.reader, p.clock, func(ev keys.Event) {
		err := p.pub.Publish(mqtt.KeyEvent{
			Timestamp: p.start.Add(ev.Tick.Duration()),
			Name:      keyNames[ev.Key],
			Event:     ev,
		})
		if err != nil {
			p.errs = append(p.errs, err)
		}
	})
	return p
}

// pollUntil polls once at every multiple of the poll period up to and
// including last.
func (p *pipeline) pollUntil(last tick.Tick) {
	for t := p.clock.Now(); !last.Before(t); t += keys.PollPeriod {
		p.clock.Set(t)
		p.engine.Poll()
	}
	p.clock.Set(last + keys.PollPeriod)
}

// heldScript is active for samples [from, to) and inactive otherwise.
func heldScript(from, to, total int) []bool {
	s := make([]bool, total)
	for i := from; i < to; i++ {
		s[i] = true
	}
	return s
}

// TestIntegrationHoldAndBlink: key 0 sampled active at t=0..560 and
// inactive at t=600,640 holds for 600 ticks; the next feedback cycle lights
// the LED for exactly 600 ticks.
func TestIntegrationHoldAndBlink(t *testing.T) {
	p := newPipeline(t, map[keys.Index][]bool{
		0: heldScript(0, 15, 18),
	})
	p.pollUntil(680)

	if got := p.store.Duration(0); got != 600 {
		t.Fatalf("Duration(0): got %d, want 600", got)
	}
	if got := p.store.Duration(1); got != tick.Invalid {
		t.Errorf("Duration(1): got %d, want invalid", got)
	}

	if len(p.pub.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(p.pub.Events))
	}
	press, release := p.pub.Events[0], p.pub.Events[1]
	if press.Event.Type != keys.EventPress || press.Event.Tick != 40 {
		t.Errorf("press: got %+v", press.Event)
	}
	if release.Event.Type != keys.EventRelease || release.Event.Tick != 640 || release.Event.Duration != 600 {
		t.Errorf("release: got %+v", release.Event)
	}
	if release.Name != "TEC1" {
		t.Errorf("Name: got %q, want TEC1", release.Name)
	}

	fbClock := tick.NewStepClock(0)
	act := gpio.NewFakeActuator()
	coords := feedback.NewAll(p.store.Indices(), p.store, act, fbClock)
	for _, c := range coords {
		fbClock.Set(0)
		if err := c.Cycle(context.Background(), feedback.CyclePeriod); err != nil {
			t.Fatalf("Cycle(%d): %v", c.Index(), err)
		}
	}

	calls := act.Calls()
	want := []gpio.SignalCall{{Key: 0, On: true}, {Key: 0, On: false}}
	if len(calls) != len(want) {
		t.Fatalf("signal calls: got %+v, want %+v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d: got %+v, want %+v", i, calls[i], want[i])
		}
	}
	// key 0 sleeps to 600 then to 1000; key 1 only to 1000
	wantSleeps := []tick.Tick{600, 1000, 1000}
	if len(fbClock.Sleeps) != len(wantSleeps) {
		t.Fatalf("sleeps: got %v, want %v", fbClock.Sleeps, wantSleeps)
	}
	for i := range wantSleeps {
		if fbClock.Sleeps[i] != wantSleeps[i] {
			t.Errorf("sleep %d: got %d, want %d", i, fbClock.Sleeps[i], wantSleeps[i])
		}
	}

	// The duration is not consumed by the coordinator.
	if got := p.store.Duration(0); got != 600 {
		t.Errorf("Duration(0) after cycle: got %d, want 600", got)
	}
}

// TestIntegrationNeverPressed: a key that is never active stays invalid and
// its LED is never driven.
func TestIntegrationNeverPressed(t *testing.T) {
	p := newPipeline(t, nil)
	p.pollUntil(4000)

	if len(p.pub.Events) != 0 {
		t.Errorf("expected no events, got %d", len(p.pub.Events))
	}

	fbClock := tick.NewStepClock(0)
	act := gpio.NewFakeActuator()
	c := feedback.New(1, p.store, act, fbClock)
	for deadline := feedback.CyclePeriod; deadline <= 4*feedback.CyclePeriod; deadline += feedback.CyclePeriod {
		if err := c.Cycle(context.Background(), deadline); err != nil {
			t.Fatalf("Cycle: %v", err)
		}
	}
	if calls := act.Calls(); len(calls) != 0 {
		t.Errorf("LED of never-pressed key was driven: %+v", calls)
	}
	if got := p.store.Duration(1); got != tick.Invalid {
		t.Errorf("Duration(1): got %d, want invalid", got)
	}
}

func TestIntegrationBounceRejection(t *testing.T) {
	// single active samples never confirm a press
	p := newPipeline(t, map[keys.Index][]bool{
		0: {true, false, true, false, false, true, false, false},
	})
	p.pollUntil(7 * keys.PollPeriod)

	if len(p.pub.Events) != 0 {
		t.Errorf("expected no events from bounces, got %d", len(p.pub.Events))
	}
	if got := p.engine.Counts(0).Presses; got != 0 {
		t.Errorf("Presses: got %d, want 0", got)
	}
}

func TestIntegrationIndependentKeys(t *testing.T) {
	p := newPipeline(t, map[keys.Index][]bool{
		0: heldScript(0, 4, 8),
		1: heldScript(2, 10, 12),
	})
	p.pollUntil(11 * keys.PollPeriod)

	if got := p.store.Duration(0); got != 4*keys.PollPeriod {
		t.Errorf("Duration(0): got %d, want %d", got, 4*keys.PollPeriod)
	}
	if got := p.store.Duration(1); got != 8*keys.PollPeriod {
		t.Errorf("Duration(1): got %d, want %d", got, 8*keys.PollPeriod)
	}
	if len(p.pub.Events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(p.pub.Events))
	}
}

func TestIntegrationPublishFailureDoesNotStopPolling(t *testing.T) {
	p := newPipeline(t, map[keys.Index][]bool{
		0: heldScript(0, 3, 6),
	})
	p.pub.PublishError = errors.New("broker down")
	p.pollUntil(5 * keys.PollPeriod)

	if len(p.errs) != 2 {
		t.Errorf("expected 2 publish errors, got %d", len(p.errs))
	}
	if got := p.store.Duration(0); got != 3*keys.PollPeriod {
		t.Errorf("Duration(0): got %d, want %d", got, 3*keys.PollPeriod)
	}
}

func TestIntegrationPayloadFormat(t *testing.T) {
	p := newPipeline(t, map[keys.Index][]bool{
		0: heldScript(0, 15, 18),
	})
	p.pollUntil(680)

	if len(p.pub.Payloads) != 2 {
		t.Fatalf("expected 2 payloads, got %d", len(p.pub.Payloads))
	}
	wantPress := `{"key":{"timestamp":"2026-01-01T12:00:00Z","event":"PRESS","index":0,"name":"TEC1","tick":40}}`
	if got := string(p.pub.Payloads[0]); got != wantPress {
		t.Errorf("press payload:\n got %s\nwant %s", got, wantPress)
	}
	wantRelease := `{"key":{"timestamp":"2026-01-01T12:00:00Z","event":"RELEASE","index":0,"name":"TEC1","tick":640,"duration_ms":600}}`
	if got := string(p.pub.Payloads[1]); got != wantRelease {
		t.Errorf("release payload:\n got %s\nwant %s", got, wantRelease)
	}
}

func TestIntegrationStatusSnapshotAfterHold(t *testing.T) {
	p := newPipeline(t, map[keys.Index][]bool{
		1: heldScript(0, 5, 8),
	})
	p.pollUntil(7 * keys.PollPeriod)

	tr := status.NewTracker(p.start, "boot-1", status.Config{}, p.store, p.engine)
	tr.RecordEvent(p.pub.Events[len(p.pub.Events)-1].Event, p.start)

	var sj status.StatusJSON
	if err := json.Unmarshal(status.FormatStatusEvent(tr.Snapshot(), "HEARTBEAT", ""), &sj); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	k := sj.Status.Keys[1]
	if k.DurationMs == nil || *k.DurationMs != uint32(5*keys.PollPeriod) {
		t.Errorf("key 1 duration: got %v, want %d", k.DurationMs, 5*keys.PollPeriod)
	}
	if k.Presses != 1 || k.Releases != 1 {
		t.Errorf("key 1 counts: got %d/%d", k.Presses, k.Releases)
	}
	if sj.Status.Keys[0].DurationMs != nil {
		t.Error("key 0 should have no duration")
	}
	if sj.Status.LastEvent == nil || sj.Status.LastEvent.Event != "RELEASE" {
		t.Errorf("LastEvent: got %+v", sj.Status.LastEvent)
	}
}
