package internal

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sweeney/gate-controller/internal/gpio"
	"github.com/sweeney/gate-controller/internal/logic"
	"github.com/sweeney/gate-controller/internal/mqtt"
	"github.com/sweeney/gate-controller/internal/status"
)

const tick = 4 * time.Millisecond

// rig wires the real debouncer, controller, publisher and command handler
// to fakes, driven by a manual clock so every run is deterministic.
type rig struct {
	sched   *logic.FakeScheduler
	deb     *logic.Debouncer
	ctl     *logic.Controller
	stop    *gpio.FakeOutput
	pp      *gpio.FakeOutput
	client  *mqtt.FakeClient
	topics  mqtt.Topics
	tracker *status.Tracker
	cmd     *mqtt.Commander
}

// syncGate runs commands inline; the rig is single threaded.
type syncGate struct{ ctl *logic.Controller }

func (g syncGate) Do(_ context.Context, fn func(c *logic.Controller)) error {
	fn(g.ctl)
	return nil
}

func newRig(t *testing.T) *rig {
	t.Helper()
	start := time.Date(2026, 5, 4, 18, 30, 0, 0, time.UTC)
	r := &rig{
		sched:   logic.NewFakeScheduler(start),
		deb:     logic.NewDebouncer(),
		stop:    gpio.NewFakeOutput(),
		pp:      gpio.NewFakeOutput(),
		client:  mqtt.NewFakeClient(),
		topics:  mqtt.NewTopics("gate1"),
		tracker: status.NewTracker(start, status.Config{DeviceID: "gate1"}),
	}
	pub := mqtt.NewStatusPublisher(r.client, r.topics, nil)
	r.ctl = logic.NewController(r.sched.Now, r.sched, r.stop, r.pp, func(st logic.Status) {
		r.tracker.Update(st)
		pub.Notify(st)
		pub.Flush()
	})
	r.cmd = mqtt.NewCommander(syncGate{r.ctl}, r.client, r.topics, pub, nil)
	if err := r.cmd.Subscribe(); err != nil {
		t.Fatal(err)
	}
	return r
}

// hold samples the raw SCA level every tick for d.
func (r *rig) hold(level bool, d time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += tick {
		r.sched.Advance(tick)
		if confirmed, changed := r.deb.Sample(level); changed {
			r.ctl.OnContact(confirmed)
		}
	}
}

// blink toggles the lamp n times with the given half period, starting low.
func (r *rig) blink(half time.Duration, n int) {
	level := false
	for i := 0; i < n; i++ {
		r.hold(level, half)
		level = !level
	}
}

type gatePayload struct {
	Moving bool    `json:"moving"`
	Dir    string  `json:"dir"`
	Since  float64 `json:"since"`
	Time   float64 `json:"time"`
	Ctl    struct {
		StopHold bool `json:"stop_hold"`
		Stop     bool `json:"stop"`
		PP       bool `json:"pp"`
	} `json:"ctl"`
	SCA struct {
		Is     bool    `json:"is"`
		Was    bool    `json:"was"`
		Lasted float64 `json:"lasted"`
	} `json:"sca"`
}

func (r *rig) statuses(t *testing.T) []gatePayload {
	t.Helper()
	var out []gatePayload
	for _, m := range r.client.Messages(r.topics.Status) {
		if !m.Retained || m.QoS != 1 {
			t.Errorf("status must be retained qos 1: %+v", m)
		}
		var p gatePayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			t.Fatalf("invalid status JSON %s: %v", m.Payload, err)
		}
		out = append(out, p)
	}
	return out
}

func (r *rig) last(t *testing.T) gatePayload {
	t.Helper()
	all := r.statuses(t)
	if len(all) == 0 {
		t.Fatal("no status published")
	}
	return all[len(all)-1]
}

// TestIntegrationOpenCycle tests a full opening from a closed gate.
func TestIntegrationOpenCycle(t *testing.T) {
	r := newRig(t)

	// Closed gate, lamp off (contact high)
	r.hold(true, 200*time.Millisecond)
	if n := len(r.client.Published); n != 0 {
		t.Fatalf("resting contact should not publish, got %d messages", n)
	}

	r.blink(logic.OpeningHalfPeriod, 7)
	p := r.last(t)
	if !p.Moving || p.Dir != "open" {
		t.Errorf("while opening: got moving=%v dir=%s", p.Moving, p.Dir)
	}
	if p.SCA.Lasted < 0.95 || p.SCA.Lasted > 1.05 {
		t.Errorf("sca.lasted: got %v, want about 1", p.SCA.Lasted)
	}

	// Fully open: lamp stays on (contact low)
	r.hold(false, 2*time.Second)
	p = r.last(t)
	if p.Moving {
		t.Error("gate should be idle after the blink timeout")
	}
	if p.Dir != "open" {
		t.Errorf("dir: got %s, want open", p.Dir)
	}
	if r.tracker.Snapshot().Gate.Moving {
		t.Error("tracker should agree the gate is idle")
	}

	// Every status is followed by the lock state
	if s, l := len(r.client.Messages(r.topics.Status)), len(r.client.Messages(r.topics.Lock)); s != l {
		t.Errorf("status/lock publishes: %d/%d", s, l)
	}
}

// TestIntegrationCloseCycle tests that an open gate closes with fast blinks
// and settles with the lamp off.
func TestIntegrationCloseCycle(t *testing.T) {
	r := newRig(t)
	r.hold(true, 200*time.Millisecond)
	r.blink(logic.OpeningHalfPeriod, 5)
	r.hold(false, 2*time.Second)
	if p := r.last(t); p.Dir != "open" || p.Moving {
		t.Fatalf("setup: expected idle open, got %+v", p)
	}

	// Closing starts from the lamp on, so the first edge is a rise.
	level := true
	for i := 0; i < 9; i++ {
		r.hold(level, logic.ClosingHalfPeriod)
		level = !level
	}
	p := r.last(t)
	if !p.Moving || p.Dir != "close" {
		t.Errorf("while closing: got moving=%v dir=%s", p.Moving, p.Dir)
	}

	r.hold(true, 2*time.Second)
	p = r.last(t)
	if p.Moving || p.Dir != "close" {
		t.Errorf("after closing: got moving=%v dir=%s", p.Moving, p.Dir)
	}
}

func TestIntegrationBounceRejection(t *testing.T) {
	r := newRig(t)
	r.hold(true, 200*time.Millisecond)

	// Contact chatter shorter than the debounce window
	for i := 0; i < 50; i++ {
		r.hold(false, 2*tick)
		r.hold(true, 2*tick)
	}
	if n := len(r.statuses(t)); n != 0 {
		t.Errorf("bounces should not produce status, got %d", n)
	}
	if st := r.ctl.Status(); st.Moving {
		t.Error("gate should not be moving")
	}
}

func TestIntegrationStoppedMidway(t *testing.T) {
	r := newRig(t)
	r.hold(true, 200*time.Millisecond)
	r.blink(logic.OpeningHalfPeriod, 4)

	// Stopped with the lamp steady off
	r.hold(true, 3*time.Second)
	p := r.last(t)
	if p.Moving {
		t.Error("gate should be idle")
	}
	if p.Dir != "close" {
		t.Errorf("resting with lamp off reads as closed: got %s", p.Dir)
	}
}

func TestIntegrationCommands(t *testing.T) {
	r := newRig(t)
	r.hold(true, 200*time.Millisecond)

	if err := r.client.Deliver(r.topics.Command, []byte(`{"cmd":"pp_push","req_id":42}`)); err != nil {
		t.Fatal(err)
	}
	if !r.pp.On() {
		t.Error("PP should be asserted")
	}
	p := r.last(t)
	if !p.Ctl.PP {
		t.Error("pp strobe should be set in the emitted status")
	}

	r.hold(true, logic.PushDuration+tick)
	if r.pp.On() {
		t.Error("PP should be released")
	}
	if r.ctl.Status().Control.PPStrobe {
		t.Error("pp strobe must not persist")
	}
	if r.tracker.Snapshot().Gate.Control.PPStrobe {
		t.Error("tracker should keep the settled status")
	}

	resp := r.client.Messages(r.topics.Response)
	if len(resp) != 1 || string(resp[0].Payload) != `{"req_id":42,"cmd":"pp_push","resp":true}` {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestIntegrationLockHoldsStop(t *testing.T) {
	r := newRig(t)
	r.hold(true, 200*time.Millisecond)

	if err := r.client.Deliver(r.topics.LockCommand, []byte("ON")); err != nil {
		t.Fatal(err)
	}
	// A push while held must not release STOP
	if err := r.client.Deliver(r.topics.Command, []byte(`{"cmd":"stop_push","req_id":1}`)); err != nil {
		t.Fatal(err)
	}
	r.hold(true, time.Second)
	if !r.stop.On() {
		t.Fatal("STOP should stay held")
	}
	lock := r.client.Messages(r.topics.Lock)
	if len(lock) == 0 || string(lock[len(lock)-1].Payload) != "ON" {
		t.Errorf("expected lock ON, got %+v", lock)
	}

	if err := r.client.Deliver(r.topics.LockCommand, []byte("off")); err != nil {
		t.Fatal(err)
	}
	if r.stop.On() {
		t.Error("STOP should be released")
	}
	lock = r.client.Messages(r.topics.Lock)
	if string(lock[len(lock)-1].Payload) != "OFF" {
		t.Errorf("expected lock OFF, got %s", lock[len(lock)-1].Payload)
	}
}

func TestIntegrationClockStepDuringMotion(t *testing.T) {
	r := newRig(t)
	r.hold(true, 200*time.Millisecond)
	r.blink(logic.OpeningHalfPeriod, 3)

	// Wall clock jumps an hour forward mid blink
	r.hold(true, 500*time.Millisecond)
	r.sched.Step(time.Hour)
	r.ctl.OnTimeAdjustment(time.Hour)
	r.hold(true, 500*time.Millisecond)
	r.hold(false, 100*time.Millisecond)

	p := r.last(t)
	if p.SCA.Lasted < 0.95 || p.SCA.Lasted > 1.05 {
		t.Errorf("sca.lasted across the step: got %v, want about 1", p.SCA.Lasted)
	}
	if !p.Moving || p.Dir != "open" {
		t.Errorf("motion should continue: got moving=%v dir=%s", p.Moving, p.Dir)
	}
}
