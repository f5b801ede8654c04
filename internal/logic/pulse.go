package logic

import (
	"time"

	"go.uber.org/zap"
)

// PushDuration is how long a pushed output stays asserted.
const PushDuration = 250 * time.Millisecond

// PulseActuator drives one control output with timed pushes and an optional
// persistent hold. While held, no release timer is ever pending and the
// output stays asserted.
type PulseActuator struct {
	name    string
	out     Output
	release *TimerSlot
	held    bool
	log     *zap.Logger
}

// NewPulseActuator creates an actuator for out.
func NewPulseActuator(name string, out Output, sched Scheduler, log *zap.Logger) *PulseActuator {
	if log == nil {
		log = zap.NewNop()
	}
	return &PulseActuator{
		name:    name,
		out:     out,
		release: NewTimerSlot(sched),
		log:     log.With(zap.String("output", name)),
	}
}

// Push asserts the output and, unless held, (re)arms the auto-release.
// Repeated pushes extend the active window.
func (p *PulseActuator) Push() {
	p.set(true)
	if !p.held {
		p.release.Arm(PushDuration, func() { p.set(false) })
	}
}

// Hold asserts the output until Release. It reports whether the hold state
// changed.
func (p *PulseActuator) Hold() bool {
	changed := !p.held
	p.held = true
	p.set(true)
	p.release.Disarm()
	return changed
}

// Release ends a hold. A pending push is left to expire on its own.
// It reports whether the hold state changed.
func (p *PulseActuator) Release() bool {
	changed := p.held
	p.held = false
	if !p.Pending() {
		p.set(false)
	}
	return changed
}

// Held reports whether a hold is active.
func (p *PulseActuator) Held() bool {
	return p.held
}

// Pending reports whether an auto-release is scheduled.
func (p *PulseActuator) Pending() bool {
	return p.release.Armed()
}

// Reset drops any hold or pending release and drives the output low.
func (p *PulseActuator) Reset() {
	p.release.Disarm()
	p.held = false
	p.set(false)
}

func (p *PulseActuator) set(on bool) {
	if err := p.out.Set(on); err != nil {
		p.log.Error("output write failed", zap.Bool("on", on), zap.Error(err))
	}
}
