package logic

import "time"

// Timer is a pending single-shot timer.
type Timer interface {
	// Stop prevents the timer from firing. It reports whether the timer was
	// still pending.
	Stop() bool
}

// Scheduler creates single-shot timers. Implementations must run fn on the
// controller goroutine.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// TimerSlot holds at most one pending timer. Arm always cancels the
// previous timer first.
//
// A generation counter guards against a timer whose callback was already
// queued when the slot was disarmed or re-armed: such a stale callback is
// dropped.
type TimerSlot struct {
	sched Scheduler
	timer Timer
	gen   uint64
}

// NewTimerSlot creates an empty slot backed by sched.
func NewTimerSlot(sched Scheduler) *TimerSlot {
	return &TimerSlot{sched: sched}
}

// Arm (re)schedules fn to run once after d.
func (s *TimerSlot) Arm(d time.Duration, fn func()) {
	s.Disarm()
	s.gen++
	gen := s.gen
	s.timer = s.sched.AfterFunc(d, func() {
		if s.timer == nil || s.gen != gen {
			return
		}
		s.timer = nil
		fn()
	})
}

// Disarm cancels the pending timer, if any.
func (s *TimerSlot) Disarm() {
	if s.timer == nil {
		return
	}
	s.timer.Stop()
	s.timer = nil
}

// Armed reports whether a timer is pending.
func (s *TimerSlot) Armed() bool {
	return s.timer != nil
}
