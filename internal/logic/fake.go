package logic

import (
	"sort"
	"time"
)

// FakeScheduler is a manual clock and scheduler for tests. Timers fire
// synchronously from Advance, in deadline order.
type FakeScheduler struct {
	now    time.Time
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	s       *FakeScheduler
	at      time.Time
	seq     int
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped {
		return false
	}
	t.stopped = true
	t.s.remove(t)
	return true
}

// NewFakeScheduler creates a FakeScheduler whose clock starts at start.
func NewFakeScheduler(start time.Time) *FakeScheduler {
	return &FakeScheduler{now: start}
}

// Now returns the fake current time. Usable as a Clock.
func (s *FakeScheduler) Now() time.Time {
	return s.now
}

// AfterFunc schedules fn at Now()+d.
func (s *FakeScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	s.seq++
	t := &fakeTimer{s: s, at: s.now.Add(d), seq: s.seq, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

// Pending returns the number of timers that have not fired or been stopped.
func (s *FakeScheduler) Pending() int {
	return len(s.timers)
}

// Advance moves the clock forward by d, firing every timer that comes due.
func (s *FakeScheduler) Advance(d time.Duration) {
	end := s.now.Add(d)
	for {
		sort.SliceStable(s.timers, func(i, j int) bool {
			if s.timers[i].at.Equal(s.timers[j].at) {
				return s.timers[i].seq < s.timers[j].seq
			}
			return s.timers[i].at.Before(s.timers[j].at)
		})
		if len(s.timers) == 0 || s.timers[0].at.After(end) {
			break
		}
		t := s.timers[0]
		s.timers = s.timers[1:]
		t.stopped = true
		s.now = t.at
		t.fn()
	}
	s.now = end
}

// Step jumps the clock like a wall-clock adjustment. Pending timers keep
// their remaining delay, as real timers run on the monotonic clock.
func (s *FakeScheduler) Step(d time.Duration) {
	s.now = s.now.Add(d)
	for _, t := range s.timers {
		t.at = t.at.Add(d)
	}
}

func (s *FakeScheduler) remove(t *fakeTimer) {
	for i, x := range s.timers {
		if x == t {
			s.timers = append(s.timers[:i], s.timers[i+1:]...)
			return
		}
	}
}
