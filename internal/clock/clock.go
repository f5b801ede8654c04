// Package clock provides wall-clock time for the gate core and detects
// wall-clock steps (NTP corrections, manual date changes).
package clock

import (
	"time"

	"go.uber.org/zap"
)

// Defaults for the step watcher.
const (
	DefaultInterval  = time.Second
	DefaultThreshold = 500 * time.Millisecond
)

// Wall returns the current time with the monotonic reading stripped, so
// differences between Wall values follow wall-clock steps.
func Wall() time.Time {
	return time.Now().Round(0)
}

// Watcher reports wall-clock steps by comparing elapsed wall time against
// elapsed monotonic time.
type Watcher struct {
	interval  time.Duration
	threshold time.Duration
	log       *zap.Logger

	start    time.Time // monotonic origin
	lastWall time.Time
	lastMono time.Duration
	primed   bool
}

// NewWatcher creates a Watcher. Non-positive values select the defaults.
// The first observation only primes it.
func NewWatcher(interval, threshold time.Duration, log *zap.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{interval: interval, threshold: threshold, log: log, start: time.Now()}
}

// Check records one observation. wall is a wall-clock reading and mono a
// monotonic offset taken at the same instant. It returns the step since the
// previous observation if it exceeds the threshold.
func (w *Watcher) Check(wall time.Time, mono time.Duration) (time.Duration, bool) {
	defer func() {
		w.lastWall, w.lastMono, w.primed = wall, mono, true
	}()
	if !w.primed {
		return 0, false
	}

	delta := wall.Sub(w.lastWall) - (mono - w.lastMono)
	if delta < w.threshold && delta > -w.threshold {
		return 0, false
	}
	return delta, true
}

// Poll checks the clock now. It is not safe for concurrent use; the gate
// service calls it from its loop on every tick and before every contact
// change, so a step is always applied before the next duration is measured.
func (w *Watcher) Poll() (time.Duration, bool) {
	delta, ok := w.Check(Wall(), time.Since(w.start))
	if ok {
		w.log.Info("wall clock stepped", zap.Duration("delta", delta))
	}
	return delta, ok
}

// Interval is how often the watcher should be polled when idle.
func (w *Watcher) Interval() time.Duration {
	return w.interval
}
