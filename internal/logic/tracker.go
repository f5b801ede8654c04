package logic

import (
	"time"

	"go.uber.org/zap"
)

// PredictFunc guesses the direction of a motion that just started from the
// direction the gate was last known to be in.
type PredictFunc func(previous Direction) Direction

// NaivePrediction assumes the gate reverses: a gate resting open will close
// and vice versa. It is sometimes wrong, e.g. after a manual partial
// reversal, and is overridden by the majority vote as clicks arrive.
func NaivePrediction(previous Direction) Direction {
	switch previous {
	case DirOpen:
		return DirClose
	case DirClose:
		return DirOpen
	default:
		return DirUnknown
	}
}

// MotionSession is the click evidence collected during one motion episode.
type MotionSession struct {
	Start  time.Time
	Total  int
	Counts [clickKindCount]int
}

// Majority returns the most frequent kind and its count. Ties go to the
// kind declared first.
func (m *MotionSession) Majority() (ClickKind, int) {
	most, count := ClickUnknown, 0
	for k, n := range m.Counts {
		if n > count {
			most, count = ClickKind(k), n
		}
	}
	return most, count
}

// MotionTracker is the Idle/Moving state machine. It mutates the Status it
// is handed and leaves emission to the caller.
type MotionTracker struct {
	predict PredictFunc
	session MotionSession
	log     *zap.Logger
}

// NewMotionTracker creates a tracker. A nil predict disables the start of
// motion guess, leaving the direction unknown until the vote decides.
func NewMotionTracker(predict PredictFunc, log *zap.Logger) *MotionTracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &MotionTracker{predict: predict, log: log}
}

// Session returns a copy of the current motion session.
func (t *MotionTracker) Session() MotionSession {
	return t.session
}

// Observe feeds one contact transition, already recorded in st.Contact.
func (t *MotionTracker) Observe(st *Status, now time.Time) {
	if !st.Moving {
		t.start(st, now)
		return
	}
	t.click(st)
}

func (t *MotionTracker) start(st *Status, now time.Time) {
	st.Moving = true
	st.Since = now
	t.session = MotionSession{Start: now}

	dir := DirUnknown
	if t.predict != nil {
		dir = t.predict(st.Direction)
	}
	st.Direction = dir
	t.log.Debug("now moving", zap.Stringer("dir", dir))
}

func (t *MotionTracker) click(st *Status) {
	kind := Classify(st.Contact.Lasted)
	t.session.Total++
	t.session.Counts[kind]++

	most, count := t.session.Majority()
	t.log.Info("click",
		zap.Stringer("kind", kind),
		zap.Duration("lasted", st.Contact.Lasted),
		zap.Stringer("most", most),
		zap.Int("count", count),
		zap.Int("total", t.session.Total))

	switch most {
	case ClickOpening, ClickClosing:
		if count*2 >= t.session.Total {
			if most == ClickOpening {
				st.Direction = DirOpen
			} else {
				st.Direction = DirClose
			}
		}
	case ClickUnknown:
		t.log.Warn("contact input makes no sense",
			zap.Int("unknown", count), zap.Int("total", t.session.Total))
	}
}

// Stop ends the motion. The resting contact level is ground truth for the
// final direction: contact open (true) means the gate is closed.
func (t *MotionTracker) Stop(st *Status, now time.Time) {
	st.Moving = false
	st.Direction = restingDirection(st.Contact.Is)
	st.Since = now
	t.log.Debug("stopped", zap.Stringer("dir", st.Direction),
		zap.Int("clicks", t.session.Total))
}

func restingDirection(level bool) Direction {
	if level {
		return DirClose
	}
	return DirOpen
}
