package logic

import (
	"time"

	"go.uber.org/zap"
)

// Controller owns the gate Status and every component that mutates it.
// It is not safe for concurrent use.
type Controller struct {
	now      Clock
	onStatus StatusFunc
	log      *zap.Logger

	status  Status
	tracker *MotionTracker
	idle    *TimerSlot
	stop    *PulseActuator
	pp      *PulseActuator
}

type options struct {
	log     *zap.Logger
	predict PredictFunc
}

// Option configures a Controller.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithPrediction replaces the start-of-motion direction guess. nil disables
// it. The default is NaivePrediction.
func WithPrediction(p PredictFunc) Option {
	return func(o *options) { o.predict = p }
}

// NewController creates a Controller with the gate assumed closed (contact
// open) and direction unknown. Both outputs are driven low.
func NewController(clock Clock, sched Scheduler, stop, pp Output, onStatus StatusFunc, opts ...Option) *Controller {
	o := options{log: zap.NewNop(), predict: NaivePrediction}
	for _, opt := range opts {
		opt(&o)
	}

	now := clock()
	c := &Controller{
		now:      clock,
		onStatus: onStatus,
		log:      o.log,
		tracker:  NewMotionTracker(o.predict, o.log),
		idle:     NewTimerSlot(sched),
		stop:     NewPulseActuator("stop", stop, sched, o.log),
		pp:       NewPulseActuator("pp", pp, sched, o.log),
	}
	c.status = Status{
		Contact: ContactStatus{Is: true, Since: now},
		Time:    now,
		Since:   now,
	}
	c.stop.Reset()
	c.pp.Reset()
	return c
}

// Status returns the current snapshot.
func (c *Controller) Status() Status {
	return c.status
}

// Session returns the evidence of the current (or last) motion episode.
func (c *Controller) Session() MotionSession {
	return c.tracker.Session()
}

// OnContact records a confirmed SCA level.
func (c *Controller) OnContact(level bool) {
	st := &c.status
	if st.Contact.Is == level {
		c.log.Warn("repeated contact level", zap.Bool("is", level))
		if st.Direction == DirUnknown {
			st.Direction = restingDirection(level)
		}
		return
	}

	now := c.now()
	c.idle.Arm(BlinkTimeout, c.onIdle)

	st.Contact.Was = st.Contact.Is
	st.Contact.Lasted = now.Sub(st.Contact.Since)
	st.Contact.Is = level
	st.Contact.Since = now

	tr := c.Transition()
	c.log.Debug("contact", zap.Bool("level", tr.Level), zap.Duration("lasted", tr.Lasted))

	c.tracker.Observe(st, now)
	c.emit(now)
}

// Transition returns the last recorded contact change.
func (c *Controller) Transition() Transition {
	return Transition{
		Level:  c.status.Contact.Is,
		Time:   c.status.Contact.Since,
		Lasted: c.status.Contact.Lasted,
	}
}

func (c *Controller) onIdle() {
	now := c.now()
	c.tracker.Stop(&c.status, now)
	c.emit(now)
}

// OnTimeAdjustment shifts the recorded contact timestamp by delta after the
// wall clock was stepped, so the next duration is measured correctly.
func (c *Controller) OnTimeAdjustment(delta time.Duration) {
	c.status.Contact.Since = c.status.Contact.Since.Add(delta)
	c.log.Info("time adjusted", zap.Duration("delta", delta))
}

// StopPush pulses the STOP output once.
func (c *Controller) StopPush() {
	c.stop.Push()
	c.strobe(&c.status.Control.StopStrobe)
}

// StopHold keeps STOP asserted until StopRelease.
func (c *Controller) StopHold() {
	if c.stop.Hold() {
		c.status.Control.StopHold = true
		c.emit(c.now())
	}
}

// StopRelease ends a StopHold.
func (c *Controller) StopRelease() {
	if c.stop.Release() {
		c.status.Control.StopHold = false
		c.emit(c.now())
	}
}

// PPPush pulses the PP (step-by-step) output once.
func (c *Controller) PPPush() {
	c.pp.Push()
	c.strobe(&c.status.Control.PPStrobe)
}

// Close cancels all timers and drives both outputs low.
func (c *Controller) Close() {
	c.idle.Disarm()
	c.stop.Reset()
	c.pp.Reset()
	c.status.Control.StopHold = c.stop.Held()
}

// strobe raises flag for exactly one emission.
func (c *Controller) strobe(flag *bool) {
	*flag = true
	c.emit(c.now())
	*flag = false
}

func (c *Controller) emit(now time.Time) {
	c.status.Time = now
	if c.onStatus != nil {
		c.onStatus(c.status)
	}
}
