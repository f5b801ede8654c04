// Package gate runs the gate controller on a single goroutine and connects
// it to real time, timers and the SCA sampler.
package gate

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/gate-controller/internal/logic"
)

// DefaultQueueSize bounds the number of pending events.
const DefaultQueueSize = 64

// ErrStopped is returned when work is submitted after Run has returned.
var ErrStopped = errors.New("gate: service stopped")

// Config wires a Service.
type Config struct {
	Clock    logic.Clock // defaults to time.Now
	Stop     logic.Output
	PP       logic.Output
	OnStatus logic.StatusFunc
	Logger   *zap.Logger

	// Predict overrides the start-of-motion guess when set.
	Predict logic.PredictFunc

	// Steps, if set, is polled for wall clock steps on the loop: every
	// StepInterval and before each contact change.
	Steps        StepDetector
	StepInterval time.Duration

	QueueSize int
}

// StepDetector reports a wall clock step since its previous poll.
type StepDetector interface {
	Poll() (delta time.Duration, stepped bool)
}

// Service owns a logic.Controller and serializes every access to it through
// one FIFO queue drained by Run.
type Service struct {
	queue chan func()
	done  chan struct{}
	ctrl  *logic.Controller
	log   *zap.Logger

	steps        StepDetector
	stepInterval time.Duration
}

// New creates a Service. Nothing runs until Run is called.
func New(cfg Config) *Service {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.StepInterval <= 0 {
		cfg.StepInterval = time.Second
	}

	s := &Service{
		queue: make(chan func(), cfg.QueueSize),
		done:  make(chan struct{}),
		log:   cfg.Logger,

		steps:        cfg.Steps,
		stepInterval: cfg.StepInterval,
	}

	opts := []logic.Option{logic.WithLogger(cfg.Logger)}
	if cfg.Predict != nil {
		opts = append(opts, logic.WithPrediction(cfg.Predict))
	}
	s.ctrl = logic.NewController(cfg.Clock, loopScheduler{s}, cfg.Stop, cfg.PP, cfg.OnStatus, opts...)
	return s
}

// Run drains the queue until ctx is cancelled, then cancels all timers and
// drives the outputs low.
func (s *Service) Run(ctx context.Context) {
	defer func() {
		close(s.done)
		s.ctrl.Close()
	}()

	var poll <-chan time.Time
	if s.steps != nil {
		ticker := time.NewTicker(s.stepInterval)
		defer ticker.Stop()
		poll = ticker.C
		s.syncClock()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-poll:
			s.syncClock()
		case fn := <-s.queue:
			fn()
		}
	}
}

// syncClock applies a pending wall clock step. Runs on the loop.
func (s *Service) syncClock() {
	if s.steps == nil {
		return
	}
	if delta, ok := s.steps.Poll(); ok {
		s.ctrl.OnTimeAdjustment(delta)
	}
}

// Submit queues fn to run on the controller goroutine. It blocks while the
// queue is full and reports false once the service has stopped.
func (s *Service) Submit(fn func(c *logic.Controller)) bool {
	return s.post(func() { fn(s.ctrl) })
}

// Do runs fn on the controller goroutine and waits for it to finish.
func (s *Service) Do(ctx context.Context, fn func(c *logic.Controller)) error {
	finished := make(chan struct{})
	if !s.post(func() {
		fn(s.ctrl)
		close(finished)
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the controller status, read on the controller goroutine.
func (s *Service) Status(ctx context.Context) (logic.Status, error) {
	var st logic.Status
	err := s.Do(ctx, func(c *logic.Controller) { st = c.Status() })
	return st, err
}

// OnContact queues a confirmed SCA level. Any wall clock step is applied
// first, so the previous level's duration never spans an uncorrected step.
func (s *Service) OnContact(level bool) {
	if !s.Submit(func(c *logic.Controller) {
		s.syncClock()
		c.OnContact(level)
	}) {
		s.log.Debug("contact change after stop", zap.Bool("level", level))
	}
}

// OnTimeAdjustment queues a wall-clock step correction.
func (s *Service) OnTimeAdjustment(delta time.Duration) {
	s.Submit(func(c *logic.Controller) { c.OnTimeAdjustment(delta) })
}

func (s *Service) post(fn func()) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.queue <- fn:
		return true
	case <-s.done:
		return false
	}
}

// loopScheduler runs timer callbacks through the service queue.
type loopScheduler struct {
	s *Service
}

func (l loopScheduler) AfterFunc(d time.Duration, fn func()) logic.Timer {
	return time.AfterFunc(d, func() { l.s.post(fn) })
}
