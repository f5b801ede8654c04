package gate

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/gate-controller/internal/gpio"
	"github.com/sweeney/gate-controller/internal/logic"
)

// DefaultSamplePeriod is the SCA sampling period.
const DefaultSamplePeriod = 4 * time.Millisecond

// HandoffSize bounds the confirmed levels waiting for onLevel. A level needs
// at least eight samples, so a full handoff means the consumer has been stuck
// for well over 16 * 8 sample periods.
const HandoffSize = 16

// Sampler polls the SCA input on a fixed period and debounces it. It touches
// nothing but its own Debouncer; confirmed levels are handed to onLevel.
//
// Sampling never waits for onLevel. When the handoff is full the level is
// dropped and a warning logged once until it drains again.
type Sampler struct {
	reader gpio.Reader
	period time.Duration
	deb    *logic.Debouncer
	log    *zap.Logger

	failing   bool
	saturated bool
	dropped   int
}

// NewSampler creates a Sampler. A non-positive period selects
// DefaultSamplePeriod.
func NewSampler(reader gpio.Reader, period time.Duration, log *zap.Logger) *Sampler {
	if period <= 0 {
		period = DefaultSamplePeriod
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sampler{reader: reader, period: period, deb: logic.NewDebouncer(), log: log}
}

// Run samples until ctx is cancelled. onLevel runs on a separate goroutine,
// in order; Run returns once it has finished.
func (s *Sampler) Run(ctx context.Context, onLevel func(level bool)) {
	levels := make(chan bool, HandoffSize)
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for {
			select {
			case <-ctx.Done():
				return
			case level := <-levels:
				onLevel(level)
			}
		}
	}()
	defer func() { <-forwarded }()

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	hand := s.handoff(levels)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(hand)
		}
	}
}

// handoff returns a non-blocking sender into levels.
func (s *Sampler) handoff(levels chan<- bool) func(level bool) {
	return func(level bool) {
		select {
		case levels <- level:
			if s.saturated {
				s.log.Info("sca handoff drained", zap.Int("dropped", s.dropped))
				s.saturated = false
			}
		default:
			s.dropped++
			if !s.saturated {
				s.log.Warn("sca handoff full, dropping level", zap.Bool("level", level))
				s.saturated = true
			}
		}
	}
}

func (s *Sampler) tick(onLevel func(level bool)) {
	raw, err := s.reader.Read()
	if err != nil {
		// log the first failure of a run only; the tick rate would flood the log
		if !s.failing {
			s.log.Error("sca read failed", zap.Error(err))
			s.failing = true
		}
		return
	}
	if s.failing {
		s.log.Info("sca read recovered")
		s.failing = false
	}

	if level, changed := s.deb.Sample(raw); changed {
		onLevel(level)
	}
}
