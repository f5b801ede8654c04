package gate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sweeney/gate-controller/internal/gpio"
	"github.com/sweeney/gate-controller/internal/logic"
)

func levels(n int, v bool) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestSamplerTickDebounces(t *testing.T) {
	samples := append(levels(8, false), true, false, true)
	samples = append(samples, levels(8, true)...)
	r := gpio.NewFakeReader(samples)
	s := NewSampler(r, 0, nil)

	var got []bool
	for range samples {
		s.tick(func(level bool) { got = append(got, level) })
	}
	assert.Equal(t, []bool{false, true}, got)
}

func TestSamplerSkipsReadErrors(t *testing.T) {
	r := gpio.NewFakeReader([]bool{true})
	r.ReadError = errors.New("line gone")
	s := NewSampler(r, time.Millisecond, nil)

	calls := 0
	for i := 0; i < 20; i++ {
		s.tick(func(bool) { calls++ })
	}
	assert.Zero(t, calls)
	assert.True(t, s.failing)

	r.ReadError = nil
	for i := 0; i < 8; i++ {
		s.tick(func(bool) { calls++ })
	}
	assert.Equal(t, 1, calls)
	assert.False(t, s.failing)
}

func TestSamplerRun(t *testing.T) {
	r := gpio.NewFakeReader(append(levels(10, false), levels(10, true)...))
	s := NewSampler(r, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan bool, 4)
	go s.Run(ctx, func(level bool) { got <- level })

	for _, want := range []bool{false, true} {
		select {
		case level := <-got:
			assert.Equal(t, want, level)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for level %v", want)
		}
	}
}

type testService struct {
	svc    *Service
	stop   *gpio.FakeOutput
	pp     *gpio.FakeOutput
	status chan logic.Status
	cancel context.CancelFunc
	exited chan struct{}
}

func startService(t *testing.T) *testService {
	t.Helper()
	return startServiceWith(t, Config{})
}

func startServiceWith(t *testing.T, cfg Config) *testService {
	t.Helper()
	ts := &testService{
		stop:   gpio.NewFakeOutput(),
		pp:     gpio.NewFakeOutput(),
		status: make(chan logic.Status, 32),
		exited: make(chan struct{}),
	}
	cfg.Stop = ts.stop
	cfg.PP = ts.pp
	cfg.OnStatus = func(s logic.Status) { ts.status <- s }
	ts.svc = New(cfg)

	var ctx context.Context
	ctx, ts.cancel = context.WithCancel(context.Background())
	go func() {
		ts.svc.Run(ctx)
		close(ts.exited)
	}()
	t.Cleanup(ts.shutdown)
	return ts
}

func (ts *testService) shutdown() {
	ts.cancel()
	<-ts.exited
}

func (ts *testService) next(t *testing.T) logic.Status {
	t.Helper()
	select {
	case st := <-ts.status:
		return st
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for status")
		return logic.Status{}
	}
}

func TestServiceRunsInOrder(t *testing.T) {
	ts := startService(t)

	var order []int
	for i := 0; i < 20; i++ {
		i := i
		require.True(t, ts.svc.Submit(func(*logic.Controller) { order = append(order, i) }))
	}
	require.NoError(t, ts.svc.Do(context.Background(), func(*logic.Controller) {}))

	require.Len(t, order, 20)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestServicePushReleasesThroughLoop(t *testing.T) {
	ts := startService(t)

	require.NoError(t, ts.svc.Do(context.Background(), func(c *logic.Controller) { c.PPPush() }))
	st := ts.next(t)
	assert.True(t, st.Control.PPStrobe)
	assert.True(t, ts.pp.On())

	require.Eventually(t, func() bool { return !ts.pp.On() }, 2*time.Second, 10*time.Millisecond)

	got, err := ts.svc.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, got.Control.PPStrobe)
}

func TestServiceContactGoesIdle(t *testing.T) {
	ts := startService(t)

	ts.svc.OnContact(false)
	st := ts.next(t)
	require.True(t, st.Moving)

	st = ts.next(t)
	assert.False(t, st.Moving)
	assert.Equal(t, logic.DirOpen, st.Direction)
}

func TestServiceTimeAdjustment(t *testing.T) {
	ts := startService(t)

	before, err := ts.svc.Status(context.Background())
	require.NoError(t, err)

	ts.svc.OnTimeAdjustment(time.Minute)
	after, err := ts.svc.Status(context.Background())
	require.NoError(t, err)

	assert.Equal(t, time.Minute, after.Contact.Since.Sub(before.Contact.Since))
}

func TestServiceStopped(t *testing.T) {
	ts := startService(t)
	require.NoError(t, ts.svc.Do(context.Background(), func(c *logic.Controller) { c.StopHold() }))
	assert.True(t, ts.stop.On())

	ts.shutdown()

	assert.False(t, ts.stop.On(), "outputs must be released on shutdown")
	assert.False(t, ts.svc.Submit(func(*logic.Controller) {}))
	assert.ErrorIs(t, ts.svc.Do(context.Background(), func(*logic.Controller) {}), ErrStopped)
}

func TestServiceDoHonoursContext(t *testing.T) {
	svc := New(Config{Stop: gpio.NewFakeOutput(), PP: gpio.NewFakeOutput()})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Run was never started, so the queued work cannot complete.
	err := svc.Do(ctx, func(*logic.Controller) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// manualClock is a wall clock the test can step.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// scriptedSteps reports one queued step on the next poll.
type scriptedSteps struct {
	mu    sync.Mutex
	delta time.Duration
	polls int
}

func (s *scriptedSteps) step(d time.Duration) {
	s.mu.Lock()
	s.delta = d
	s.mu.Unlock()
}

func (s *scriptedSteps) Poll() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	d := s.delta
	s.delta = 0
	return d, d != 0
}

func TestServiceAppliesStepBeforeContact(t *testing.T) {
	clk := &manualClock{now: time.Date(2026, 6, 1, 7, 0, 0, 0, time.UTC)}
	steps := &scriptedSteps{}
	ts := startServiceWith(t, Config{Clock: clk.Now, Steps: steps, StepInterval: time.Hour})

	ts.svc.OnContact(false)
	ts.next(t)

	// The wall clock jumps 10s forward and one real second passes before
	// the next edge; the periodic poll has not run yet.
	clk.advance(10*time.Second + time.Second)
	steps.step(10 * time.Second)

	ts.svc.OnContact(true)
	st := ts.next(t)
	assert.Equal(t, time.Second, st.Contact.Lasted)
	assert.Equal(t, logic.ClickOpening, logic.Classify(st.Contact.Lasted))
}

func TestServicePollsStepsWhileIdle(t *testing.T) {
	clk := &manualClock{now: time.Date(2026, 6, 1, 7, 0, 0, 0, time.UTC)}
	steps := &scriptedSteps{}
	ts := startServiceWith(t, Config{Clock: clk.Now, Steps: steps, StepInterval: 5 * time.Millisecond})

	before, err := ts.svc.Status(context.Background())
	require.NoError(t, err)

	clk.advance(time.Minute)
	steps.step(time.Minute)

	require.Eventually(t, func() bool {
		st, err := ts.svc.Status(context.Background())
		return err == nil && st.Contact.Since.Sub(before.Contact.Since) == time.Minute
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSamplerHandoffDropsWhenFull(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewSampler(gpio.NewFakeReader([]bool{true}), 0, zap.New(core))

	levels := make(chan bool, 1)
	hand := s.handoff(levels)
	hand(false)
	hand(true)
	hand(false)

	assert.Equal(t, 2, s.dropped)
	assert.Equal(t, 1, logs.FilterMessage("sca handoff full, dropping level").Len())
	assert.False(t, <-levels)

	hand(true)
	assert.True(t, <-levels)
	drained := logs.FilterMessage("sca handoff drained").All()
	require.Len(t, drained, 1)
	assert.Equal(t, int64(2), drained[0].ContextMap()["dropped"])
}

func TestSamplerKeepsSamplingWhileConsumerBlocks(t *testing.T) {
	var samples []bool
	for i := 0; i < 2*HandoffSize+4; i++ {
		samples = append(samples, levels(8, i%2 == 0)...)
	}
	r := gpio.NewFakeReader(samples)
	core, logs := observer.New(zap.WarnLevel)
	s := NewSampler(r, time.Millisecond, zap.New(core))

	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	var delivered int
	var mu sync.Mutex
	done := make(chan struct{})
	go func() {
		s.Run(ctx, func(bool) {
			<-release
			mu.Lock()
			delivered++
			mu.Unlock()
		})
		close(done)
	}()

	require.Eventually(t, func() bool {
		return r.Consumed() == len(samples)-1
	}, 5*time.Second, time.Millisecond, "sampling stalled behind a blocked consumer")
	assert.Equal(t, 1, logs.FilterMessage("sca handoff full, dropping level").Len())

	close(release)
	cancel()
	<-done
	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, delivered, HandoffSize+1)
}
