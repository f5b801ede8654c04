package mqtt

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/sweeney/gate-controller/internal/logic"
	"github.com/sweeney/gate-controller/internal/status"
)

// maxPending bounds the snapshots queued between two flushes.
const maxPending = 32

// StatusPublisher publishes gate status snapshots off the service loop.
// Every status publish is followed by the lock state.
//
// A strobed snapshot is published exactly once. Consecutive plain snapshots
// collapse into the newest one. Re-sends (heartbeat, get_status) publish the
// settled form, so a strobe never reappears on the retained topic.
type StatusPublisher struct {
	client  Client
	topics  Topics
	log     *zap.Logger
	updates chan struct{}
	buttons func() uint32

	mu      sync.Mutex
	pending []logic.Status
	latest  logic.Status
	have    bool

	sendMu sync.Mutex // orders publishes from Run and re-sends
}

// NewStatusPublisher creates a publisher for topics.
func NewStatusPublisher(client Client, topics Topics, log *zap.Logger) *StatusPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &StatusPublisher{
		client:  client,
		topics:  topics,
		log:     log,
		updates: make(chan struct{}, 1),
	}
}

// CountButtons sets the source of the btn field. Without one it is 0.
func (p *StatusPublisher) CountButtons(fn func() uint32) {
	p.buttons = fn
}

// Notify queues st and wakes Run. It never blocks.
func (p *StatusPublisher) Notify(st logic.Status) {
	p.mu.Lock()
	n := len(p.pending)
	if n > 0 && !st.Strobed() && !p.pending[n-1].Strobed() {
		p.pending[n-1] = st
	} else {
		if n == maxPending {
			p.log.Warn("status queue full, dropping oldest")
			p.pending = append(p.pending[:0], p.pending[1:]...)
		}
		p.pending = append(p.pending, st)
	}
	p.latest = st.Settled()
	p.have = true
	p.mu.Unlock()

	select {
	case p.updates <- struct{}{}:
	default:
	}
}

// Run publishes notified updates until ctx is cancelled.
func (p *StatusPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.updates:
			p.Flush()
		}
	}
}

// Flush publishes every queued snapshot in order.
func (p *StatusPublisher) Flush() {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	for _, st := range p.take() {
		p.publish(st)
	}
}

func (p *StatusPublisher) take() []logic.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.pending
	p.pending = nil
	return out
}

// Latest returns the most recent settled status and whether there is one.
func (p *StatusPublisher) Latest() (logic.Status, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest, p.have
}

// PublishNow publishes the current status and lock state. Queued snapshots
// go out first; with none queued the settled latest status is re-sent.
// It does nothing before the first Notify.
func (p *StatusPublisher) PublishNow() {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	if queued := p.take(); len(queued) > 0 {
		for _, st := range queued {
			p.publish(st)
		}
		return
	}
	st, ok := p.Latest()
	if !ok {
		return
	}
	p.publish(st)
}

// PublishLock publishes the retained lock state of the latest status.
func (p *StatusPublisher) PublishLock() {
	st, _ := p.Latest()
	p.publishLock(st.Control.StopHold)
}

func (p *StatusPublisher) publish(st logic.Status) {
	var btn uint32
	if p.buttons != nil {
		btn = p.buttons()
	}
	payload := status.FormatGate(st, btn)
	p.log.Info("status", zap.ByteString("payload", payload))
	if err := p.client.Publish(p.topics.Status, 1, true, payload); err != nil {
		p.log.Warn("error publishing status", zap.Error(err))
	}
	p.publishLock(st.Control.StopHold)
}

func (p *StatusPublisher) publishLock(held bool) {
	lock := status.LockState(held)
	if err := p.client.Publish(p.topics.Lock, 1, true, []byte(lock)); err != nil {
		p.log.Warn("error publishing lock", zap.Error(err))
	}
}
