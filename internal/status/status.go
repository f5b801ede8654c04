// Package status provides a thread-safe status tracker for the
// gate-controller daemon. It is read by HTTP handlers and the heartbeat.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/gate-controller/internal/logic"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	DeviceID       string
	SamplePeriodMs int64
	HeartbeatMs    int64
	Broker         string
	HTTPAddr       string
	PinSCA         int
	PinStop        int
	PinPP          int
	PinButton      int // -1 when no button is wired
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Gate          logic.Status
	Updates       int // number of gate status updates since start
	Buttons       uint32
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu      sync.RWMutex
	snap    Snapshot
	buttons func() uint32
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update stores the latest gate status with its strobes cleared.
// Called from the controller goroutine on every status emission.
func (t *Tracker) Update(gate logic.Status) {
	t.mu.Lock()
	t.snap.Gate = gate.Settled()
	t.snap.Updates++
	t.mu.Unlock()
}

// CountButtons sets the source of Snapshot.Buttons.
func (t *Tracker) CountButtons(fn func() uint32) {
	t.mu.Lock()
	t.buttons = fn
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	buttons := t.buttons
	t.mu.RUnlock()
	s.Now = time.Now()
	if buttons != nil {
		s.Buttons = buttons()
	}
	if s.Network != nil {
		n := *s.Network
		s.Network = &n
	}
	return s
}
