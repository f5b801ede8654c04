package status

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/gate-controller/internal/logic"
)

// GateJSON is the gate status payload published on the status topic.
// Times are Unix seconds, durations seconds.
type GateJSON struct {
	Moving  bool        `json:"moving"`
	Since   float64     `json:"since"`
	Dir     string      `json:"dir"`
	Time    float64     `json:"time"`
	Control ControlJSON `json:"ctl"`
	SCA     SCAJSON     `json:"sca"`
	Btn     uint32      `json:"btn"`
}

// ControlJSON reports the control outputs. Stop and PP are strobes.
type ControlJSON struct {
	StopHold bool `json:"stop_hold"`
	Stop     bool `json:"stop"`
	PP       bool `json:"pp"`
}

// SCAJSON reports the debounced SCA contact.
type SCAJSON struct {
	Is     bool    `json:"is"`
	Since  float64 `json:"since"`
	Was    bool    `json:"was"`
	Lasted float64 `json:"lasted"`
}

// StatusJSON is the top-level JSON envelope for the HTTP status endpoint.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the daemon status details.
type StatusInner struct {
	Gate          GateJSON     `json:"gate"`
	Updates       int          `json:"updates"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	DeviceID       string `json:"device_id"`
	SamplePeriodMs int64  `json:"sample_period_ms"`
	HeartbeatMs    int64  `json:"heartbeat_ms"`
	Broker         string `json:"broker"`
	HTTPAddr       string `json:"http_addr"`
	PinSCA         int    `json:"pin_sca"`
	PinStop        int    `json:"pin_stop"`
	PinPP          int    `json:"pin_pp"`
	PinButton      int    `json:"pin_button"`
}

// unixSeconds renders t with two decimals; the zero time is 0.
func unixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return round2(float64(t.UnixNano()) / float64(time.Second))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// BuildGate converts a gate status and the button press count to its JSON
// form.
func BuildGate(st logic.Status, btn uint32) GateJSON {
	return GateJSON{
		Moving: st.Moving,
		Since:  unixSeconds(st.Since),
		Dir:    st.Direction.String(),
		Time:   unixSeconds(st.Time),
		Control: ControlJSON{
			StopHold: st.Control.StopHold,
			Stop:     st.Control.StopStrobe,
			PP:       st.Control.PPStrobe,
		},
		SCA: SCAJSON{
			Is:     st.Contact.Is,
			Since:  unixSeconds(st.Contact.Since),
			Was:    st.Contact.Was,
			Lasted: round2(st.Contact.Lasted.Seconds()),
		},
		Btn: btn,
	}
}

// FormatGate returns the status topic payload.
func FormatGate(st logic.Status, btn uint32) []byte {
	data, _ := json.Marshal(BuildGate(st, btn))
	return data
}

// LockState is the lock topic payload for a STOP hold flag.
func LockState(held bool) string {
	if held {
		return "ON"
	}
	return "OFF"
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Gate:          BuildGate(snap.Gate, snap.Buttons),
		Updates:       snap.Updates,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			DeviceID:       snap.Config.DeviceID,
			SamplePeriodMs: snap.Config.SamplePeriodMs,
			HeartbeatMs:    snap.Config.HeartbeatMs,
			Broker:         snap.Config.Broker,
			HTTPAddr:       snap.Config.HTTPAddr,
			PinSCA:         snap.Config.PinSCA,
			PinStop:        snap.Config.PinStop,
			PinPP:          snap.Config.PinPP,
			PinButton:      snap.Config.PinButton,
		},
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the indented JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}
