// Package logic contains the pure gate-tracking logic: debouncing the SCA
// contact, classifying blink durations, inferring motion and direction, and
// driving the STOP/PP pulse outputs.
// This package does no I/O of its own. Time, timers and output pins are
// injected, and every Controller method must be called from one goroutine.
package logic

import "time"

// Direction is the believed direction of travel (or resting side) of the gate.
type Direction int

const (
	DirUnknown Direction = iota
	DirOpen
	DirClose
)

func (d Direction) String() string {
	switch d {
	case DirUnknown:
		return "unknown"
	case DirOpen:
		return "open"
	case DirClose:
		return "close"
	default:
		return "_wtf_"
	}
}

// ContactStatus describes the debounced SCA contact.
type ContactStatus struct {
	// Is is the current level. true = contact open = gate closed.
	Is    bool
	Since time.Time

	// Was and Lasted describe the level before the last transition.
	Was    bool
	Lasted time.Duration
}

// ControlStatus holds the control output flags. The strobe flags are only
// ever true inside a single StatusFunc invocation.
type ControlStatus struct {
	StopHold   bool
	StopStrobe bool
	PPStrobe   bool
}

// Status is the complete externally visible gate state.
// It is a value type; StatusFunc receivers may keep it.
type Status struct {
	Contact   ContactStatus
	Time      time.Time // time of this snapshot
	Moving    bool
	Since     time.Time // start of the current moving/idle state
	Direction Direction
	Control   ControlStatus
}

// Strobed reports whether st is the one emission carrying a strobe.
func (st Status) Strobed() bool {
	return st.Control.StopStrobe || st.Control.PPStrobe
}

// Settled returns st with the strobe flags cleared. Anything that keeps a
// snapshot beyond its emission stores the settled form.
func (st Status) Settled() Status {
	st.Control.StopStrobe = false
	st.Control.PPStrobe = false
	return st
}

// StatusFunc receives a full snapshot after every state-affecting event.
// It runs synchronously on the controller goroutine and must not block.
type StatusFunc func(Status)

// Transition is a confirmed change of the SCA contact level.
type Transition struct {
	Level  bool
	Time   time.Time
	Lasted time.Duration // how long the previous level held
}

// Clock returns the current time.
type Clock func() time.Time

// Output drives a single control line.
type Output interface {
	Set(on bool) error
}
