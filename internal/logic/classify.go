package logic

import "time"

// Nominal SCA timings.
const (
	OpeningHalfPeriod = 1000 * time.Millisecond
	ClosingHalfPeriod = 500 * time.Millisecond
	BlinkTimeout      = 1250 * time.Millisecond

	// clickTolerance is the accepted relative deviation from a half period.
	clickTolerance = 0.1
)

// ClickKind is the meaning of one observed contact level duration.
// The declaration order is also the majority-vote tie-break order.
type ClickKind int

const (
	ClickUnknown ClickKind = iota
	ClickOpening
	ClickClosing
	ClickStopped

	clickKindCount
)

func (k ClickKind) String() string {
	switch k {
	case ClickUnknown:
		return "unknown"
	case ClickOpening:
		return "opening"
	case ClickClosing:
		return "closing"
	case ClickStopped:
		return "stopped"
	default:
		return "invalid"
	}
}

func within(val, nom time.Duration, tolerance float64) bool {
	diff := val - nom
	if diff < 0 {
		diff = -diff
	}
	return float64(diff) < float64(nom)*tolerance
}

// Classify maps a level duration to a ClickKind. Opening is matched first.
func Classify(d time.Duration) ClickKind {
	switch {
	case within(d, OpeningHalfPeriod, clickTolerance):
		return ClickOpening
	case within(d, ClosingHalfPeriod, clickTolerance):
		return ClickClosing
	case d > BlinkTimeout:
		return ClickStopped
	default:
		return ClickUnknown
	}
}
