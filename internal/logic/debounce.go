package logic

// DebounceWidth is the number of consecutive identical samples needed to
// confirm a level.
const DebounceWidth = 8

// seed is the initial register content: alternating bits, so no level can
// be confirmed before DebounceWidth real samples have been shifted in.
const seed uint8 = 0xaa

type confirmed int8

const (
	levelUnknown confirmed = iota - 1
	levelLow
	levelHigh
)

// Debouncer confirms a raw input level once DebounceWidth consecutive
// samples agree. It is meant to be driven by the sampling tick and holds
// nothing but the shift register and the last confirmed level.
type Debouncer struct {
	samples uint8
	last    confirmed
}

// NewDebouncer creates a Debouncer with no confirmed level.
func NewDebouncer() *Debouncer {
	return &Debouncer{samples: seed, last: levelUnknown}
}

// Sample shifts in one raw reading. It reports changed=true exactly once
// per confirmed level change, together with the new level.
func (d *Debouncer) Sample(raw bool) (level bool, changed bool) {
	d.samples <<= 1
	if raw {
		d.samples |= 1
	}

	var now confirmed
	switch d.samples {
	case 0xff:
		now = levelHigh
	case 0x00:
		now = levelLow
	default:
		// no stable state
		return false, false
	}

	if now == d.last {
		return false, false
	}
	d.last = now
	return now == levelHigh, true
}

// Level returns the last confirmed level and whether one has been confirmed.
func (d *Debouncer) Level() (level bool, ok bool) {
	return d.last == levelHigh, d.last != levelUnknown
}
