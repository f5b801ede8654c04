// Package gpio provides the gate's GPIO lines with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Reader reads the SCA contact input.
type Reader interface {
	// Read returns the raw SCA level. true = HIGH = contact open.
	Read() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Output drives a single control line (STOP or PP).
type Output interface {
	// Set drives the line. true = asserted.
	Set(on bool) error
}

// Pin definitions (BCM numbering)
const (
	DefaultPinSCA  = 4
	DefaultPinStop = 5
	DefaultPinPP   = 12

	// DefaultPinButton disables the user button.
	DefaultPinButton = -1
)

// DefaultChip is the GPIO character device on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// Pins selects the chip and line offsets used by the gate.
type Pins struct {
	Chip string
	SCA  int
	Stop int
	PP   int

	// Button is the optional user button input; negative disables it.
	Button int
}

// DefaultPins returns the stock wiring.
func DefaultPins() Pins {
	return Pins{
		Chip:   DefaultChip,
		SCA:    DefaultPinSCA,
		Stop:   DefaultPinStop,
		PP:     DefaultPinPP,
		Button: DefaultPinButton,
	}
}
