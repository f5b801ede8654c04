//go:build linux

package gpio

import (
	"fmt"
	"io"

	"github.com/warthog618/go-gpiocdev"
)

// Lines holds the gate's GPIO lines on actual hardware using the Linux GPIO
// character device.
type Lines struct {
	chip *gpiocdev.Chip
	sca  *gpiocdev.Line
	stop *RealOutput
	pp   *RealOutput
}

// RealOutput is one output line.
type RealOutput struct {
	name string
	line *gpiocdev.Line
}

// Set drives the line high (asserted) or low.
func (o *RealOutput) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := o.line.SetValue(v); err != nil {
		return fmt.Errorf("write %s pin: %w", o.name, err)
	}
	return nil
}

// NewLines requests the SCA input (with pull-up, the contact pulls it low)
// and the STOP/PP outputs, initially low.
func NewLines(pins Pins) (*Lines, error) {
	chip, err := gpiocdev.NewChip(pins.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	sca, err := chip.RequestLine(pins.SCA, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request SCA pin %d: %w", pins.SCA, err)
	}

	stop, err := chip.RequestLine(pins.Stop, gpiocdev.AsOutput(0))
	if err != nil {
		sca.Close()
		chip.Close()
		return nil, fmt.Errorf("request STOP pin %d: %w", pins.Stop, err)
	}

	pp, err := chip.RequestLine(pins.PP, gpiocdev.AsOutput(0))
	if err != nil {
		stop.Close()
		sca.Close()
		chip.Close()
		return nil, fmt.Errorf("request PP pin %d: %w", pins.PP, err)
	}

	return &Lines{
		chip: chip,
		sca:  sca,
		stop: &RealOutput{name: "STOP", line: stop},
		pp:   &RealOutput{name: "PP", line: pp},
	}, nil
}

// Read returns the raw SCA level.
func (l *Lines) Read() (bool, error) {
	v, err := l.sca.Value()
	if err != nil {
		return false, fmt.Errorf("read SCA pin: %w", err)
	}
	return v != 0, nil
}

// Stop returns the STOP output.
func (l *Lines) Stop() Output { return l.stop }

// PP returns the PP output.
func (l *Lines) PP() Output { return l.pp }

// Close releases GPIO resources.
// Outputs are driven low and reconfigured to input with pull-down (matching
// Pi boot defaults) so the gate operator never sees a stuck STOP or PP
// across a reboot.
func (l *Lines) Close() error {
	var errs []error

	for _, o := range []*RealOutput{l.stop, l.pp} {
		if o == nil {
			continue
		}
		if err := o.Set(false); err != nil {
			errs = append(errs, err)
		}
		if err := o.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", o.name, err))
		}
		if err := o.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", o.name, err))
		}
	}
	if l.sca != nil {
		if err := l.sca.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close SCA pin: %w", err))
		}
	}
	if l.chip != nil {
		if err := l.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// WatchButton requests the button line and feeds its falling edges to
// counter until the returned closer is closed.
func WatchButton(pins Pins, counter *ButtonCounter) (io.Closer, error) {
	line, err := gpiocdev.RequestLine(pins.Chip, pins.Button,
		gpiocdev.AsInput,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			counter.Press(evt.Timestamp)
		}))
	if err != nil {
		return nil, fmt.Errorf("request button pin %d: %w", pins.Button, err)
	}
	return line, nil
}
