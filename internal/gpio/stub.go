//go:build !linux

package gpio

import (
	"errors"
	"io"
)

// Lines is not available on non-Linux platforms.
type Lines struct{}

// NewLines returns an error on non-Linux platforms.
func NewLines(pins Pins) (*Lines, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Read is not implemented on non-Linux platforms.
func (l *Lines) Read() (bool, error) {
	return false, errors.New("gpio: not supported")
}

// Stop returns an output that always fails.
func (l *Lines) Stop() Output { return unsupported{} }

// PP returns an output that always fails.
func (l *Lines) PP() Output { return unsupported{} }

// Close is not implemented on non-Linux platforms.
func (l *Lines) Close() error {
	return nil
}

// WatchButton returns an error on non-Linux platforms.
func WatchButton(pins Pins, counter *ButtonCounter) (io.Closer, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

type unsupported struct{}

func (unsupported) Set(bool) error { return errors.New("gpio: not supported") }
