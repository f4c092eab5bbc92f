//go:build !linux

package electrode

import "time"

// GPIO is not available on non-Linux platforms.
type GPIO struct{}

// OpenGPIO returns ErrUnsupported on non-Linux platforms.
func OpenGPIO(chip string) (*GPIO, error) {
	return nil, ErrUnsupported
}

// Channel is not implemented on non-Linux platforms.
func (g *GPIO) Channel(sendPin, sensePin int) (*RCChannel, error) {
	return nil, ErrUnsupported
}

// Close is not implemented on non-Linux platforms.
func (g *GPIO) Close() error {
	return nil
}

// RCChannel is not available on non-Linux platforms.
type RCChannel struct{}

// SetChargeDelay is not implemented on non-Linux platforms.
func (c *RCChannel) SetChargeDelay(d time.Duration) {}

// Read is not implemented on non-Linux platforms.
func (c *RCChannel) Read() (int16, error) {
	return 0, ErrUnsupported
}
