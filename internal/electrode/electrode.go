// Package electrode provides raw capacitive samples from hardware.
//
// Each source hands out channels implementing capsense.RawChannel:
//   - gpio: RC charge transfer timed on Linux GPIO character device lines
//   - mpr121: filtered electrode data of an MPR121 controller over I2C
//   - serial: sample lines streamed by a microcontroller
//   - sim: a synthetic, deterministic touch pattern
//
// The fake implementation allows testing without hardware.
package electrode

import (
	"errors"
	"time"
)

// Default RC charge transfer parameters.
const (
	DefaultChip        = "gpiochip0"
	DefaultChargeDelay = 5 * time.Microsecond
	// DefaultMaxCount bounds the sense polls of one RC sample.
	DefaultMaxCount = 4000
)

var (
	// ErrTimeout is returned when an RC sample does not settle within the
	// maximum count, usually because the electrode is shorted or unwired.
	ErrTimeout = errors.New("electrode: charge timeout")
	// ErrNoData is returned by streamed channels before the first frame.
	ErrNoData = errors.New("electrode: no data received")
	// ErrUnsupported is returned on platforms without the required drivers.
	ErrUnsupported = errors.New("electrode: not supported on this platform (requires Linux)")
)
