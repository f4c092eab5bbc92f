//go:build linux

package electrode

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"golang.org/x/sys/unix"
)

// GPIO owns a GPIO chip and the lines requested from it. Lines are shared,
// so several electrodes may use the same send pin.
type GPIO struct {
	chip  *gpiocdev.Chip
	lines map[int]*gpiocdev.Line
}

// OpenGPIO opens the named chip, usually DefaultChip.
func OpenGPIO(chip string) (*GPIO, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chip, err)
	}
	return &GPIO{chip: c, lines: make(map[int]*gpiocdev.Line)}, nil
}

func (g *GPIO) line(offset int) (*gpiocdev.Line, error) {
	if l, ok := g.lines[offset]; ok {
		return l, nil
	}
	l, err := g.chip.RequestLine(offset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, err
	}
	g.lines[offset] = l
	return l, nil
}

// Channel returns an electrode charged through sendPin and sensed on
// sensePin (BCM numbering). A resistor of around 1M joins the two pins and
// the electrode hangs off sensePin.
func (g *GPIO) Channel(sendPin, sensePin int) (*RCChannel, error) {
	if sendPin == sensePin {
		return nil, fmt.Errorf("send and sense pin are both %d", sendPin)
	}
	send, err := g.line(sendPin)
	if err != nil {
		return nil, fmt.Errorf("request send pin %d: %w", sendPin, err)
	}
	sense, err := g.line(sensePin)
	if err != nil {
		return nil, fmt.Errorf("request sense pin %d: %w", sensePin, err)
	}
	return &RCChannel{
		send:        send,
		sense:       sense,
		chargeDelay: DefaultChargeDelay,
		maxCount:    DefaultMaxCount,
	}, nil
}

// Close releases every line and the chip.
// Lines are reconfigured to input with pull-down (matching Pi boot defaults)
// before closing so no electrode is left driven.
func (g *GPIO) Close() error {
	var errs []error

	for offset, l := range g.lines {
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", offset, err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", offset, err))
		}
	}
	g.lines = nil
	if g.chip != nil {
		if err := g.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RCChannel measures the time an electrode takes to charge through a
// resistor. More capacitance (a finger) means a higher count.
type RCChannel struct {
	send  *gpiocdev.Line
	sense *gpiocdev.Line

	chargeDelay time.Duration
	maxCount    int
}

// SetChargeDelay sets how long the electrode is held discharged before each
// sample.
func (c *RCChannel) SetChargeDelay(d time.Duration) { c.chargeDelay = d }

// Read discharges the electrode, releases it and counts sense polls until
// the line reads high.
func (c *RCChannel) Read() (int16, error) {
	if err := c.send.SetValue(0); err != nil {
		return 0, fmt.Errorf("drive send pin: %w", err)
	}
	if err := c.sense.Reconfigure(gpiocdev.AsOutput(0)); err != nil {
		return 0, fmt.Errorf("discharge sense pin: %w", err)
	}
	spinDelay(c.chargeDelay)

	if err := c.sense.Reconfigure(gpiocdev.AsInput); err != nil {
		return 0, fmt.Errorf("release sense pin: %w", err)
	}
	if err := c.send.SetValue(1); err != nil {
		return 0, fmt.Errorf("drive send pin: %w", err)
	}

	count := 0
	for ; count < c.maxCount; count++ {
		v, err := c.sense.Value()
		if err != nil {
			return 0, fmt.Errorf("read sense pin: %w", err)
		}
		if v == 1 {
			break
		}
	}

	if err := c.send.SetValue(0); err != nil {
		return 0, fmt.Errorf("drive send pin: %w", err)
	}
	if count >= c.maxCount {
		return 0, ErrTimeout
	}
	return int16(count), nil
}

// spinDelay busy-waits on the monotonic clock. Charge delays are a few
// microseconds, far below the scheduler granularity of time.Sleep.
func spinDelay(d time.Duration) {
	if d <= 0 {
		return
	}
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		time.Sleep(d)
		return
	}
	deadline := ts.Nano() + d.Nanoseconds()
	for ts.Nano() < deadline {
		if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
			return
		}
	}
}
