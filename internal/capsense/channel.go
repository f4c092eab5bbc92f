package capsense

import (
	"fmt"
	"time"
)

// Channel is a single electrode used as a button or proximity sensor.
// Not safe for concurrent use.
type Channel struct {
	settings
	detection

	raw   RawChannel
	clock Clock

	tuned        bool
	baselineTune time.Duration
	maxDelta     uint16
}

// NewChannel creates a channel reading from raw. No samples are taken until
// the first Update or an explicit TuneBaseline.
func NewChannel(raw RawChannel, clock Clock, g GlobalSettings, l LocalSettings) *Channel {
	c := &Channel{
		settings:     settings{g: g, l: l},
		raw:          raw,
		clock:        clock,
		baselineTune: DefaultBaselineTune,
	}
	now := clock()
	c.cs.LastTransition = now
	c.cs.DriftSince = now
	c.cs.ReportedSince = now
	return c
}

// SetBaselineTune sets the window used by the automatic baseline tunes
// (first Update and reset delay recalibration).
func (c *Channel) SetBaselineTune(d time.Duration) { c.baselineTune = d }

// SetChargeDelay forwards the charge transfer delay to the raw channel when
// it supports one.
func (c *Channel) SetChargeDelay(d time.Duration) {
	if s, ok := c.raw.(ChargeDelaySetter); ok {
		s.SetChargeDelay(d)
	}
}

// TuneBaseline averages the electrode for length and makes it the new
// baseline. It blocks for the whole window.
func (c *Channel) TuneBaseline(length time.Duration) error {
	avg, err := tuneAverage(c.raw, c.g, c.clock, length)
	if err != nil {
		return err
	}
	c.cs.reset(avg, c.clock())
	c.tuned = true
	return nil
}

// TuneThreshold tunes the baseline, then watches the idle electrode for
// length and derives all four thresholds from the observed spread.
func (c *Channel) TuneThreshold(length time.Duration) error {
	if err := c.TuneBaseline(c.baselineTune); err != nil {
		return err
	}
	spread, err := tuneSpread([]RawChannel{c.raw}, []uint16{c.cs.Baseline}, c.g, c.clock, length)
	if err != nil {
		return err
	}
	c.maxDelta = spread
	c.l = thresholdsFromSpread(spread, c.l)
	return nil
}

// Update runs one full acquire, filter, classify pass and returns the delta.
// On a read error the channel state is left as it was.
func (c *Channel) Update() (int32, error) {
	if !c.tuned {
		if err := c.TuneBaseline(c.baselineTune); err != nil {
			return 0, err
		}
	}

	sample, err := Acquire(c.raw, c.g)
	if err != nil {
		return 0, fmt.Errorf("update: %w", err)
	}

	now := c.clock()
	c.cs.advance(sample, c.g, c.l, now, true)
	delta := c.cs.Delta

	if c.cs.expired(c.l, now) {
		if err := c.TuneBaseline(c.baselineTune); err != nil {
			return delta, fmt.Errorf("recalibrate: %w", err)
		}
	}
	return delta, nil
}

// ProxRatio maps the delta inside the proximity band onto 0..255: 0 when not
// in Prox, 255 while touched.
func (c *Channel) ProxRatio() uint8 { return proxRatio(&c.cs, c.l) }

// MaxDelta returns the spread measured by the last TuneThreshold.
func (c *Channel) MaxDelta() uint16 { return c.maxDelta }
