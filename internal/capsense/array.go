package capsense

import (
	"fmt"
	"time"
)

// DefaultArrayResetDelay is the reset delay arrays are usually given; a
// resting finger on a slider is more common than on a button.
const DefaultArrayResetDelay = 60 * time.Second

// DefaultArrayBaselineTune is the tuning window of each array electrode.
const DefaultArrayBaselineTune = 200 * time.Millisecond

// Array is a slider or wheel: several electrodes sharing one pipeline and
// one set of settings. A pseudo-channel averaging every electrode gates
// touch for the whole array; the embedded queries report on it.
// Not safe for concurrent use.
type Array struct {
	settings
	detection

	raws    []RawChannel
	chans   []ChannelState
	samples []uint16
	deltas  []int32
	clock   Clock
	pos     positionTracker

	tuned        bool
	moved        bool
	baselineTune time.Duration
	maxDelta     uint16
}

// NewArray builds an array over raws whose position is computed by est.
func NewArray(raws []RawChannel, est Estimator, clock Clock, g GlobalSettings, l LocalSettings) (*Array, error) {
	if len(raws) < 2 || len(raws) != est.Channels() {
		return nil, fmt.Errorf("%w: %d electrodes for an estimator of %d", ErrChannelCount, len(raws), est.Channels())
	}
	a := &Array{
		settings:     settings{g: g, l: l},
		raws:         raws,
		chans:        make([]ChannelState, len(raws)),
		samples:      make([]uint16, len(raws)),
		deltas:       make([]int32, len(raws)),
		clock:        clock,
		pos:          positionTracker{est: est},
		baselineTune: DefaultArrayBaselineTune,
	}
	now := clock()
	for i := range a.chans {
		a.chans[i].reset(0, now)
	}
	a.cs.reset(0, now)
	return a, nil
}

// NewSlider builds a linear slider over 2 to 6 evenly spaced electrodes.
func NewSlider(raws []RawChannel, clock Clock, g GlobalSettings, l LocalSettings) (*Array, error) {
	est, err := NewLinear(len(raws))
	if err != nil {
		return nil, err
	}
	return NewArray(raws, est, clock, g, l)
}

// NewWheel builds a circular wheel over three electrodes.
func NewWheel(raws []RawChannel, clock Clock, g GlobalSettings, l LocalSettings) (*Array, error) {
	return NewArray(raws, NewCircular(), clock, g, l)
}

// Len returns the number of real electrodes.
func (a *Array) Len() int { return len(a.raws) }

// SetBaselineTune sets the per electrode window of the automatic tunes.
func (a *Array) SetBaselineTune(d time.Duration) { a.baselineTune = d }

// SetChargeDelay forwards the delay to every electrode that supports one.
func (a *Array) SetChargeDelay(d time.Duration) {
	for _, raw := range a.raws {
		if s, ok := raw.(ChargeDelaySetter); ok {
			s.SetChargeDelay(d)
		}
	}
}

// TuneBaseline averages each electrode in turn for length. The
// pseudo-channel baseline is the mean of the results.
func (a *Array) TuneBaseline(length time.Duration) error {
	var sum uint32
	for i, raw := range a.raws {
		avg, err := tuneAverage(raw, a.g, a.clock, length)
		if err != nil {
			return fmt.Errorf("electrode %d: %w", i, err)
		}
		a.chans[i].reset(avg, a.clock())
		sum += uint32(avg)
	}
	a.cs.reset(uint16(sum/uint32(len(a.raws))), a.clock())
	a.tuned = true
	return nil
}

// TuneThreshold tunes the baselines, then derives the thresholds from the
// mean spread of the idle electrodes.
func (a *Array) TuneThreshold(length time.Duration) error {
	if err := a.TuneBaseline(a.baselineTune); err != nil {
		return err
	}
	baselines := make([]uint16, len(a.chans))
	for i := range a.chans {
		baselines[i] = a.chans[i].Baseline
	}
	spread, err := tuneSpread(a.raws, baselines, a.g, a.clock, length)
	if err != nil {
		return err
	}
	a.maxDelta = spread
	a.l = thresholdsFromSpread(spread, a.l)
	return nil
}

// Update acquires every electrode, runs the pipeline on each and on the
// pseudo-channel, then updates the position. It returns the pseudo-channel
// delta. On a read error no state is changed.
func (a *Array) Update() (int32, error) {
	if !a.tuned {
		if err := a.TuneBaseline(a.baselineTune); err != nil {
			return 0, err
		}
	}

	var sum uint32
	for i, raw := range a.raws {
		s, err := Acquire(raw, a.g)
		if err != nil {
			return 0, fmt.Errorf("update electrode %d: %w", i, err)
		}
		a.samples[i] = s
		sum += uint32(s)
	}

	now := a.clock()
	var baselines uint32
	for i := range a.chans {
		a.chans[i].advance(a.samples[i], a.g, a.l, now, true)
		a.deltas[i] = a.chans[i].Delta
		baselines += uint32(a.chans[i].Baseline)
	}

	n := uint32(len(a.raws))
	a.cs.Baseline = uint16(baselines / n)
	a.cs.advance(uint16(sum/n), a.g, a.l, now, false)
	delta := a.cs.Delta

	a.moved = a.pos.observe(a.cs.State == Touch, a.cs.PreviousState == Touch, a.deltas, delta)

	if a.cs.expired(a.l, now) {
		if err := a.TuneBaseline(a.baselineTune); err != nil {
			return delta, fmt.Errorf("recalibrate: %w", err)
		}
	}
	return delta, nil
}

// Position returns the last reported position: -127..127 for a slider,
// 0..255 for a wheel.
func (a *Array) Position() int32 { return a.pos.position }

// Step returns the movement since the previous call and resets it to zero.
func (a *Array) Step() int32 { return a.pos.takeStep() }

// Moved reports whether the last Update changed the position.
func (a *Array) Moved() bool { return a.moved }

// ChannelDelta returns the delta of electrode i, or 0 when i is out of range.
func (a *Array) ChannelDelta(i int) int32 {
	if i < 0 || i >= len(a.chans) {
		return 0
	}
	return a.chans[i].Delta
}

// ProxRatio maps the pseudo-channel delta inside the proximity band onto 0..255.
func (a *Array) ProxRatio() uint8 { return proxRatio(&a.cs, a.l) }

// MaxDelta returns the mean spread measured by the last TuneThreshold.
func (a *Array) MaxDelta() uint16 { return a.maxDelta }
