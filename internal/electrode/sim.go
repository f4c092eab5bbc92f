package electrode

import "time"

// SimChannel is a synthetic electrode. It rests at Base and is "touched"
// for Press out of every Period, starting Offset into each period, with a
// pseudo-random noise of up to Noise counts. The noise sequence is fixed,
// so runs are reproducible.
type SimChannel struct {
	Base      int16
	Amplitude int16
	Noise     int16
	Period    time.Duration
	Press     time.Duration
	Offset    time.Duration

	clock func() time.Time
	start time.Time
	seed  uint32
}

// NewSimChannel creates a simulated electrode timed by clock.
func NewSimChannel(clock func() time.Time, base, amplitude, noise int16, period, press, offset time.Duration) *SimChannel {
	return &SimChannel{
		Base:      base,
		Amplitude: amplitude,
		Noise:     noise,
		Period:    period,
		Press:     press,
		Offset:    offset,
		clock:     clock,
		start:     clock(),
		seed:      1,
	}
}

// Pressed reports whether the simulated finger is on the electrode at t.
func (s *SimChannel) Pressed(t time.Time) bool {
	if s.Period <= 0 || s.Press <= 0 {
		return false
	}
	phase := (t.Sub(s.start) - s.Offset) % s.Period
	if phase < 0 {
		phase += s.Period
	}
	return phase < s.Press
}

// Read returns the simulated level at the current time.
func (s *SimChannel) Read() (int16, error) {
	v := int32(s.Base)
	if s.Pressed(s.clock()) {
		v += int32(s.Amplitude)
	}
	if s.Noise > 0 {
		// Numerical Recipes LCG.
		s.seed = s.seed*1664525 + 1013904223
		span := uint32(s.Noise)*2 + 1
		v += int32((s.seed>>16)%span) - int32(s.Noise)
	}
	if v > 32767 {
		v = 32767
	}
	if v < -32768 {
		v = -32768
	}
	return int16(v), nil
}
