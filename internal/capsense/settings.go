package capsense

import "time"

// settings holds the configuration of one sensor. Embedding it gives a
// sensor the full set of setters.
type settings struct {
	g GlobalSettings
	l LocalSettings
}

func (s *settings) SetSamples(exp uint8)                 { s.g.Samples = exp }
func (s *settings) SetDivider(exp uint8)                 { s.g.Divider = exp }
func (s *settings) SetExpWeight(w uint8)                 { s.g.ExpWeight = w }
func (s *settings) SetDebounce(d time.Duration)          { s.g.Debounce = d }
func (s *settings) SetNoiseDelta(v int32)                { s.g.NoiseDelta = v }
func (s *settings) SetNoiseIncrement(v uint16)           { s.g.NoiseIncrement = v }
func (s *settings) SetNoiseCountRising(d time.Duration)  { s.g.NoiseCountRising = d }
func (s *settings) SetNoiseCountFalling(d time.Duration) { s.g.NoiseCountFalling = d }

func (s *settings) SetTouchThreshold(v int32)        { s.l.TouchThreshold = v }
func (s *settings) SetTouchReleaseThreshold(v int32) { s.l.TouchReleaseThreshold = v }
func (s *settings) SetProxThreshold(v int32)         { s.l.ProxThreshold = v }
func (s *settings) SetProxReleaseThreshold(v int32)  { s.l.ProxReleaseThreshold = v }
func (s *settings) SetResetDelay(d time.Duration)    { s.l.ResetDelay = d }

// ApplyGlobalSettings replaces every global setting at once.
func (s *settings) ApplyGlobalSettings(g GlobalSettings) { s.g = g }

// ApplyLocalSettings replaces every threshold at once.
func (s *settings) ApplyLocalSettings(l LocalSettings) { s.l = l }

func (s *settings) GlobalSettings() GlobalSettings { return s.g }
func (s *settings) LocalSettings() LocalSettings   { return s.l }

// detection exposes the debounced state of a channel. Every query is
// derived from State and PreviousState only.
type detection struct {
	cs ChannelState
}

func (d *detection) IsTouched() bool { return d.cs.State == Touch }

func (d *detection) IsJustTouched() bool {
	return d.cs.State == Touch && d.cs.PreviousState != Touch
}

func (d *detection) IsJustTouchReleased() bool {
	return d.cs.State != Touch && d.cs.PreviousState == Touch
}

func (d *detection) IsProx() bool { return d.cs.State == Prox }

func (d *detection) IsJustProx() bool {
	return d.cs.State == Prox && d.cs.PreviousState != Prox
}

func (d *detection) IsJustProxReleased() bool {
	return d.cs.State != Prox && d.cs.PreviousState == Prox
}

// IsJustReleased reports the end of any detection, touch or proximity.
func (d *detection) IsJustReleased() bool {
	return !d.cs.State.active() && d.cs.PreviousState.active()
}

// State returns the reported (debounced) state.
func (d *detection) State() State { return d.cs.State }

// Delta returns the filtered read minus the baseline of the last poll.
func (d *detection) Delta() int32 { return d.cs.Delta }

// Baseline returns the current reference level.
func (d *detection) Baseline() uint16 { return d.cs.Baseline }

// Snapshot returns a copy of the pipeline state.
func (d *detection) Snapshot() ChannelState { return d.cs }
