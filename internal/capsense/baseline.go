package capsense

import "time"

// recenter snaps the baseline onto the current read when the delta is within
// the noise band. Returns true when the delta was absorbed.
func recenter(cs *ChannelState, g GlobalSettings) bool {
	if abs32(cs.Delta) > g.NoiseDelta {
		return false
	}
	cs.Baseline = cs.Read
	return true
}

// trackDrift creeps the baseline by NoiseIncrement once the channel has been
// Rising or Falling for the configured dwell, then restarts the dwell.
// Must run after the instantaneous state of this poll is known.
func trackDrift(cs *ChannelState, g GlobalSettings, now time.Time) {
	dwell := now.Sub(cs.DriftSince)
	switch cs.Now {
	case Rising:
		if dwell >= g.NoiseCountRising {
			cs.Baseline = addSat(cs.Baseline, int32(g.NoiseIncrement))
			cs.DriftSince = now
		}
	case Falling:
		if dwell >= g.NoiseCountFalling {
			cs.Baseline = addSat(cs.Baseline, -int32(g.NoiseIncrement))
			cs.DriftSince = now
		}
	}
}

// addSat adds d to v, saturating at the uint16 bounds.
func addSat(v uint16, d int32) uint16 {
	r := int32(v) + d
	if r < 0 {
		return 0
	}
	if r > 0xffff {
		return 0xffff
	}
	return uint16(r)
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
