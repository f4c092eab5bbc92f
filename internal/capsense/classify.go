package capsense

import "time"

// classify computes the instantaneous state of a poll.
//
// Order: noise absorption first, then the hysteresis band of the latched
// state, then plain thresholds by magnitude and sign.
func classify(delta int32, latch State, absorbed bool, l LocalSettings) State {
	if absorbed {
		return BaselineChanged
	}

	switch latch {
	case Touch:
		if delta >= l.TouchReleaseThreshold {
			return Touch
		}
		if delta > l.ProxReleaseThreshold {
			return Prox
		}
		return Idle
	case Prox:
		if delta > l.TouchThreshold {
			return Touch
		}
		if delta >= l.ProxReleaseThreshold {
			return Prox
		}
		return Idle
	}

	switch {
	case delta > l.TouchThreshold:
		return Touch
	case delta > l.ProxThreshold:
		return Prox
	case delta > 0:
		return Rising
	case delta < 0:
		return Falling
	}
	return Idle
}

// latched returns the detection the hysteresis band is anchored to: the
// reported state when it is a detection, otherwise the previous
// instantaneous state, otherwise Idle.
func latched(cs *ChannelState) State {
	if cs.State.active() {
		return cs.State
	}
	if cs.Prev.active() {
		return cs.Prev
	}
	return Idle
}

// debounce promotes the instantaneous state to the reported state once it
// has been unchanged for at least g.Debounce. PreviousState always trails
// State by exactly one poll, so edge queries fire once per transition.
// BaselineChanged is reported as Idle.
func debounce(cs *ChannelState, g GlobalSettings, now time.Time) {
	cs.PreviousState = cs.State
	if cs.Now != cs.Prev || now.Sub(cs.LastTransition) < g.Debounce {
		return
	}
	next := cs.Now
	if next == BaselineChanged {
		next = Idle
	}
	if next != cs.State {
		cs.State = next
		cs.ReportedSince = now
	}
}

// advance runs one poll for a channel given its freshly acquired sample.
// When track is false the baseline is left alone (the array pseudo-channel
// derives its baseline from the real channels).
func (cs *ChannelState) advance(sample uint16, g GlobalSettings, l LocalSettings, now time.Time, track bool) {
	cs.LastRead = cs.Read
	cs.Read = Filter(sample, cs.LastRead, g.ExpWeight)
	cs.Delta = int32(cs.Read) - int32(cs.Baseline)
	cs.Prev = cs.Now

	var absorbed bool
	if track {
		absorbed = recenter(cs, g)
	} else {
		absorbed = abs32(cs.Delta) <= g.NoiseDelta
	}

	cs.Now = classify(cs.Delta, latched(cs), absorbed, l)
	if cs.Now != cs.Prev {
		cs.LastTransition = now
		cs.DriftSince = now
	}

	if track {
		trackDrift(cs, g, now)
	}
	debounce(cs, g, now)
}

// reset puts the channel back at rest around a freshly tuned baseline.
func (cs *ChannelState) reset(baseline uint16, now time.Time) {
	cs.Baseline = baseline
	cs.Read = baseline
	cs.LastRead = baseline
	cs.Delta = 0
	cs.LastTransition = now
	cs.DriftSince = now
	cs.ReportedSince = now
}

// expired reports whether a detection has been reported for longer than the
// reset delay.
func (cs *ChannelState) expired(l LocalSettings, now time.Time) bool {
	return l.ResetDelay > 0 && cs.State.active() && now.Sub(cs.ReportedSince) > l.ResetDelay
}

// proxRatio maps the delta inside the proximity band onto 0..255.
func proxRatio(cs *ChannelState, l LocalSettings) uint8 {
	switch cs.State {
	case Touch:
		return 0xff
	case Prox:
		span := int64(l.TouchThreshold) - int64(l.ProxThreshold)
		if span <= 0 {
			return 0xff
		}
		step := int64(cs.Delta) - int64(l.ProxThreshold)
		if step <= 0 {
			return 0
		}
		r := step * 256 / span
		if r > 0xff {
			return 0xff
		}
		return uint8(r)
	}
	return 0
}
