package capsense

import (
	"fmt"
	"time"
)

// Default tuning windows.
const (
	DefaultBaselineTune  = time.Second
	DefaultThresholdTune = 5 * time.Second
)

// tuneAverage averages acquisitions of raw for length, busy-waiting on
// clock. At least one acquisition is always taken.
func tuneAverage(raw RawChannel, g GlobalSettings, clock Clock, length time.Duration) (uint16, error) {
	start := clock()
	var sum, n uint64
	for n == 0 || clock().Sub(start) < length {
		v, err := Acquire(raw, g)
		if err != nil {
			return 0, fmt.Errorf("tune baseline: %w", err)
		}
		sum += uint64(v)
		n++
	}
	return uint16(sum / n), nil
}

// tuneSpread samples every channel for length and returns the mean of their
// peak-to-peak spreads, starting each range at the channel's baseline.
func tuneSpread(raws []RawChannel, baselines []uint16, g GlobalSettings, clock Clock, length time.Duration) (uint16, error) {
	lo := make([]uint16, len(raws))
	hi := make([]uint16, len(raws))
	copy(lo, baselines)
	copy(hi, baselines)

	start := clock()
	for first := true; first || clock().Sub(start) < length; first = false {
		for i, raw := range raws {
			v, err := Acquire(raw, g)
			if err != nil {
				return 0, fmt.Errorf("tune threshold: %w", err)
			}
			if v < lo[i] {
				lo[i] = v
			}
			if v > hi[i] {
				hi[i] = v
			}
		}
	}

	var total uint32
	for i := range raws {
		total += uint32(hi[i] - lo[i])
	}
	return uint16(total / uint32(len(raws))), nil
}

// thresholdsFromSpread derives the detection thresholds from the idle noise
// spread: touch at 40%, touch release at 60% of touch, prox at 4%, prox
// release at 70% of prox. ResetDelay is kept.
func thresholdsFromSpread(spread uint16, l LocalSettings) LocalSettings {
	s := int32(spread)
	l.TouchThreshold = s * 2 / 5
	l.TouchReleaseThreshold = l.TouchThreshold * 3 / 5
	l.ProxThreshold = s / 25
	l.ProxReleaseThreshold = l.ProxThreshold * 7 / 10
	return l
}
