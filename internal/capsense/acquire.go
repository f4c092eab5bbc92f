package capsense

import (
	"fmt"
	"math"
)

// Acquire oversamples raw with 2^Samples reads and divides the sum by
// 2^Divider. The result is clamped into the uint16 range.
func Acquire(raw RawChannel, g GlobalSettings) (uint16, error) {
	samples := 1 << g.Samples
	var sum int64
	for i := 0; i < samples; i++ {
		v, err := raw.Read()
		if err != nil {
			return 0, fmt.Errorf("acquire sample %d/%d: %w", i+1, samples, err)
		}
		sum += int64(v)
	}
	sum >>= g.Divider

	if sum < 0 {
		return 0, nil
	}
	if sum > math.MaxUint16 {
		return math.MaxUint16, nil
	}
	return uint16(sum), nil
}
