package capsense

// Filter is a single pole low-pass over successive acquisitions:
// (raw*weight + prev*(255-weight)) / 255. A higher weight tracks faster.
//
// Truncation alone would stall one count short of a constant input, so a
// result that did not move is nudged one count towards raw. A zero weight
// holds prev forever.
func Filter(raw, prev uint16, weight uint8) uint16 {
	w := uint32(weight)
	out := uint16((uint32(raw)*w + uint32(prev)*(255-w)) / 255)
	if out == prev && raw != prev && w > 0 {
		if raw > prev {
			out++
		} else {
			out--
		}
	}
	return out
}
