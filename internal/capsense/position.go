package capsense

import "fmt"

// Estimator turns the per channel deltas of an array into a position.
type Estimator interface {
	// Channels is the number of electrodes the estimator expects.
	Channels() int
	// Estimate returns the position for deltas, where total is the delta of
	// the averaged pseudo-channel. total is always > 0.
	Estimate(deltas []int32, total int32) int32
	// Step returns the signed movement from one position to the next.
	Step(from, to int32) int32
}

// LinearRange is the largest magnitude a linear slider reports.
const LinearRange = 127

// Linear is a straight slider: a barycentre of the electrode weights.
type Linear struct {
	// Weights are the positions of the electrodes, spanning -127..127.
	Weights []int32
	// Coeff scales the normalised deltas before weighting.
	Coeff int32
}

// defaultWeights are electrode positions for evenly spaced sliders.
var defaultWeights = map[int][]int32{
	2: {127, -127},
	3: {127, 0, -127},
	4: {127, 42, -42, -127},
	5: {127, 32, 0, -32, -127},
	6: {127, 77, 27, -27, -77, -127},
}

// NewLinear returns a slider estimator for n evenly spaced electrodes.
func NewLinear(n int) (Linear, error) {
	w, ok := defaultWeights[n]
	if !ok {
		return Linear{}, fmt.Errorf("%w: linear slider with %d channels", ErrChannelCount, n)
	}
	weights := make([]int32, n)
	copy(weights, w)
	return Linear{Weights: weights, Coeff: 32}, nil
}

func (l Linear) Channels() int { return len(l.Weights) }

// Estimate computes sum(w_i * coeff*delta_i/total) / (coeff*n). Since total
// is the mean delta, an electrode carrying the whole signal maps to its own
// weight.
func (l Linear) Estimate(deltas []int32, total int32) int32 {
	var bary int64
	for i, w := range l.Weights {
		bary += int64(w) * (int64(l.Coeff) * int64(deltas[i]) / int64(total))
	}
	pos := bary / (int64(l.Coeff) * int64(len(l.Weights)))
	if pos > LinearRange {
		return LinearRange
	}
	if pos < -LinearRange {
		return -LinearRange
	}
	return int32(pos)
}

func (Linear) Step(from, to int32) int32 { return to - from }

// WheelRange is the number of positions in one turn of a wheel.
const WheelRange = 256

// Circular is a three electrode wheel. The dominant electrode selects a
// third of the turn and the two others interpolate inside it.
type Circular struct {
	// Sectors are the positions of the three electrodes on the turn.
	Sectors [3]int32
	Coeff   int32
}

// NewCircular returns the estimator for a wheel of three evenly spaced
// electrodes.
func NewCircular() Circular {
	return Circular{Sectors: [3]int32{0, 86, 171}, Coeff: 83}
}

func (Circular) Channels() int { return 3 }

func (c Circular) Estimate(deltas []int32, total int32) int32 {
	b0 := c.Coeff * deltas[0] / total
	b1 := c.Coeff * deltas[1] / total
	b2 := c.Coeff * deltas[2] / total

	var pos int32
	switch {
	case b0 > b1 && b0 > b2:
		pos = c.Sectors[0] + (b1-b2)/3
	case b1 >= b0 && b1 >= b2:
		pos = c.Sectors[1] + (b2-b0)/3
	default:
		pos = c.Sectors[2] + (b0-b1)/3
	}
	return ((pos % WheelRange) + WheelRange) % WheelRange
}

// Step takes the shortest way round the wheel.
func (Circular) Step(from, to int32) int32 {
	d := to - from
	if d > WheelRange/2 {
		d -= WheelRange
	} else if d < -WheelRange/2 {
		d += WheelRange
	}
	return d
}

// positionTracker holds the position of an array across polls.
type positionTracker struct {
	est Estimator

	current  int32
	previous int32
	position int32
	step     int32
}

// observe updates the position while the array is touched. The reported
// position and the step only move from the second consecutive touched poll,
// so a new touch never produces a jump from a stale position.
func (p *positionTracker) observe(touching, wasTouching bool, deltas []int32, total int32) bool {
	if !touching || total <= 0 {
		return false
	}
	p.previous = p.current
	p.current = p.est.Estimate(deltas, total)
	if !wasTouching {
		return false
	}
	p.position = p.current
	p.step += p.est.Step(p.previous, p.current)
	return true
}

// takeStep returns the movement accumulated since the last call and clears it.
func (p *positionTracker) takeStep() int32 {
	s := p.step
	p.step = 0
	return s
}
