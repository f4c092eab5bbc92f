package electrode

import (
	"errors"
	"time"
)

// FakeChannel is a test double that returns scripted raw samples.
type FakeChannel struct {
	// Samples contains scripted values to return.
	// Each call to Read() consumes the next sample.
	Samples []int16

	// index tracks current position in Samples
	index int

	// ReadError, if set, will be returned by Read()
	ReadError error

	// ChargeDelay records the last SetChargeDelay
	ChargeDelay time.Duration
}

// NewFakeChannel creates a FakeChannel with the given samples.
func NewFakeChannel(samples ...int16) *FakeChannel {
	return &FakeChannel{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeChannel) Read() (int16, error) {
	if f.ReadError != nil {
		return 0, f.ReadError
	}

	if len(f.Samples) == 0 {
		return 0, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return sample, nil
}

// SetChargeDelay records d.
func (f *FakeChannel) SetChargeDelay(d time.Duration) {
	f.ChargeDelay = d
}

// Reset rewinds the channel to the first sample.
func (f *FakeChannel) Reset() {
	f.index = 0
}
