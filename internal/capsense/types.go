// Package capsense turns raw capacitive charge-transfer samples into debounced
// touch and proximity states, and slider or wheel positions.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via a clock function; all arithmetic is integer.
package capsense

import (
	"errors"
	"time"
)

// State is the classification of a channel for one poll.
type State uint8

const (
	Idle State = iota
	BaselineChanged
	Rising
	Falling
	Prox
	Touch
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case BaselineChanged:
		return "BASELINE_CHANGED"
	case Rising:
		return "RISING"
	case Falling:
		return "FALLING"
	case Prox:
		return "PROX"
	case Touch:
		return "TOUCH"
	}
	return "UNKNOWN"
}

// active reports whether s is an actual detection (Prox or Touch).
func (s State) active() bool {
	return s == Prox || s == Touch
}

// RawChannel produces one noisy sample per call from an electrode.
type RawChannel interface {
	Read() (int16, error)
}

// ChargeDelaySetter is implemented by raw channels whose charge transfer
// delay can be tuned.
type ChargeDelaySetter interface {
	SetChargeDelay(d time.Duration)
}

// Clock returns the current time. Only differences between readings are used.
type Clock func() time.Time

// GlobalSettings are shared by every channel of a sensor.
type GlobalSettings struct {
	// Samples is the exponent of the number of raw reads per acquisition.
	Samples uint8
	// Divider is the exponent of the divisor applied to the summed reads.
	Divider uint8
	// ExpWeight is the filter weight of the new sample, over 255.
	ExpWeight uint8
	// Debounce is how long the instantaneous state must hold before it is reported.
	Debounce time.Duration

	// NoiseDelta is the largest |delta| absorbed straight into the baseline.
	NoiseDelta int32
	// NoiseIncrement is the baseline step used for slow drift compensation.
	NoiseIncrement uint16
	// NoiseCountRising is the Rising dwell before the baseline creeps up.
	NoiseCountRising time.Duration
	// NoiseCountFalling is the Falling dwell before the baseline creeps down.
	NoiseCountFalling time.Duration
}

// DefaultGlobalSettings returns the settings used when none are supplied.
func DefaultGlobalSettings() GlobalSettings {
	return GlobalSettings{
		Samples:           4,
		Divider:           1,
		ExpWeight:         40,
		Debounce:          20 * time.Millisecond,
		NoiseDelta:        0,
		NoiseIncrement:    1,
		NoiseCountRising:  50 * time.Millisecond,
		NoiseCountFalling: 5 * time.Millisecond,
	}
}

// LocalSettings are the thresholds of one sensor.
// Expected ordering: Touch > TouchRelease > Prox > ProxRelease > 0.
// The ordering is not checked here; bad values make the output chatter.
type LocalSettings struct {
	TouchThreshold        int32
	TouchReleaseThreshold int32
	ProxThreshold         int32
	ProxReleaseThreshold  int32

	// ResetDelay is how long a Touch or Prox may be reported before the
	// baseline is retuned. Zero disables the retune.
	ResetDelay time.Duration
}

// DefaultLocalSettings returns the thresholds used when none are supplied.
func DefaultLocalSettings() LocalSettings {
	return LocalSettings{
		TouchThreshold:        50,
		TouchReleaseThreshold: 40,
		ProxThreshold:         5,
		ProxReleaseThreshold:  3,
		ResetDelay:            10 * time.Second,
	}
}

// ChannelState is the per channel pipeline state, mutated on every poll.
type ChannelState struct {
	Baseline uint16
	LastRead uint16
	Read     uint16
	Delta    int32

	// Instantaneous state of this poll and of the previous one.
	Now  State
	Prev State
	// Debounced state reported to consumers, and its value one poll ago.
	State         State
	PreviousState State

	// LastTransition is when Now last differed from Prev.
	LastTransition time.Time
	// DriftSince is when the current drift dwell started.
	DriftSince time.Time
	// ReportedSince is when State last changed.
	ReportedSince time.Time
}

// EventType is a reported state transition of a sensor.
type EventType string

const (
	EventTouch       EventType = "TOUCH"
	EventRelease     EventType = "RELEASE"
	EventProx        EventType = "PROX"
	EventProxRelease EventType = "PROX_RELEASE"
	EventMove        EventType = "MOVE"
)

// Event is a sensor transition to be published.
type Event struct {
	Timestamp time.Time
	Sensor    string
	Type      EventType
	State     State
	Delta     int32
	// Position and Step are only meaningful for EventMove.
	Position int32
	Step     int32
}

// EventCounts tracks the number of each event type since startup.
type EventCounts struct {
	Touch       int
	Release     int
	Prox        int
	ProxRelease int
	Move        int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}

// ErrChannelCount is returned when an array is built with an unsupported
// number of channels for its layout.
var ErrChannelCount = errors.New("capsense: unsupported channel count")
