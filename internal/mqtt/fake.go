package mqtt

import (
	"github.com/sweeney/capsense/internal/capsense"
)

// FakePublisher records published events for test assertions. State
// transitions and slider or wheel motion are kept apart, since a sweep
// produces many MOVEs between one TOUCH and one RELEASE.
type FakePublisher struct {
	// Events holds the published TOUCH, RELEASE, PROX and PROX_RELEASE events.
	Events []capsense.Event

	// Moves holds the published MOVE events.
	Moves []capsense.Event

	// Payloads holds the JSON of every published touch or move, in order.
	Payloads [][]byte

	SystemEvents   []SystemEvent
	SystemPayloads [][]byte

	// PublishError and PublishSystemError, when set, fail the matching call
	// and nothing is recorded.
	PublishError       error
	PublishSystemError error

	Closed bool

	// Connected is returned by IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records the event.
func (f *FakePublisher) Publish(event capsense.Event) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatPayload(event)
	if err != nil {
		return err
	}

	if event.Type == capsense.EventMove {
		f.Moves = append(f.Moves, event)
	} else {
		f.Events = append(f.Events, event)
	}
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// Count returns how many events of type t were published.
func (f *FakePublisher) Count(t capsense.EventType) int {
	if t == capsense.EventMove {
		return len(f.Moves)
	}
	n := 0
	for _, e := range f.Events {
		if e.Type == t {
			n++
		}
	}
	return n
}

// Sensor returns the transitions published for the named sensor.
func (f *FakePublisher) Sensor(name string) []capsense.Event {
	var out []capsense.Event
	for _, e := range f.Events {
		if e.Sensor == name {
			out = append(out, e)
		}
	}
	return out
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Reset clears everything recorded and every injected error.
func (f *FakePublisher) Reset() {
	*f = FakePublisher{}
}
