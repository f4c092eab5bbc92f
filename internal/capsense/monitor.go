package capsense

import "time"

// Sensor is the reported side of a Channel or an Array.
type Sensor interface {
	State() State
	Delta() int32
	IsJustTouched() bool
	IsJustTouchReleased() bool
	IsJustProx() bool
	IsJustProxReleased() bool
}

// Positioner is implemented by sensors that report a position.
type Positioner interface {
	Moved() bool
	Position() int32
	Step() int32
}

type watched struct {
	name   string
	sensor Sensor
}

// Monitor turns reported state transitions of a set of sensors into events.
type Monitor struct {
	sensors       []watched
	startTime     time.Time
	eventCounts   EventCounts
	lastHeartbeat time.Time
}

// NewMonitor creates a monitor. The startTime is used for calculating
// uptime in heartbeat events.
func NewMonitor(startTime time.Time) *Monitor {
	return &Monitor{
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Watch adds a sensor. Events carry its name.
func (m *Monitor) Watch(name string, s Sensor) {
	m.sensors = append(m.sensors, watched{name: name, sensor: s})
}

// Process inspects every sensor after its Update and returns the events of
// this poll, in watch order. Releases come before new detections, and MOVE
// last. Reading a MOVE consumes the sensor's accumulated step.
func (m *Monitor) Process(now time.Time) []Event {
	var events []Event
	for _, w := range m.sensors {
		s := w.sensor
		emit := func(t EventType) {
			events = append(events, Event{
				Timestamp: now,
				Sensor:    w.name,
				Type:      t,
				State:     s.State(),
				Delta:     s.Delta(),
			})
		}

		if s.IsJustTouchReleased() {
			emit(EventRelease)
		}
		if s.IsJustProxReleased() {
			emit(EventProxRelease)
		}
		if s.IsJustProx() {
			emit(EventProx)
		}
		if s.IsJustTouched() {
			emit(EventTouch)
		}

		if p, ok := s.(Positioner); ok && p.Moved() {
			step := p.Step()
			if step != 0 {
				events = append(events, Event{
					Timestamp: now,
					Sensor:    w.name,
					Type:      EventMove,
					State:     s.State(),
					Delta:     s.Delta(),
					Position:  p.Position(),
					Step:      step,
				})
			}
		}
	}

	for _, e := range events {
		switch e.Type {
		case EventTouch:
			m.eventCounts.Touch++
		case EventRelease:
			m.eventCounts.Release++
		case EventProx:
			m.eventCounts.Prox++
		case EventProxRelease:
			m.eventCounts.ProxRelease++
		case EventMove:
			m.eventCounts.Move++
		}
	}
	return events
}

// EventCountsSnapshot returns the event counts since startup.
func (m *Monitor) EventCountsSnapshot() EventCounts {
	return m.eventCounts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed,
// or if interval is <= 0 (disabled).
func (m *Monitor) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}
	if now.Sub(m.lastHeartbeat) < interval {
		return nil
	}

	m.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(m.startTime),
		Counts:    m.eventCounts,
	}
}
