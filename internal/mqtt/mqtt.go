// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/capsense/internal/capsense"
)

// Topic is the MQTT topic for touch events.
const Topic = "capsense/sensor/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "capsense/sensor/system"

// eventTimeFormat keeps milliseconds; touch transitions are tens of
// milliseconds apart.
const eventTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a touch event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event capsense.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Touch TouchPayload `json:"touch"`
}

// TouchPayload contains the touch event details. Position and Step are only
// present on MOVE events.
type TouchPayload struct {
	Timestamp string `json:"timestamp"`
	Sensor    string `json:"sensor"`
	Event     string `json:"event"`
	State     string `json:"state"`
	Delta     int32  `json:"delta"`
	Position  *int32 `json:"position,omitempty"`
	Step      *int32 `json:"step,omitempty"`
}

// FormatPayload creates the JSON payload for a touch event.
func FormatPayload(event capsense.Event) ([]byte, error) {
	p := TouchPayload{
		Timestamp: event.Timestamp.UTC().Format(eventTimeFormat),
		Sensor:    event.Sensor,
		Event:     string(event.Type),
		State:     event.State.String(),
		Delta:     event.Delta,
	}
	if event.Type == capsense.EventMove {
		pos, step := event.Position, event.Step
		p.Position = &pos
		p.Step = &step
	}
	return json.Marshal(Payload{Touch: p})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
