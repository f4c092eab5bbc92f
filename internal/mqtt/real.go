package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/capsense/internal/capsense"
)

// ErrPublishTimeout is returned when the broker does not acknowledge a
// publish in time. The message is kept for replay.
var ErrPublishTimeout = errors.New("mqtt: publish timeout")

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// RealPublisher publishes to an actual MQTT broker. Messages published while
// disconnected are buffered and replayed, oldest first, on reconnection.
type RealPublisher struct {
	client paho.Client

	mu        sync.Mutex
	buffer    *ringBuffer
	connected bool // set once the first connection succeeded
}

// NewRealPublisher creates a publisher for the given broker. The broker does
// not have to be reachable: the client keeps retrying in the background and
// events are buffered meanwhile.
func NewRealPublisher(broker, clientID string, bufferSize int) (*RealPublisher, error) {
	p := &RealPublisher{buffer: newRingBuffer(bufferSize)}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			slog.Warn("mqtt connection lost", "err", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		slog.Warn("mqtt broker not reachable yet, buffering events", "broker", broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// newPublisher wraps an existing client.
func newPublisher(client paho.Client, bufferSize int) *RealPublisher {
	return &RealPublisher{client: client, buffer: newRingBuffer(bufferSize)}
}

// onConnect replays buffered messages and announces reconnections.
func (p *RealPublisher) onConnect(_ paho.Client) {
	p.mu.Lock()
	reconnect := p.connected
	p.connected = true
	p.mu.Unlock()

	if reconnect {
		if err := p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"}); err != nil {
			slog.Warn("publish reconnected event", "err", err)
		}
	}
	p.replay()
}

// replay sends every buffered message. Messages that fail again are
// buffered again.
func (p *RealPublisher) replay() {
	p.mu.Lock()
	msgs := p.buffer.drainAll()
	p.mu.Unlock()

	if len(msgs) == 0 {
		return
	}
	slog.Info("mqtt replaying buffered messages", "count", len(msgs))
	for _, m := range msgs {
		if err := p.send(m); err != nil {
			slog.Warn("mqtt replay", "topic", m.topic, "err", err)
		}
	}
}

// send publishes msg, or buffers it while the client is disconnected.
func (p *RealPublisher) send(msg bufferedMsg) error {
	if !p.client.IsConnected() {
		p.mu.Lock()
		p.buffer.push(msg)
		p.mu.Unlock()
		return nil
	}

	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		p.mu.Lock()
		p.buffer.push(msg)
		p.mu.Unlock()
		return ErrPublishTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

// Publish sends a touch event to the MQTT broker.
func (p *RealPublisher) Publish(event capsense.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.send(bufferedMsg{topic: Topic, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) - lifecycle events should be delivered
	return p.send(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the client currently has a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	if n := p.Buffered(); n > 0 {
		slog.Warn("mqtt closing with unsent messages", "count", n)
	}
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
