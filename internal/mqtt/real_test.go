package mqtt

import (
	"errors"
	"strings"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/capsense/internal/capsense"
)

type fakeToken struct {
	timeout bool
	err     error
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  string
}

// fakeClient implements the parts of paho.Client the publisher uses.
type fakeClient struct {
	paho.Client

	connected    bool
	token        fakeToken
	published    []published
	disconnected bool
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	if !c.token.timeout && c.token.err == nil {
		c.published = append(c.published, published{topic, qos, retained, string(payload.([]byte))})
	}
	return &c.token
}

func (c *fakeClient) Disconnect(uint) { c.disconnected = true }

func touchEvent() capsense.Event {
	return capsense.Event{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Sensor:    "button0",
		Type:      capsense.EventTouch,
		State:     capsense.Touch,
		Delta:     50,
	}
}

func TestRealPublisherPublishesWhenConnected(t *testing.T) {
	c := &fakeClient{connected: true}
	p := newPublisher(c, 10)

	if err := p.Publish(touchEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "STARTUP", Retained: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(c.published) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(c.published))
	}
	ev := c.published[0]
	if ev.topic != Topic || ev.qos != 0 || ev.retained {
		t.Errorf("unexpected touch publish %+v", ev)
	}
	if !strings.Contains(ev.payload, `"event":"TOUCH"`) {
		t.Errorf("unexpected payload %s", ev.payload)
	}
	sys := c.published[1]
	if sys.topic != TopicSystem || sys.qos != 1 || !sys.retained {
		t.Errorf("unexpected system publish %+v", sys)
	}
	if p.Buffered() != 0 {
		t.Errorf("nothing should be buffered, got %d", p.Buffered())
	}
}

func TestRealPublisherBuffersWhileDisconnected(t *testing.T) {
	c := &fakeClient{}
	p := newPublisher(c, 10)

	for i := 0; i < 3; i++ {
		if err := p.Publish(touchEvent()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if p.Buffered() != 3 {
		t.Fatalf("expected 3 buffered, got %d", p.Buffered())
	}
	if len(c.published) != 0 {
		t.Fatal("nothing should reach the client while disconnected")
	}

	// First connection replays without announcing a reconnect.
	c.connected = true
	p.onConnect(c)

	if len(c.published) != 3 {
		t.Fatalf("expected 3 replayed messages, got %d", len(c.published))
	}
	for _, m := range c.published {
		if m.topic != Topic {
			t.Errorf("unexpected topic %s", m.topic)
		}
	}
	if p.Buffered() != 0 {
		t.Errorf("buffer should be empty after replay, got %d", p.Buffered())
	}
}

func TestRealPublisherAnnouncesReconnect(t *testing.T) {
	c := &fakeClient{connected: true}
	p := newPublisher(c, 10)
	p.onConnect(c)
	if len(c.published) != 0 {
		t.Fatalf("first connect should publish nothing, got %+v", c.published)
	}

	c.connected = false
	p.Publish(touchEvent())
	c.connected = true
	p.onConnect(c)

	if len(c.published) != 2 {
		t.Fatalf("expected reconnect plus replay, got %d", len(c.published))
	}
	if c.published[0].topic != TopicSystem || !strings.Contains(c.published[0].payload, "RECONNECTED") {
		t.Errorf("expected RECONNECTED first, got %+v", c.published[0])
	}
	if c.published[1].topic != Topic {
		t.Errorf("expected replayed touch event, got %+v", c.published[1])
	}
}

func TestRealPublisherTimeoutBuffers(t *testing.T) {
	c := &fakeClient{connected: true, token: fakeToken{timeout: true}}
	p := newPublisher(c, 10)

	err := p.Publish(touchEvent())
	if !errors.Is(err, ErrPublishTimeout) {
		t.Fatalf("expected ErrPublishTimeout, got %v", err)
	}
	if p.Buffered() != 1 {
		t.Errorf("timed out message should be buffered, got %d", p.Buffered())
	}
}

func TestRealPublisherErrorNotBuffered(t *testing.T) {
	c := &fakeClient{connected: true, token: fakeToken{err: errors.New("not authorised")}}
	p := newPublisher(c, 10)

	if err := p.Publish(touchEvent()); err == nil {
		t.Fatal("expected error")
	}
	if p.Buffered() != 0 {
		t.Errorf("rejected message should not be buffered, got %d", p.Buffered())
	}
}

func TestRealPublisherClose(t *testing.T) {
	c := &fakeClient{}
	p := newPublisher(c, 10)
	p.Publish(touchEvent())

	if err := p.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.disconnected {
		t.Error("expected client to be disconnected")
	}
}

func TestRealPublisherIsConnected(t *testing.T) {
	c := &fakeClient{}
	p := newPublisher(c, 1)
	if p.IsConnected() {
		t.Error("expected disconnected")
	}
	c.connected = true
	if !p.IsConnected() {
		t.Error("expected connected")
	}
}
