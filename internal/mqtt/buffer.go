package mqtt

import "log/slog"

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO of messages held while disconnected.
// When full the oldest message is dropped. Not safe for concurrent use.
type ringBuffer struct {
	buf     []bufferedMsg
	head    int // next write position
	count   int
	dropped int // messages lost since the last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{buf: make([]bufferedMsg, capacity)}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	r.buf[r.head] = msg
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
		return
	}
	// Full: head was pointing at the oldest message, now overwritten.
	if r.dropped == 0 {
		slog.Warn("mqtt: buffer full, dropping oldest", "capacity", len(r.buf))
	}
	r.dropped++
}

// drainAll returns the buffered messages oldest first and empties the
// buffer. Returns nil when empty.
func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}

	n := len(r.buf)
	start := (r.head - r.count + n) % n
	result := make([]bufferedMsg, r.count)
	for i := range result {
		result[i] = r.buf[(start+i)%n]
	}

	if r.dropped > 0 {
		slog.Warn("mqtt: messages dropped while disconnected", "dropped", r.dropped)
	}
	r.count = 0
	r.head = 0
	r.dropped = 0
	return result
}

func (r *ringBuffer) len() int {
	return r.count
}
