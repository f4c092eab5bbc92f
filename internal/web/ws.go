package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sweeney/capsense/internal/status"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second

	clientSendBuf = 32
)

var upgrader = websocket.Upgrader{
	// The status page is served from the same daemon; any origin may read it.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// hub tracks websocket clients. Each client has its own write pump so a
// slow reader never blocks the poll loop; a client whose queue fills up is
// dropped.
type hub struct {
	tracker  *status.Tracker
	interval time.Duration

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string
	closeOnce  sync.Once
}

func newHub(tracker *status.Tracker, interval time.Duration) *hub {
	return &hub{
		tracker:  tracker,
		interval: interval,
		clients:  make(map[*client]struct{}),
	}
}

// run pushes a status snapshot to every client each interval.
func (h *hub) run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.len() == 0 {
				continue
			}
			h.broadcast(status.FormatCompactJSON(h.tracker.Snapshot()))
		}
	}
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	slog.Debug("ws client connected", "remote_addr", c.remoteAddr, "clients", n)
}

func (h *hub) remove(c *client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.close()
		slog.Debug("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

// broadcast queues msg for every client without blocking.
func (h *hub) broadcast(msg []byte) {
	var slow []*client

	h.mu.Lock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.remove(c, "slow_client")
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
}

// close ends the write pump, which closes the connection.
func (c *client) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	c := &client{
		conn:       conn,
		send:       make(chan []byte, clientSendBuf),
		remoteAddr: r.RemoteAddr,
	}
	// The first frame is the current state.
	c.send <- status.FormatCompactJSON(s.tracker.Snapshot())
	s.hub.add(c)

	// Pumps outlive the request; the hub and connection errors end them.
	go c.writePump()
	go c.readPump(s.hub)
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logClose("write", c.remoteAddr, err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logClose("ping", c.remoteAddr, err)
				return
			}
		}
	}
}

// readPump discards client messages; it only exists to process control
// frames and notice disconnects.
func (c *client) readPump(h *hub) {
	defer h.remove(c, "read_closed")

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			logClose("read", c.remoteAddr, err)
			return
		}
	}
}

func logClose(op, remoteAddr string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		slog.Debug("ws closed", "op", op, "remote_addr", remoteAddr, "code", ce.Code, "reason", ce.Text)
		return
	}
	slog.Debug("ws error", "op", op, "remote_addr", remoteAddr, "err", err)
}
