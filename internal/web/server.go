// Package web provides an HTTP status server for the capsense daemon.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/sweeney/capsense/internal/status"
)

// DefaultPushInterval is how often websocket clients receive a status
// snapshot.
const DefaultPushInterval = 250 * time.Millisecond

// Server serves the status page over HTTP and streams it over /ws.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	hub        *hub
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker) *Server {
	s := &Server{
		tracker: tracker,
		hub:     newHub(tracker, DefaultPushInterval),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/ws", s.handleWS)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run pushes snapshots to websocket clients until ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	s.hub.run(ctx)
}

// BroadcastEvent sends a pre-formatted event payload to every websocket
// client. It never blocks.
func (s *Server) BroadcastEvent(payload []byte) {
	s.hub.broadcast(payload)
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server. Websocket connections are
// hijacked and not tracked by http.Server, so the hub closes them.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.closeAll()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}
