package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/hupe1980/fundmesh/logging"
)

// writeTimeout bounds a single outbound frame write so a stalled client can
// never wedge a processor goroutine.
const writeTimeout = 10 * time.Second

// Event is a server-to-client message on the streaming channel. Type is one
// of "intermediate", "result" or "error"; intermediate and error events carry
// Message, result events carry Response.
type Event struct {
	Type     string `json:"type"`
	Message  string `json:"message,omitempty"`
	Response string `json:"response,omitempty"`
}

func newIntermediateEvent(message string) Event {
	return Event{Type: "intermediate", Message: message}
}

func newResultEvent(response string) Event {
	return Event{Type: "result", Response: response}
}

func newErrorEvent(message string) Event {
	return Event{Type: "error", Message: message}
}

// transport abstracts the outbound half of a websocket connection so session
// behavior can be tested without a network.
type transport interface {
	Write(ctx context.Context, data []byte) error
	Close(code websocket.StatusCode, reason string) error
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t wsTransport) Write(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t wsTransport) Close(code websocket.StatusCode, reason string) error {
	return t.conn.Close(code, reason)
}

// Session is one open client connection to the streaming endpoint. All
// outbound writes funnel through Send, which serializes frames and becomes a
// no-op once the session is closed, so events can never interleave and a
// closed transport is never written to.
type Session struct {
	id        string
	transport transport
	logger    logging.Logger

	mu     sync.Mutex
	closed bool

	// busy guards the single in-flight query slot.
	busy atomic.Bool
}

func newSession(t transport, logger logging.Logger) *Session {
	return &Session{id: uuid.NewString(), transport: t, logger: logger}
}

// ID returns the session's unique identity.
func (s *Session) ID() string { return s.id }

// Send marshals and writes an event to the transport. Events sent after the
// session closed are dropped silently; a write failure closes the session and
// is reported so the caller can log it.
func (s *Session) Send(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := s.transport.Write(wctx, data); err != nil {
		s.closed = true
		return fmt.Errorf("write to session %s: %w", s.id, err)
	}
	return nil
}

// Close transitions the session to closed and closes the transport. It is
// idempotent; subsequent Send calls become no-ops.
func (s *Session) Close(code websocket.StatusCode, reason string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.transport.Close(code, reason)
}

// Closed reports whether the session has been closed.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
