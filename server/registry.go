package server

import (
	"sync"

	"github.com/coder/websocket"
	"github.com/hupe1980/fundmesh/logging"
)

// Registry tracks the set of currently open sessions so server-initiated
// shutdown can close them all. Membership changes are safe under concurrent
// connection accept and close events.
type Registry struct {
	mu       sync.Mutex
	sessions map[*Session]struct{}
	logger   logging.Logger
}

// NewRegistry constructs an empty registry.
func NewRegistry(logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Registry{sessions: make(map[*Session]struct{}), logger: logger}
}

// Admit adds a session to the registry.
func (r *Registry) Admit(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s] = struct{}{}
}

// Remove takes a session out of the registry. Removing a session that is not
// a member is a no-op.
func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, s)
}

// Len returns the current number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll closes every current session best effort: failures on individual
// sessions are logged and swallowed so one bad connection cannot block
// shutdown of the others.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	snapshot := make([]*Session, 0, len(r.sessions))
	for s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	r.sessions = make(map[*Session]struct{})
	r.mu.Unlock()

	for _, s := range snapshot {
		if err := s.Close(websocket.StatusGoingAway, "server shutting down"); err != nil {
			r.logger.Warn("error closing session", "session_id", s.ID(), "error", err)
		}
	}
}
