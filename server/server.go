package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/hupe1980/fundmesh/logging"
	"github.com/hupe1980/fundmesh/processor"
	"github.com/hupe1980/fundmesh/transcript"
)

// State describes the server lifecycle position.
type State int

const (
	// StateNotStarted is the initial state before the first Start.
	StateNotStarted State = iota
	// StateStarting covers endpoint binding.
	StateStarting
	// StateRunning means the listener is bound and accepting connections.
	StateRunning
	// StateStopping covers coordinated shutdown.
	StateStopping
	// StateStopped means the listener is released; Start may be called again.
	StateStopped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var (
	// ErrAlreadyRunning is returned by Start while a lifecycle transition or
	// run loop is already in flight.
	ErrAlreadyRunning = errors.New("server: already running")
	// ErrStopTimeout is returned by Stop when the run loop failed to
	// acknowledge shutdown within the configured bound.
	ErrStopTimeout = errors.New("server: shutdown timed out")
)

// Options configures the Server.
type Options struct {
	// Logger receives operational messages. Defaults to NoOpLogger.
	Logger logging.Logger
	// StopTimeout bounds the graceful part of shutdown before connections
	// are force-terminated.
	StopTimeout time.Duration
	// MaxConcurrentQueries limits in-flight processor invocations across all
	// sessions. Detached invocations left behind by disconnected clients
	// count against the limit. Zero means unlimited.
	MaxConcurrentQueries int
}

// Server owns the listening endpoint, the run loop and the session registry.
// Start and Stop are safe to call from any goroutine, including one foreign
// to the run loop (such as a UI thread): the shutdown signal crosses into the
// run loop via a command channel and Stop waits for acknowledgment with a
// bounded timeout.
type Server struct {
	handler     *SessionHandler
	store       *transcript.Store
	registry    *Registry
	logger      logging.Logger
	stopTimeout time.Duration

	mu      sync.Mutex
	state   State
	ln      net.Listener
	httpSrv *http.Server
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New constructs a Server around a query processor and a transcript store.
func New(proc processor.Processor, store *transcript.Store, optFns ...func(o *Options)) *Server {
	opts := Options{
		Logger:               logging.NoOpLogger{},
		StopTimeout:          5 * time.Second,
		MaxConcurrentQueries: 32,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	var limiter *processor.Limiter
	if opts.MaxConcurrentQueries > 0 {
		limiter = processor.NewLimiter(opts.MaxConcurrentQueries)
	}

	return &Server{
		handler:     NewSessionHandler(proc, store, limiter, opts.Logger),
		store:       store,
		registry:    NewRegistry(opts.Logger),
		logger:      opts.Logger,
		stopTimeout: opts.StopTimeout,
	}
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Addr returns the bound listen address, or "" while not running. Useful
// when starting with port 0.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Sessions returns the number of currently open streaming sessions.
func (s *Server) Sessions() int { return s.registry.Len() }

// Start binds the listening endpoint and launches the run loop. It returns
// once the endpoint is bound; a bind failure (port in use, bad address) is
// returned to the caller and the server does not enter the running state.
func (s *Server) Start(host string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateNotStarted, StateStopped:
	default:
		return ErrAlreadyRunning
	}
	s.state = StateStarting

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.state = StateStopped
		return fmt.Errorf("bind %s: %w", addr, err)
	}

	s.ln = ln
	s.httpSrv = &http.Server{Handler: s.routes()}
	s.stopCh = make(chan struct{}, 1)
	s.doneCh = make(chan struct{})
	s.state = StateRunning

	go s.run(ln, s.stopCh, s.doneCh)

	s.logger.Info("web server started", "addr", ln.Addr().String())

	return nil
}

// run is the server's event loop goroutine. It is the only place shutdown
// actions execute; a Stop issued from a foreign goroutine crosses over via
// the command channel rather than by mutating run-loop state directly.
func (s *Server) run(ln net.Listener, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	serveErr := make(chan error, 1)
	go func() { serveErr <- s.httpSrv.Serve(ln) }()

	select {
	case <-stopCh:
		s.registry.CloseAll()

		ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Warn("graceful shutdown incomplete, forcing close", "error", err)
			_ = s.httpSrv.Close()
		}
		<-serveErr

	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("serve loop terminated", "error", err)
		}
	}
}

// Stop drives the server from running to stopped: all open sessions are
// closed, the listener stops accepting and is released, and only then does
// Stop return. If the run loop does not acknowledge within the configured
// bound the server is force-terminated. Stop on a server that is not running
// is a no-op.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	stopCh, doneCh, httpSrv := s.stopCh, s.doneCh, s.httpSrv
	s.mu.Unlock()

	// Single-slot command channel: a duplicate signal is simply dropped.
	select {
	case stopCh <- struct{}{}:
	default:
	}

	select {
	case <-doneCh:
	case <-time.After(s.stopTimeout + time.Second):
		_ = httpSrv.Close()
		select {
		case <-doneCh:
		case <-time.After(time.Second):
			s.setState(StateStopped)
			return ErrStopTimeout
		}
	}

	s.setState(StateStopped)
	s.logger.Info("web server stopped")

	return nil
}

func (s *Server) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// handleWS upgrades the connection, admits the session and runs the read
// loop. Messages are handled one at a time; the read loop keeps running
// while a query is in flight so a disconnect is noticed promptly.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Error("websocket accept failed", "error", err)
		return
	}

	sess := newSession(wsTransport{conn: conn}, s.logger)
	s.registry.Admit(sess)
	s.logger.Info("websocket connection established", "session_id", sess.ID())

	defer func() {
		s.registry.Remove(sess)
		_ = sess.Close(websocket.StatusNormalClosure, "")
		s.logger.Info("websocket connection closed", "session_id", sess.ID())
	}()

	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		s.handler.HandleMessage(ctx, sess, data)
	}
}
