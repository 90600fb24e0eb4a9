package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hupe1980/fundmesh/logging"
	"github.com/hupe1980/fundmesh/processor"
	"github.com/hupe1980/fundmesh/transcript"
)

// queryRequest is the client-to-server message on the streaming channel.
type queryRequest struct {
	Question string `json:"question"`
}

// SessionHandler drives the per-session query state machine: it parses
// incoming messages, runs at most one processor invocation per session at a
// time, relays progress events in arrival order and persists completed
// answers.
type SessionHandler struct {
	processor processor.Processor
	store     *transcript.Store
	limiter   *processor.Limiter
	logger    logging.Logger
}

// NewSessionHandler constructs a handler over the given processor and store.
// limiter may be nil to leave concurrent invocations unbounded.
func NewSessionHandler(proc processor.Processor, store *transcript.Store, limiter *processor.Limiter, logger logging.Logger) *SessionHandler {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &SessionHandler{processor: proc, store: store, limiter: limiter, logger: logger}
}

// HandleMessage processes one raw text frame received on a session. It
// returns once the query has been accepted (or rejected); the invocation
// itself runs on its own goroutine, detached from the connection context so a
// disconnect discards its output without cancelling it.
func (h *SessionHandler) HandleMessage(ctx context.Context, sess *Session, data []byte) {
	var req queryRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.logger.Error("malformed request", "session_id", sess.ID(), "error", err)
		h.send(ctx, sess, newErrorEvent(fmt.Sprintf("malformed request: %v", err)))
		return
	}

	// Blank questions are deliberately ignored without emitting an event.
	if req.Question == "" {
		h.logger.Warn("received blank question", "session_id", sess.ID())
		return
	}

	if !sess.busy.CompareAndSwap(false, true) {
		h.send(ctx, sess, newErrorEvent("a query is already in progress on this connection"))
		return
	}

	h.logger.Info("received question", "session_id", sess.ID())

	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer sess.busy.Store(false)
		h.process(runCtx, sess, req.Question)
	}()
}

func (h *SessionHandler) process(ctx context.Context, sess *Session, question string) {
	if h.limiter != nil {
		if !h.limiter.TryAcquire() {
			h.send(ctx, sess, newErrorEvent("the server is processing too many queries, please retry later"))
			return
		}
		defer h.limiter.Release()
	}

	h.send(ctx, sess, newIntermediateEvent("Processing your question..."))

	answer, err := h.processor.Invoke(ctx, question, func(message string) {
		h.logger.Info("intermediate output", "session_id", sess.ID(), "message", message)
		h.send(ctx, sess, newIntermediateEvent(message))
	})
	if err != nil {
		h.logger.Error("query processing failed", "session_id", sess.ID(), "error", err)
		h.send(ctx, sess, newErrorEvent(fmt.Sprintf("error while processing the question: %v", err)))
		return
	}

	// Persistence is best effort relative to client delivery: a storage
	// failure is logged but never withholds the result event.
	if _, err := h.store.Append(question, answer); err != nil {
		h.logger.Error("failed to save transcript", "session_id", sess.ID(), "error", err)
	}

	h.send(ctx, sess, newResultEvent(answer))
}

// send delivers an event, logging (rather than propagating) delivery
// failures: a session that closed mid-query simply stops receiving output.
func (h *SessionHandler) send(ctx context.Context, sess *Session, ev Event) {
	if err := sess.Send(ctx, ev); err != nil {
		h.logger.Warn("dropping event for closed session", "session_id", sess.ID(), "type", ev.Type, "error", err)
	}
}
