package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/coder/websocket"
	"github.com/hupe1980/fundmesh/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport records frames and close calls in place of a real websocket
// connection.
type fakeTransport struct {
	mu        sync.Mutex
	frames    [][]byte
	writeErr  error
	closeErr  error
	closed    bool
	closeCode websocket.StatusCode
}

func (t *fakeTransport) Write(_ context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return t.writeErr
	}
	t.frames = append(t.frames, append([]byte(nil), data...))
	return nil
}

func (t *fakeTransport) Close(code websocket.StatusCode, _ string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.closeCode = code
	return t.closeErr
}

// events decodes all recorded frames.
func (t *fakeTransport) events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	events := make([]Event, 0, len(t.frames))
	for _, frame := range t.frames {
		var ev Event
		if err := json.Unmarshal(frame, &ev); err == nil {
			events = append(events, ev)
		}
	}
	return events
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func TestSession_Send(t *testing.T) {
	t.Run("writes event frames", func(t *testing.T) {
		transport := &fakeTransport{}
		sess := newSession(transport, logging.NoOpLogger{})

		require.NoError(t, sess.Send(context.Background(), newIntermediateEvent("working")))
		require.NoError(t, sess.Send(context.Background(), newResultEvent("done")))

		events := transport.events()
		require.Len(t, events, 2)
		assert.Equal(t, Event{Type: "intermediate", Message: "working"}, events[0])
		assert.Equal(t, Event{Type: "result", Response: "done"}, events[1])
	})

	t.Run("noop after close", func(t *testing.T) {
		transport := &fakeTransport{}
		sess := newSession(transport, logging.NoOpLogger{})

		require.NoError(t, sess.Close(websocket.StatusNormalClosure, ""))
		require.NoError(t, sess.Send(context.Background(), newResultEvent("late")))

		assert.Empty(t, transport.events())
	})

	t.Run("write failure closes the session", func(t *testing.T) {
		transport := &fakeTransport{writeErr: errors.New("broken pipe")}
		sess := newSession(transport, logging.NoOpLogger{})

		err := sess.Send(context.Background(), newResultEvent("x"))
		assert.Error(t, err)
		assert.True(t, sess.Closed())

		// Follow-up sends are silently dropped.
		assert.NoError(t, sess.Send(context.Background(), newResultEvent("y")))
	})
}

func TestSession_Close(t *testing.T) {
	transport := &fakeTransport{}
	sess := newSession(transport, logging.NoOpLogger{})

	assert.False(t, sess.Closed())
	require.NoError(t, sess.Close(websocket.StatusGoingAway, "bye"))
	assert.True(t, sess.Closed())
	assert.Equal(t, websocket.StatusGoingAway, transport.closeCode)

	// Idempotent.
	require.NoError(t, sess.Close(websocket.StatusGoingAway, "bye"))
}

func TestSession_ID(t *testing.T) {
	a := newSession(&fakeTransport{}, logging.NoOpLogger{})
	b := newSession(&fakeTransport{}, logging.NoOpLogger{})

	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}
