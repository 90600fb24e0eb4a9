package server

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/hupe1980/fundmesh/processor"
	"github.com/hupe1980/fundmesh/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, proc processor.Processor) *Server {
	t.Helper()

	store, err := transcript.NewStore(t.TempDir())
	require.NoError(t, err)

	srv := New(proc, store, func(o *Options) {
		o.StopTimeout = 2 * time.Second
	})
	t.Cleanup(func() { _ = srv.Stop() })

	return srv
}

func echoProcessor() processor.Processor {
	return processor.Func(func(_ context.Context, question string, onProgress processor.ProgressFunc) (string, error) {
		onProgress("thinking")
		return "echo: " + question, nil
	})
}

func dialWS(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+srv.Addr()+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	return conn
}

func TestServer_StartStop(t *testing.T) {
	srv := newTestServer(t, echoProcessor())

	assert.Equal(t, StateNotStarted, srv.State())
	assert.Empty(t, srv.Addr())

	require.NoError(t, srv.Start("127.0.0.1", 0))
	assert.Equal(t, StateRunning, srv.State())
	assert.NotEmpty(t, srv.Addr())

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Stop())
	assert.Equal(t, StateStopped, srv.State())

	// Stop on a stopped server is a no-op.
	require.NoError(t, srv.Stop())

	// The server may be started again after a stop.
	require.NoError(t, srv.Start("127.0.0.1", 0))
	assert.Equal(t, StateRunning, srv.State())
	require.NoError(t, srv.Stop())
}

func TestServer_StartWhileRunning(t *testing.T) {
	srv := newTestServer(t, echoProcessor())

	require.NoError(t, srv.Start("127.0.0.1", 0))
	assert.ErrorIs(t, srv.Start("127.0.0.1", 0), ErrAlreadyRunning)
}

func TestServer_BindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := newTestServer(t, echoProcessor())

	err = srv.Start("127.0.0.1", ln.Addr().(*net.TCPAddr).Port)
	require.Error(t, err)
	assert.ErrorContains(t, err, "bind")
	assert.Equal(t, StateStopped, srv.State())
}

func TestServer_QueryRoundTrip(t *testing.T) {
	srv := newTestServer(t, echoProcessor())
	require.NoError(t, srv.Start("127.0.0.1", 0))

	conn := dialWS(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, wsjson.Write(ctx, conn, map[string]string{"question": "hello"}))

	var events []Event
	for {
		var ev Event
		require.NoError(t, wsjson.Read(ctx, conn, &ev))
		events = append(events, ev)
		if ev.Type == "result" {
			break
		}
	}

	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, Event{Type: "intermediate", Message: "Processing your question..."}, events[0])
	assert.Equal(t, Event{Type: "intermediate", Message: "thinking"}, events[1])
	assert.Equal(t, Event{Type: "result", Response: "echo: hello"}, events[len(events)-1])
}

func TestServer_MalformedFrame(t *testing.T) {
	srv := newTestServer(t, echoProcessor())
	require.NoError(t, srv.Start("127.0.0.1", 0))

	conn := dialWS(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{not json")))

	var ev Event
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	assert.Equal(t, "error", ev.Type)
	assert.Contains(t, ev.Message, "malformed request")
}

func TestServer_StopClosesSessions(t *testing.T) {
	srv := newTestServer(t, echoProcessor())
	require.NoError(t, srv.Start("127.0.0.1", 0))

	a := dialWS(t, srv)
	b := dialWS(t, srv)

	require.Eventually(t, func() bool { return srv.Sessions() == 2 }, waitFor, tick)

	require.NoError(t, srv.Stop())
	assert.Equal(t, 0, srv.Sessions())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, _, err := a.Read(ctx)
	assert.Error(t, err)
	_, _, err = b.Read(ctx)
	assert.Error(t, err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "not-started", StateNotStarted.String())
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopping", StateStopping.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "unknown", State(99).String())
}
