package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsEnvelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Message   string          `json:"message"`
	Status    string          `json:"status"`
	Event     json.RawMessage `json:"event"`
}

func wsRead(t *testing.T, ctx context.Context, conn *websocket.Conn) wsEnvelope {
	t.Helper()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var env wsEnvelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func wsSend(t *testing.T, ctx context.Context, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func TestWebSocketSubscribeStreamsSession(t *testing.T) {
	s, _ := newTestServer(t, happyRuntime(42))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	sessionID := createSessionHTTP(t, srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	env := wsRead(t, ctx, conn)
	assert.Equal(t, "connection.established", env.Type)

	wsSend(t, ctx, conn, ClientMessage{Action: "subscribe", SessionID: sessionID})
	env = wsRead(t, ctx, conn)
	assert.Equal(t, "subscription.confirmed", env.Type)
	assert.Equal(t, sessionID, env.SessionID)

	// Subscribing starts the worker; collect events until the stream closes.
	var kinds []string
	for {
		env = wsRead(t, ctx, conn)
		if env.Type == "stream.closed" {
			assert.Equal(t, "completed", env.Status)
			break
		}
		require.Equal(t, "event", env.Type)
		var event struct {
			Kind string `json:"kind"`
		}
		require.NoError(t, json.Unmarshal(env.Event, &event))
		kinds = append(kinds, event.Kind)
	}

	assert.Equal(t, []string{
		"run_start", "thread_created", "step_start", "step_complete",
		"message", "run_complete",
	}, kinds)
}

func TestWebSocketSubscribeUnknownSession(t *testing.T) {
	s, _ := newTestServer(t, happyRuntime(42))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	env := wsRead(t, ctx, conn)
	require.Equal(t, "connection.established", env.Type)

	wsSend(t, ctx, conn, ClientMessage{Action: "subscribe", SessionID: "unknown"})
	env = wsRead(t, ctx, conn)
	assert.Equal(t, "subscription.error", env.Type)
	assert.Equal(t, "session not live", env.Message)

	// The connection survives the failed subscribe.
	wsSend(t, ctx, conn, ClientMessage{Action: "ping"})
	env = wsRead(t, ctx, conn)
	assert.Equal(t, "pong", env.Type)
}
