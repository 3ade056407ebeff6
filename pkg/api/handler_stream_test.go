package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/inquest/pkg/agentruntime"
	"github.com/codeready-toolchain/inquest/pkg/config"
	"github.com/codeready-toolchain/inquest/pkg/models"
)

type sseFrame struct {
	Event string
	Seq   int64
	Data  map[string]any
}

// readSSE consumes the response body until EOF and parses the frames.
func readSSE(t *testing.T, body io.Reader) []sseFrame {
	t.Helper()
	var frames []sseFrame
	var current sseFrame
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.Event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			payload := strings.TrimPrefix(line, "data: ")
			require.NoError(t, json.Unmarshal([]byte(payload), &current.Data))
			if seq, ok := current.Data["seq"].(float64); ok {
				current.Seq = int64(seq)
			}
		case line == "":
			if current.Event != "" {
				frames = append(frames, current)
			}
			current = sseFrame{}
		}
	}
	require.NoError(t, scanner.Err())
	return frames
}

func streamSession(t *testing.T, baseURL, sessionID string, fromSeq int64) []sseFrame {
	t.Helper()
	url := fmt.Sprintf("%s/api/v1/sessions/%s/stream?from_seq=%d", baseURL, sessionID, fromSeq)
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return readSSE(t, resp.Body)
}

func createSessionHTTP(t *testing.T, baseURL string) string {
	t.Helper()
	body := strings.NewReader(`{"alert": "disk pressure on node-4", "scenario": "infra-triage"}`)
	resp, err := http.Post(baseURL+"/api/v1/sessions", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created CreateSessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	return created.SessionID
}

func TestStreamHandler_FullRun(t *testing.T) {
	s, _ := newTestServer(t, happyRuntime(42))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	sessionID := createSessionHTTP(t, srv.URL)

	// Connecting the stream starts the worker; the body completes when the
	// session reaches its terminal status.
	frames := streamSession(t, srv.URL, sessionID, 0)

	var kinds []string
	for _, f := range frames {
		kinds = append(kinds, f.Event)
	}
	assert.Equal(t, []string{
		"run_start", "thread_created", "step_start", "step_complete",
		"message", "run_complete",
	}, kinds)

	// Monotone, gap-free sequence.
	for i, f := range frames {
		assert.Equal(t, int64(i+1), f.Seq)
		assert.Equal(t, f.Event, f.Data["kind"])
	}

	assert.Equal(t, "Replace the disk.", frames[4].Data["text"])
	assert.Equal(t, float64(42), frames[5].Data["tokens"])
}

func TestStreamHandler_ResumeFromSeq(t *testing.T) {
	s, _ := newTestServer(t, happyRuntime(42))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	sessionID := createSessionHTTP(t, srv.URL)

	first := streamSession(t, srv.URL, sessionID, 0)
	require.NotEmpty(t, first)
	lastSeq := first[len(first)-1].Seq

	// Reconnect mid-history: only events after the cursor are replayed,
	// no duplicates and no gaps.
	resumed := streamSession(t, srv.URL, sessionID, lastSeq-2)
	require.Len(t, resumed, 2)
	assert.Equal(t, lastSeq-1, resumed[0].Seq)
	assert.Equal(t, lastSeq, resumed[1].Seq)

	// Fully caught up: nothing to replay on a terminal session.
	caughtUp := streamSession(t, srv.URL, sessionID, lastSeq)
	assert.Empty(t, caughtUp)
}

func TestStreamHandler_RetiredSessionReplay(t *testing.T) {
	s, adapter := newTestServer(t, happyRuntime(42))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	msg := "done"
	require.NoError(t, adapter.Save(context.Background(), &models.PersistedSession{
		ID:        "retired-1",
		AlertText: "old alert",
		Scenario:  "infra-triage",
		Status:    models.StatusCompleted,
		CreatedAt: time.Now().Add(-time.Hour),
		UpdatedAt: time.Now().Add(-time.Hour),
		History: []models.Event{
			models.NewEvent(1, models.RunStartPayload{Alert: "old alert"}),
			models.NewEvent(2, models.MessagePayload{Text: msg}),
			models.NewEvent(3, models.RunCompletePayload{Steps: 0, DurationMS: 10}),
		},
		FinalMessage: &msg,
	}))

	frames := streamSession(t, srv.URL, "retired-1", 1)
	require.Len(t, frames, 2)
	assert.Equal(t, "message", frames[0].Event)
	assert.Equal(t, "run_complete", frames[1].Event)
}

func TestStreamHandler_SlowConsumerEviction(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	cfg.KeepaliveInterval = time.Hour
	cfg.SubscriberQueueCap = 1

	// Enough bulk that the handler's writes back up while the client is not
	// reading, so the worker overflows the one-slot queue.
	chunk := strings.Repeat("x", 64*1024)
	runtime := agentruntime.NewScriptedRuntime(agentruntime.ScriptedRun{
		ThreadID: "thread-1",
		Actions: []agentruntime.ScriptAction{
			func(_ context.Context, h agentruntime.Handler) error {
				for i := 0; i < 400; i++ {
					h.OnMessageDelta(chunk)
				}
				h.OnMessageCreate(agentruntime.Message{Text: "done", Final: true})
				return nil
			},
		},
		Result: &agentruntime.RunResult{ThreadID: "thread-1", FinalText: "done"},
	})
	s, adapter := newTestServerWithConfig(t, cfg, runtime)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	sessionID := createSessionHTTP(t, srv.URL)

	resp, err := http.Get(fmt.Sprintf("%s/api/v1/sessions/%s/stream?from_seq=0", srv.URL, sessionID))
	require.NoError(t, err)
	defer resp.Body.Close()

	// Leave the body unread until the run finishes; the session itself must
	// complete regardless of the stalled subscriber.
	require.Eventually(t, func() bool {
		persisted, loadErr := adapter.Load(context.Background(), sessionID)
		return loadErr == nil && persisted.Status == models.StatusCompleted
	}, 10*time.Second, 20*time.Millisecond)

	frames := readSSE(t, resp.Body)
	require.NotEmpty(t, frames)

	// The stream ends with the eviction error frame: seq 0, not part of
	// history, and terminal for this connection.
	last := frames[len(frames)-1]
	assert.Equal(t, "error", last.Event)
	assert.Equal(t, int64(0), last.Seq)
	assert.Equal(t, "subscriber evicted due to slow consumer", last.Data["message"])
	assert.Equal(t, false, last.Data["recoverable"])

	// Reconnecting with a cursor resumes against the full history.
	resumed := streamSession(t, srv.URL, sessionID, 400)
	require.NotEmpty(t, resumed)
	assert.Equal(t, "run_complete", resumed[len(resumed)-1].Event)
}

func TestStreamHandler_Validation(t *testing.T) {
	s, _ := newTestServer(t, happyRuntime(42))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/sessions/unknown/stream")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/sessions/unknown/stream?from_seq=nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
