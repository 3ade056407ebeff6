package agentruntime

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// defaultIdleTimeout bounds the gap between stream events. A platform that
// stops talking mid-run is treated as a recoverable stream timeout.
const defaultIdleTimeout = 120 * time.Second

// HTTPClient drives runs on the agent platform over its streaming HTTP API:
// one POST per attempt, the response body is an SSE event stream.
type HTTPClient struct {
	baseURL     string
	httpClient  *http.Client
	idleTimeout time.Duration
}

// HTTPClientOption configures the HTTPClient.
type HTTPClientOption func(*HTTPClient)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(c *http.Client) HTTPClientOption {
	return func(h *HTTPClient) { h.httpClient = c }
}

// WithIdleTimeout overrides the stream idle timeout.
func WithIdleTimeout(d time.Duration) HTTPClientOption {
	return func(h *HTTPClient) { h.idleTimeout = d }
}

// NewHTTPClient creates a runtime client for the platform at baseURL.
func NewHTTPClient(baseURL string, opts ...HTTPClientOption) *HTTPClient {
	h := &HTTPClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{},
		idleTimeout: defaultIdleTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type runRequestBody struct {
	ThreadID            string   `json:"thread_id,omitempty"`
	Alert               string   `json:"alert"`
	OrchestratorAgentID string   `json:"orchestrator_agent_id"`
	SubAgentIDs         []string `json:"sub_agent_ids,omitempty"`
}

// streamEvent is one frame of the platform's run stream.
type streamEvent struct {
	ThreadID string `json:"thread_id,omitempty"`

	StepID    string `json:"step_id,omitempty"`
	Agent     string `json:"agent,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`
	Failed    bool   `json:"failed,omitempty"`

	Text  string `json:"text,omitempty"`
	Final bool   `json:"final,omitempty"`

	State string `json:"state,omitempty"`

	FinalText string `json:"final_text,omitempty"`
	Steps     int    `json:"steps,omitempty"`
	Tokens    *int   `json:"tokens,omitempty"`

	Message     string `json:"message,omitempty"`
	Recoverable bool   `json:"recoverable,omitempty"`
}

// StreamRun executes one attempt against the platform, translating stream
// frames into handler callbacks.
func (h *HTTPClient) StreamRun(ctx context.Context, req RunRequest, handler Handler) (*RunResult, error) {
	body, err := json.Marshal(runRequestBody{
		ThreadID:            req.ThreadID,
		Alert:               req.Alert,
		OrchestratorAgentID: req.OrchestratorAgentID,
		SubAgentIDs:         req.SubAgentIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode run request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/v1/runs", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build run request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := h.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{Op: "start run", Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, req.OrchestratorAgentID)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return nil, &SchemaError{Detail: readErrorBody(resp.Body)}
	default:
		return nil, &TransportError{
			Op:  "start run",
			Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, readErrorBody(resp.Body)),
		}
	}

	return h.consumeStream(ctx, resp.Body, handler)
}

func (h *HTTPClient) consumeStream(ctx context.Context, body io.Reader, handler Handler) (*RunResult, error) {
	frames := make(chan frame)
	quit := make(chan struct{})
	defer close(quit)
	go scanFrames(body, frames, quit)

	idle := time.NewTimer(h.idleTimeout)
	defer idle.Stop()

	var result *RunResult
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				if result == nil {
					return nil, &TransportError{Op: "read stream", Err: errors.New("stream ended without a result")}
				}
				return result, nil
			}
			if f.err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, &TransportError{Op: "read stream", Err: f.err}
			}

			done, res, err := dispatchFrame(f, handler)
			if err != nil {
				return nil, err
			}
			if res != nil {
				result = res
			}
			if done {
				return result, nil
			}

			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(h.idleTimeout)
		case <-idle.C:
			return nil, ErrStreamTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

type frame struct {
	event string
	data  []byte
	err   error
}

// scanFrames parses SSE frames off the body and closes the channel on EOF.
// A read error is delivered as the final frame. The quit channel unblocks
// pending sends when the consumer returns early.
func scanFrames(body io.Reader, out chan<- frame, quit <-chan struct{}) {
	defer close(out)

	send := func(f frame) bool {
		select {
		case out <- f:
			return true
		case <-quit:
			return false
		}
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var event string
	var data []byte
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = []byte(strings.TrimPrefix(line, "data: "))
		case line == "":
			if event != "" && !send(frame{event: event, data: data}) {
				return
			}
			event, data = "", nil
		}
	}
	if err := scanner.Err(); err != nil {
		send(frame{err: err})
	}
}

// dispatchFrame maps one platform frame onto handler callbacks. Returns
// done=true when the run is over.
func dispatchFrame(f frame, handler Handler) (done bool, result *RunResult, err error) {
	var ev streamEvent
	if len(f.data) > 0 {
		if err := json.Unmarshal(f.data, &ev); err != nil {
			return false, nil, &SchemaError{Detail: fmt.Sprintf("malformed %s frame: %v", f.event, err)}
		}
	}

	switch f.event {
	case "thread.created":
		handler.OnThreadCreated(ev.ThreadID)
	case "run.step.start":
		handler.OnRunStepStart(StepStart{StepID: ev.StepID, Agent: ev.Agent, Arguments: ev.Arguments})
	case "run.step.complete":
		handler.OnRunStepComplete(StepComplete{
			StepID: ev.StepID, Agent: ev.Agent, Arguments: ev.Arguments,
			Output: ev.Output, Failed: ev.Failed,
		})
	case "message.delta":
		handler.OnMessageDelta(ev.Text)
	case "message.create":
		handler.OnMessageCreate(Message{Text: ev.Text, Final: ev.Final})
	case "run.state":
		state := RunState(ev.State)
		switch state {
		case RunStateRunning, RunStateAwaitingInput, RunStateEnded:
			handler.OnRunStateChange(state)
		default:
			return false, nil, &SchemaError{Detail: "unknown run state " + ev.State}
		}
	case "run.result":
		return true, &RunResult{
			ThreadID:  ev.ThreadID,
			FinalText: ev.FinalText,
			Steps:     ev.Steps,
			Tokens:    ev.Tokens,
		}, nil
	case "error":
		if ev.Recoverable {
			return false, nil, &TransportError{Op: "run", Err: errors.New(ev.Message)}
		}
		return false, nil, &SchemaError{Detail: ev.Message}
	default:
		return false, nil, &SchemaError{Detail: "unknown stream event " + f.event}
	}
	return false, nil, nil
}

func readErrorBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return "no response body"
	}
	return strings.TrimSpace(string(data))
}
