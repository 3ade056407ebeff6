// Package models defines the session lifecycle types and the closed event
// taxonomy streamed to clients. Every event carries a strictly monotonic
// per-session sequence number, a millisecond timestamp and a kind-specific
// payload; the kind space is closed so client adapters and the persistence
// layer can switch exhaustively.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind identifies the payload variant of an event.
type EventKind string

// The closed event kind space.
const (
	KindRunStart      EventKind = "run_start"
	KindThreadCreated EventKind = "thread_created"
	KindStepStart     EventKind = "step_start"
	KindStepComplete  EventKind = "step_complete"
	KindThinking      EventKind = "thinking"
	KindMessageDelta  EventKind = "message_delta"
	KindMessage       EventKind = "message"
	KindRetry         EventKind = "retry"
	KindRunComplete   EventKind = "run_complete"
	KindError         EventKind = "error"
	KindKeepalive     EventKind = "keepalive"
)

// Payload is implemented by all event payload variants.
type Payload interface {
	EventKind() EventKind
}

// RunStartPayload marks the worker opening the conversation. Subscribers
// MUST discard any step state accumulated before it (see RetryPayload).
type RunStartPayload struct {
	Alert    string `json:"alert"`
	ThreadID string `json:"thread_id,omitempty"`
}

func (RunStartPayload) EventKind() EventKind { return KindRunStart }

// ThreadCreatedPayload is emitted once per session, the first time the
// agent runtime returns a thread id.
type ThreadCreatedPayload struct {
	ThreadID string `json:"thread_id"`
}

func (ThreadCreatedPayload) EventKind() EventKind { return KindThreadCreated }

// StepStartPayload marks the start of an agent delegation.
type StepStartPayload struct {
	Step  int    `json:"step"`
	Agent string `json:"agent"`
}

func (StepStartPayload) EventKind() EventKind { return KindStepStart }

// StepCompletePayload carries the finished delegation. Query, Reasoning and
// Response are truncated to the configured caps before emission.
type StepCompletePayload struct {
	Step       int    `json:"step"`
	Agent      string `json:"agent"`
	DurationMS int64  `json:"duration_ms"`
	Query      string `json:"query"`
	Reasoning  string `json:"reasoning,omitempty"`
	Response   string `json:"response"`
	Error      bool   `json:"error"`
}

func (StepCompletePayload) EventKind() EventKind { return KindStepComplete }

// ThinkingPayload is narrative progress text between tool calls.
type ThinkingPayload struct {
	Text string `json:"text"`
}

func (ThinkingPayload) EventKind() EventKind { return KindThinking }

// MessageDeltaPayload is an incremental chunk of the final diagnosis.
type MessageDeltaPayload struct {
	Text string `json:"text"`
}

func (MessageDeltaPayload) EventKind() EventKind { return KindMessageDelta }

// MessagePayload is the terminal diagnosis, reasoning blocks stripped.
type MessagePayload struct {
	Text string `json:"text"`
}

func (MessagePayload) EventKind() EventKind { return KindMessage }

// RetryPayload signals a re-invocation after a recoverable failure.
// Subscribers MUST discard steps accumulated since the previous run_start.
type RetryPayload struct {
	Attempt int    `json:"attempt"`
	Reason  string `json:"reason"`
}

func (RetryPayload) EventKind() EventKind { return KindRetry }

// RunCompletePayload is the final success marker.
type RunCompletePayload struct {
	Steps      int   `json:"steps"`
	Tokens     *int  `json:"tokens,omitempty"`
	DurationMS int64 `json:"duration_ms"`
}

func (RunCompletePayload) EventKind() EventKind { return KindRunComplete }

// ErrorPayload surfaces a fatal error (Recoverable=false, terminal) or a
// non-fatal incident logged for UX.
type ErrorPayload struct {
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

func (ErrorPayload) EventKind() EventKind { return KindError }

// KeepalivePayload is inserted by the SSE gateway to defeat idle-proxy
// timeouts. It is never written to session history.
type KeepalivePayload struct{}

func (KeepalivePayload) EventKind() EventKind { return KindKeepalive }

// Event is one entry in a session's totally ordered history.
type Event struct {
	Seq     int64
	TS      int64 // unix milliseconds
	Payload Payload
}

// Kind returns the payload's event kind.
func (e Event) Kind() EventKind {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.EventKind()
}

// NewEvent stamps a payload with a sequence number and the current time.
func NewEvent(seq int64, payload Payload) Event {
	return Event{Seq: seq, TS: time.Now().UnixMilli(), Payload: payload}
}

// MarshalJSON flattens the payload fields into a single object carrying
// seq, ts and kind, so clients and the persistence layer see one envelope:
//
//	{"seq": 3, "ts": 1700000000000, "kind": "step_start", "step": 1, "agent": "topology"}
func (e Event) MarshalJSON() ([]byte, error) {
	payloadJSON, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", e.Kind(), err)
	}

	var m map[string]any
	if err := json.Unmarshal(payloadJSON, &m); err != nil {
		return nil, fmt.Errorf("failed to flatten %s payload: %w", e.Kind(), err)
	}
	if m == nil {
		m = make(map[string]any, 3)
	}
	m["seq"] = e.Seq
	m["ts"] = e.TS
	m["kind"] = e.Kind()

	return json.Marshal(m)
}

// UnmarshalJSON decodes the flattened envelope back into a typed payload.
// Unknown kinds are an error: the kind space is closed.
func (e *Event) UnmarshalJSON(data []byte) error {
	var envelope struct {
		Seq  int64     `json:"seq"`
		TS   int64     `json:"ts"`
		Kind EventKind `json:"kind"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}

	payload, err := decodePayload(envelope.Kind, data)
	if err != nil {
		return err
	}

	e.Seq = envelope.Seq
	e.TS = envelope.TS
	e.Payload = payload
	return nil
}

func decodePayload(kind EventKind, data []byte) (Payload, error) {
	var p Payload
	var err error
	switch kind {
	case KindRunStart:
		var v RunStartPayload
		err = json.Unmarshal(data, &v)
		p = v
	case KindThreadCreated:
		var v ThreadCreatedPayload
		err = json.Unmarshal(data, &v)
		p = v
	case KindStepStart:
		var v StepStartPayload
		err = json.Unmarshal(data, &v)
		p = v
	case KindStepComplete:
		var v StepCompletePayload
		err = json.Unmarshal(data, &v)
		p = v
	case KindThinking:
		var v ThinkingPayload
		err = json.Unmarshal(data, &v)
		p = v
	case KindMessageDelta:
		var v MessageDeltaPayload
		err = json.Unmarshal(data, &v)
		p = v
	case KindMessage:
		var v MessagePayload
		err = json.Unmarshal(data, &v)
		p = v
	case KindRetry:
		var v RetryPayload
		err = json.Unmarshal(data, &v)
		p = v
	case KindRunComplete:
		var v RunCompletePayload
		err = json.Unmarshal(data, &v)
		p = v
	case KindError:
		var v ErrorPayload
		err = json.Unmarshal(data, &v)
		p = v
	case KindKeepalive:
		p = KeepalivePayload{}
	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
	}
	return p, nil
}
