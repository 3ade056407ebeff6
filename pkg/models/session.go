package models

import "time"

// Status represents the lifecycle state of an investigation session.
type Status string

// Session status values. Transitions are monotonic:
// pending → running → (awaiting_input ↔ running)* → {completed, failed, cancelled}.
const (
	StatusPending       Status = "pending"
	StatusRunning       Status = "running"
	StatusAwaitingInput Status = "awaiting_input"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
	StatusCancelled     Status = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
// Once terminal, no more events may be appended to the session history.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusAwaitingInput,
		StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// SessionSummary is the listing view of a session.
type SessionSummary struct {
	ID        string    `json:"id"`
	Scenario  string    `json:"scenario"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	LastSeq   int64     `json:"last_seq"`
}

// PersistedSession is the durable record flushed on terminal transition.
// Subscriber state and worker handles are never persisted.
type PersistedSession struct {
	ID           string    `json:"id"`
	AlertText    string    `json:"alert_text"`
	Scenario     string    `json:"scenario"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	History      []Event   `json:"history"`
	FinalMessage *string   `json:"final_message"`
}

// Summary derives the listing view from a persisted record.
func (p *PersistedSession) Summary() SessionSummary {
	var lastSeq int64
	if n := len(p.History); n > 0 {
		lastSeq = p.History[n-1].Seq
	}
	return SessionSummary{
		ID:        p.ID,
		Scenario:  p.Scenario,
		Status:    p.Status,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
		LastSeq:   lastSeq,
	}
}

// SessionFilter contains filtering options for listing persisted sessions.
type SessionFilter struct {
	Scenario string
	Limit    int
	Offset   int
}
