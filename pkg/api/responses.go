package api

import (
	"time"

	"github.com/codeready-toolchain/inquest/pkg/models"
	"github.com/codeready-toolchain/inquest/pkg/session"
)

// CreateSessionResponse is returned by POST /api/v1/sessions.
type CreateSessionResponse struct {
	SessionID string        `json:"session_id"`
	Status    models.Status `json:"status"`
}

// CancelResponse is returned by POST /api/v1/sessions/:id/cancel.
type CancelResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// StartResponse is returned by POST /api/v1/sessions/:id/start.
type StartResponse struct {
	SessionID string `json:"session_id"`
	Started   bool   `json:"started"`
}

// SessionDetail is returned by GET /api/v1/sessions/:id for both live and
// retired sessions.
type SessionDetail struct {
	ID           string        `json:"id"`
	AlertText    string        `json:"alert_text"`
	Scenario     string        `json:"scenario"`
	Status       models.Status `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	LastSeq      int64         `json:"last_seq"`
	ThreadID     string        `json:"thread_id,omitempty"`
	FinalMessage *string       `json:"final_message,omitempty"`
	Live         bool          `json:"live"`
}

// ListSessionsResponse is returned by GET /api/v1/sessions.
type ListSessionsResponse struct {
	Sessions []models.SessionSummary `json:"items"`
	Total    int                     `json:"total"`
}

// SessionEventsResponse is returned by GET /api/v1/sessions/:id/events.
type SessionEventsResponse struct {
	SessionID string         `json:"session_id"`
	Events    []models.Event `json:"events"`
	LastSeq   int64          `json:"last_seq"`
}

// ScenariosResponse is returned by GET /api/v1/scenarios.
type ScenariosResponse struct {
	Scenarios []string `json:"scenarios"`
}

// HealthCheck is one component entry in the health response.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status       string                 `json:"status"`
	LiveSessions int                    `json:"live_sessions"`
	Checks       map[string]HealthCheck `json:"checks"`
}

func detailFromRecord(rec *session.Record) SessionDetail {
	summary := rec.Summary()
	detail := SessionDetail{
		ID:        summary.ID,
		AlertText: rec.AlertText(),
		Scenario:  summary.Scenario,
		Status:    summary.Status,
		CreatedAt: summary.CreatedAt,
		UpdatedAt: summary.UpdatedAt,
		LastSeq:   summary.LastSeq,
		ThreadID:  rec.ThreadID(),
		Live:      true,
	}
	if msg := rec.FinalMessage(); msg != "" {
		detail.FinalMessage = &msg
	}
	return detail
}

func detailFromPersisted(record *models.PersistedSession) SessionDetail {
	summary := record.Summary()
	return SessionDetail{
		ID:           summary.ID,
		AlertText:    record.AlertText,
		Scenario:     summary.Scenario,
		Status:       summary.Status,
		CreatedAt:    summary.CreatedAt,
		UpdatedAt:    summary.UpdatedAt,
		LastSeq:      summary.LastSeq,
		FinalMessage: record.FinalMessage,
		Live:         false,
	}
}
