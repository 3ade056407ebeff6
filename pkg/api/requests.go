package api

// CreateSessionRequest is the HTTP request body for POST /api/v1/sessions.
type CreateSessionRequest struct {
	AlertText string `json:"alert"`
	Scenario  string `json:"scenario"`
}
