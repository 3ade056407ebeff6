package api

import (
	"errors"
	"net/http"
	"sort"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/inquest/pkg/models"
	"github.com/codeready-toolchain/inquest/pkg/persistence"
)

// createSessionHandler handles POST /api/v1/sessions. The session is
// created pending; its worker starts on the first stream subscription or an
// explicit start call.
func (s *Server) createSessionHandler(c *echo.Context) error {
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	rec, err := s.store.Create(req.AlertText, req.Scenario)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusCreated, CreateSessionResponse{
		SessionID: rec.ID(),
		Status:    rec.Status(),
	})
}

// getSessionHandler handles GET /api/v1/sessions/:id. Live sessions take
// precedence over retired ones.
func (s *Server) getSessionHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	if rec, err := s.store.Get(sessionID); err == nil {
		return c.JSON(http.StatusOK, detailFromRecord(rec))
	}

	record, err := s.adapter.Load(c.Request().Context(), sessionID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, detailFromPersisted(record))
}

// listSessionsHandler handles GET /api/v1/sessions. Live and retired
// sessions are merged, newest first; a session mid-retirement shows up once
// with its live state winning.
func (s *Server) listSessionsHandler(c *echo.Context) error {
	filter := models.SessionFilter{Scenario: c.QueryParam("scenario")}
	limit, offset := 0, 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit: must be a non-negative integer")
		}
		limit = n
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid offset: must be a non-negative integer")
		}
		offset = n
	}

	live := s.store.List()
	seen := make(map[string]struct{}, len(live))
	merged := make([]models.SessionSummary, 0, len(live))
	for _, summary := range live {
		if filter.Scenario != "" && summary.Scenario != filter.Scenario {
			continue
		}
		seen[summary.ID] = struct{}{}
		merged = append(merged, summary)
	}

	persisted, err := s.adapter.List(c.Request().Context(), filter)
	if err != nil {
		return mapServiceError(err)
	}
	for _, summary := range persisted {
		if _, dup := seen[summary.ID]; dup {
			continue
		}
		merged = append(merged, summary)
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})

	total := len(merged)
	if offset >= len(merged) {
		merged = nil
	} else {
		merged = merged[offset:]
	}
	if limit > 0 && limit < len(merged) {
		merged = merged[:limit]
	}

	return c.JSON(http.StatusOK, ListSessionsResponse{Sessions: merged, Total: total})
}

// startSessionHandler handles POST /api/v1/sessions/:id/start. Idempotent:
// starting an already-started session reports started=false.
func (s *Server) startSessionHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	rec, err := s.store.Get(sessionID)
	if err != nil {
		return mapServiceError(err)
	}

	started := s.pool.EnsureStarted(rec)
	return c.JSON(http.StatusAccepted, StartResponse{SessionID: sessionID, Started: started})
}

// cancelSessionHandler handles POST /api/v1/sessions/:id/cancel. The cancel
// latch is fired and the worker observes it at its next safe point; the
// response is accepted, not completed.
func (s *Server) cancelSessionHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	rec, err := s.store.Get(sessionID)
	if err != nil {
		// A retired session is terminal and cannot be cancelled.
		if _, loadErr := s.adapter.Load(c.Request().Context(), sessionID); loadErr == nil {
			return echo.NewHTTPError(http.StatusConflict, "session already finished")
		}
		return mapServiceError(err)
	}
	if rec.Status().Terminal() {
		return echo.NewHTTPError(http.StatusConflict, "session already finished")
	}

	rec.Cancel()
	// A pending session has no worker to observe the latch; start one so it
	// reaches its terminal status.
	s.pool.EnsureStarted(rec)

	return c.JSON(http.StatusAccepted, CancelResponse{
		SessionID: sessionID,
		Message:   "cancellation requested",
	})
}

// deleteSessionHandler handles DELETE /api/v1/sessions/:id. Only terminal
// sessions may be deleted.
func (s *Server) deleteSessionHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	if rec, err := s.store.Get(sessionID); err == nil {
		if !rec.Status().Terminal() {
			return echo.NewHTTPError(http.StatusConflict, "session is still running")
		}
		s.store.Remove(sessionID)
	} else if _, loadErr := s.adapter.Load(c.Request().Context(), sessionID); loadErr != nil {
		if errors.Is(loadErr, persistence.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return mapServiceError(loadErr)
	}

	if err := s.adapter.Delete(c.Request().Context(), sessionID); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// sessionEventsHandler handles GET /api/v1/sessions/:id/events?after=N.
// Returns the history slice with seq > after, for polling clients and
// retired sessions.
func (s *Server) sessionEventsHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}
	after, err := parseSeqParam(c.QueryParam("after"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid after: must be a non-negative integer")
	}

	var history []models.Event
	if rec, getErr := s.store.Get(sessionID); getErr == nil {
		history = rec.History()
	} else {
		record, loadErr := s.adapter.Load(c.Request().Context(), sessionID)
		if loadErr != nil {
			return mapServiceError(loadErr)
		}
		history = record.History
	}

	events := make([]models.Event, 0, len(history))
	var lastSeq int64
	for _, e := range history {
		lastSeq = e.Seq
		if e.Seq > after {
			events = append(events, e)
		}
	}

	return c.JSON(http.StatusOK, SessionEventsResponse{
		SessionID: sessionID,
		Events:    events,
		LastSeq:   lastSeq,
	})
}

// listScenariosHandler handles GET /api/v1/scenarios.
func (s *Server) listScenariosHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, ScenariosResponse{Scenarios: s.scenarios.Names()})
}

func parseSeqParam(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, errors.New("invalid sequence")
	}
	return n, nil
}
