package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/inquest/pkg/models"
)

// streamHandler handles GET /api/v1/sessions/:id/stream?from_seq=N, the SSE
// endpoint. Connecting starts the session's worker if it has not started
// yet. The stream replays history after from_seq, then follows live events
// until the session reaches a terminal status.
//
// Frames are standard SSE: "event: <kind>\ndata: <json>\n\n". Keepalive
// frames are inserted after KeepaliveInterval of silence and carry seq 0;
// they are never part of session history.
func (s *Server) streamHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}
	fromSeq, err := parseSeqParam(c.QueryParam("from_seq"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid from_seq: must be a non-negative integer")
	}

	rec, err := s.store.Get(sessionID)
	if err != nil {
		// Retired session: serve the persisted history and complete.
		record, loadErr := s.adapter.Load(c.Request().Context(), sessionID)
		if loadErr != nil {
			return mapServiceError(loadErr)
		}
		w, rc := beginSSE(c)
		for _, e := range record.History {
			if e.Seq > fromSeq {
				if err := writeSSE(w, rc, e); err != nil {
					return nil
				}
			}
		}
		return nil
	}

	s.pool.EnsureStarted(rec)
	sub, replay := rec.Subscribe(fromSeq)
	defer rec.Unsubscribe(sub)

	w, rc := beginSSE(c)
	for _, e := range replay {
		if err := writeSSE(w, rc, e); err != nil {
			return nil
		}
	}

	keepalive := time.NewTicker(s.cfg.KeepaliveInterval)
	defer keepalive.Stop()
	reqCtx := c.Request().Context()

	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				// Terminal close: the final event has been delivered.
				return nil
			}
			if err := writeSSE(w, rc, event); err != nil {
				return nil
			}
			keepalive.Reset(s.cfg.KeepaliveInterval)
		case <-sub.Dropped():
			// This subscriber fell behind and was evicted; the session
			// itself is unaffected. Reconnecting with from_seq resumes.
			evicted := models.NewEvent(0, models.ErrorPayload{
				Message:     "subscriber evicted due to slow consumer",
				Recoverable: false,
			})
			_ = writeSSE(w, rc, evicted)
			return nil
		case <-keepalive.C:
			if err := writeSSE(w, rc, models.NewEvent(0, models.KeepalivePayload{})); err != nil {
				return nil
			}
		case <-reqCtx.Done():
			return nil
		}
	}
}

func beginSSE(c *echo.Context) (io.Writer, *http.ResponseController) {
	w := c.Response()
	h := w.Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	return w, http.NewResponseController(w)
}

func writeSSE(w io.Writer, rc *http.ResponseController, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Kind(), data); err != nil {
		return err
	}
	return rc.Flush()
}
