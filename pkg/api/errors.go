package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/inquest/pkg/persistence"
	"github.com/codeready-toolchain/inquest/pkg/session"
)

// mapServiceError maps engine errors to HTTP error responses.
func mapServiceError(err error) *echo.HTTPError {
	var validErr *session.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusBadRequest, validErr.Error())
	}
	if errors.Is(err, session.ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if errors.Is(err, session.ErrNotTerminal) {
		return echo.NewHTTPError(http.StatusConflict, "session is still running")
	}
	if errors.Is(err, session.ErrResourceExhausted) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "live session limit reached, retry later")
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
