package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /health. Only the engine's own dependencies are
// checked; the agent platform is deliberately excluded so an external
// outage does not get the engine restarted.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if err := s.adapter.Ping(reqCtx); err != nil {
		status = healthStatusUnhealthy
		checks["persistence"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
	} else {
		checks["persistence"] = HealthCheck{Status: healthStatusHealthy}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, HealthResponse{
		Status:       status,
		LiveSessions: s.store.Len(),
		Checks:       checks,
	})
}
