// Package api exposes the session engine over HTTP: the REST surface, the
// SSE stream, and the WebSocket gateway.
package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/inquest/pkg/config"
	"github.com/codeready-toolchain/inquest/pkg/persistence"
	"github.com/codeready-toolchain/inquest/pkg/session"
	"github.com/codeready-toolchain/inquest/pkg/worker"
)

// Server is the HTTP server for the session engine.
type Server struct {
	cfg         config.EngineConfig
	store       *session.Store
	pool        *worker.Pool
	adapter     persistence.Adapter
	scenarios   *config.Registry
	connManager *ConnectionManager

	echo       *echo.Echo
	httpServer *http.Server
}

// NewServer creates the API server and registers all routes.
func NewServer(cfg config.EngineConfig, store *session.Store, pool *worker.Pool,
	adapter persistence.Adapter, scenarios *config.Registry) *Server {
	s := &Server{
		cfg:         cfg,
		store:       store,
		pool:        pool,
		adapter:     adapter,
		scenarios:   scenarios,
		connManager: NewConnectionManager(store, pool, 10*time.Second),
	}

	e := echo.New()
	e.Use(securityHeaders())

	e.GET("/health", s.healthHandler)

	v1 := e.Group("/api/v1")
	v1.POST("/sessions", s.createSessionHandler)
	v1.GET("/sessions", s.listSessionsHandler)
	v1.GET("/sessions/:id", s.getSessionHandler)
	v1.DELETE("/sessions/:id", s.deleteSessionHandler)
	v1.POST("/sessions/:id/start", s.startSessionHandler)
	v1.POST("/sessions/:id/cancel", s.cancelSessionHandler)
	v1.GET("/sessions/:id/events", s.sessionEventsHandler)
	v1.GET("/sessions/:id/stream", s.streamHandler)
	v1.GET("/scenarios", s.listScenariosHandler)
	v1.GET("/ws", s.wsHandler)

	s.echo = e
	return s
}

// Start runs the HTTP server. Blocks until shutdown or listen failure.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting new connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the HTTP handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
