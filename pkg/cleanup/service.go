// Package cleanup enforces the retention policy: terminal sessions are
// retired out of the live index after a grace period, and persisted records
// are removed once they outlive the retention window.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/inquest/pkg/config"
	"github.com/codeready-toolchain/inquest/pkg/persistence"
	"github.com/codeready-toolchain/inquest/pkg/session"
)

// Service is the background retention loop. All operations are idempotent.
type Service struct {
	cfg     config.EngineConfig
	store   *session.Store
	adapter persistence.Adapter

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a cleanup service.
func NewService(cfg config.EngineConfig, store *session.Store, adapter persistence.Adapter) *Service {
	return &Service{
		cfg:     cfg,
		store:   store,
		adapter: adapter,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"retire_after", s.cfg.RetireAfter,
		"session_retention_days", s.cfg.SessionRetentionDays,
		"interval", s.cfg.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single cleanup pass. Exported for tests and manual
// invocation.
func (s *Service) RunOnce(ctx context.Context) {
	s.retireTerminalSessions(ctx)
	s.deleteExpiredSessions(ctx)
}

// retireTerminalSessions flushes terminal sessions past the grace period to
// the adapter and drops them from the live index. The grace period lets
// late subscribers read the outcome without a persistence round-trip.
func (s *Service) retireTerminalSessions(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.RetireAfter)
	retired := 0
	for _, summary := range s.store.List() {
		if !summary.Status.Terminal() || summary.UpdatedAt.After(cutoff) {
			continue
		}
		if err := s.store.Retire(ctx, summary.ID); err != nil {
			slog.Error("Retention: failed to retire session", "session_id", summary.ID, "error", err)
			continue
		}
		retired++
	}
	if retired > 0 {
		slog.Info("Retention: retired terminal sessions", "count", retired)
	}
}

func (s *Service) deleteExpiredSessions(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -s.cfg.SessionRetentionDays)
	count, err := s.adapter.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("Retention: failed to delete expired sessions", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: deleted expired sessions", "count", count)
	}
}
