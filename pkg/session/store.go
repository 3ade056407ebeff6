package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/inquest/pkg/config"
	"github.com/codeready-toolchain/inquest/pkg/models"
	"github.com/codeready-toolchain/inquest/pkg/persistence"
)

// Store indexes the live session records by id. It enforces the live-session
// cap and retires terminal records into the persistence adapter.
//
// Lock order: store lock before record lock, and the store lock is never
// held across adapter calls.
type Store struct {
	cfg       config.EngineConfig
	scenarios *config.Registry
	adapter   persistence.Adapter
	logger    *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Record
}

// NewStore builds an empty live-session store.
func NewStore(cfg config.EngineConfig, scenarios *config.Registry, adapter persistence.Adapter) *Store {
	return &Store{
		cfg:       cfg,
		scenarios: scenarios,
		adapter:   adapter,
		logger:    slog.With("component", "session_store"),
		sessions:  make(map[string]*Record),
	}
}

// Create validates the input, resolves the scenario and registers a new
// pending session. Fails with ErrResourceExhausted once the live cap is
// reached.
func (s *Store) Create(alertText, scenario string) (*Record, error) {
	if strings.TrimSpace(alertText) == "" {
		return nil, NewValidationError("alert must not be empty")
	}
	if scenario == "" {
		return nil, NewValidationError("scenario must not be empty")
	}
	sc, err := s.scenarios.Get(scenario)
	if err != nil {
		if errors.Is(err, config.ErrScenarioNotFound) {
			return nil, NewValidationError("unknown scenario %q, available: %s",
				scenario, strings.Join(s.scenarios.Names(), ", "))
		}
		return nil, err
	}

	rec := newRecord(uuid.New().String(), alertText, scenario, sc, s.cfg.SubscriberQueueCap)

	s.mu.Lock()
	if len(s.sessions) >= s.cfg.MaxLiveSessions {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w (max %d)", ErrResourceExhausted, s.cfg.MaxLiveSessions)
	}
	s.sessions[rec.ID()] = rec
	s.mu.Unlock()

	s.logger.Info("Session created",
		"session_id", rec.ID(), "scenario", scenario, "alert_chars", len(alertText))
	return rec, nil
}

// Get returns the live record by id.
func (s *Store) Get(sessionID string) (*Record, error) {
	s.mu.RLock()
	rec, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return rec, nil
}

// List returns summaries of the live sessions, newest first.
func (s *Store) List() []models.SessionSummary {
	s.mu.RLock()
	records := make([]*Record, 0, len(s.sessions))
	for _, rec := range s.sessions {
		records = append(records, rec)
	}
	s.mu.RUnlock()

	summaries := make([]models.SessionSummary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, rec.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Retire flushes a terminal session to the adapter and removes it from the
// live index. Retiring an absent id is a no-op; retiring a non-terminal
// session fails with ErrNotTerminal.
func (s *Store) Retire(ctx context.Context, sessionID string) error {
	s.mu.RLock()
	rec, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	if !rec.Status().Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrNotTerminal, sessionID, rec.Status())
	}

	if err := s.adapter.Save(ctx, rec.Snapshot()); err != nil {
		return fmt.Errorf("failed to persist session %s: %w", sessionID, err)
	}

	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	s.logger.Info("Session retired", "session_id", sessionID, "status", rec.Status())
	return nil
}

// Remove drops a live record without persisting it. Used by the delete
// endpoint once the session is terminal.
func (s *Store) Remove(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}
