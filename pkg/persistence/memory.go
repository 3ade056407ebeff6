package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/codeready-toolchain/inquest/pkg/models"
)

// MemoryAdapter is the in-process Adapter used in tests and single-node
// deployments without a database. Records do not survive a restart.
type MemoryAdapter struct {
	mu      sync.RWMutex
	records map[string]*models.PersistedSession
}

// NewMemoryAdapter creates an empty in-memory adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{records: make(map[string]*models.PersistedSession)}
}

// Save upserts the record. The stored copy is detached from the caller's.
func (m *MemoryAdapter) Save(_ context.Context, record *models.PersistedSession) error {
	clone := *record
	clone.History = make([]models.Event, len(record.History))
	copy(clone.History, record.History)

	m.mu.Lock()
	m.records[record.ID] = &clone
	m.mu.Unlock()
	return nil
}

// Load returns the record by id.
func (m *MemoryAdapter) Load(_ context.Context, sessionID string) (*models.PersistedSession, error) {
	m.mu.RLock()
	record, ok := m.records[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	clone := *record
	clone.History = make([]models.Event, len(record.History))
	copy(clone.History, record.History)
	return &clone, nil
}

// List returns summaries ordered by created_at descending.
func (m *MemoryAdapter) List(_ context.Context, filter models.SessionFilter) ([]models.SessionSummary, error) {
	m.mu.RLock()
	summaries := make([]models.SessionSummary, 0, len(m.records))
	for _, record := range m.records {
		if filter.Scenario != "" && record.Scenario != filter.Scenario {
			continue
		}
		summaries = append(summaries, record.Summary())
	}
	m.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})

	return paginate(summaries, filter.Limit, filter.Offset), nil
}

// Delete removes the record; absent ids are a no-op.
func (m *MemoryAdapter) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.records, sessionID)
	m.mu.Unlock()
	return nil
}

// DeleteOlderThan removes records last updated before the cutoff.
func (m *MemoryAdapter) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for id, record := range m.records {
		if record.UpdatedAt.Before(cutoff) {
			delete(m.records, id)
			deleted++
		}
	}
	return deleted, nil
}

// Ping always succeeds.
func (m *MemoryAdapter) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryAdapter) Close() error { return nil }

func paginate(summaries []models.SessionSummary, limit, offset int) []models.SessionSummary {
	if offset >= len(summaries) {
		return nil
	}
	summaries = summaries[offset:]
	if limit > 0 && limit < len(summaries) {
		summaries = summaries[:limit]
	}
	return summaries
}
