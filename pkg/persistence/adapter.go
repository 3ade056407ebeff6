// Package persistence stores terminal session records for later replay.
// The engine only ever writes completed, failed or cancelled sessions;
// workers are never restarted from persisted state.
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/codeready-toolchain/inquest/pkg/models"
)

// ErrNotFound is returned when a session id is unknown to the store.
var ErrNotFound = errors.New("session not found")

// Adapter is the durable store boundary. Implementations must make Save an
// idempotent upsert keyed by session id.
type Adapter interface {
	// Save upserts a terminal session record.
	Save(ctx context.Context, record *models.PersistedSession) error

	// Load returns the record by id, or ErrNotFound.
	Load(ctx context.Context, sessionID string) (*models.PersistedSession, error)

	// List returns summaries matching the filter, newest first.
	List(ctx context.Context, filter models.SessionFilter) ([]models.SessionSummary, error)

	// Delete removes the record by id. Deleting an absent id is not an error.
	Delete(ctx context.Context, sessionID string) error

	// DeleteOlderThan removes records whose updated_at predates the cutoff.
	// Returns the number of deleted records. Used by the retention service.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	// Ping reports store reachability for health checks.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close() error
}
