package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/inquest/pkg/models"
)

func sampleRecord(id, scenario string, createdAt time.Time) *models.PersistedSession {
	msg := "replace the disk"
	return &models.PersistedSession{
		ID:        id,
		AlertText: "disk pressure on node-4",
		Scenario:  scenario,
		Status:    models.StatusCompleted,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
		History: []models.Event{
			models.NewEvent(1, models.RunStartPayload{Alert: "disk pressure on node-4"}),
			models.NewEvent(2, models.MessagePayload{Text: msg}),
		},
		FinalMessage: &msg,
	}
}

func TestMemorySaveAndLoad(t *testing.T) {
	ctx := context.Background()
	adapter := NewMemoryAdapter()

	record := sampleRecord("sess-1", "infra-triage", time.Now())
	require.NoError(t, adapter.Save(ctx, record))

	loaded, err := adapter.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, record.ID, loaded.ID)
	assert.Equal(t, models.StatusCompleted, loaded.Status)
	require.Len(t, loaded.History, 2)
	assert.Equal(t, models.KindMessage, loaded.History[1].Kind())

	// The stored copy is detached from the caller's slice.
	record.History[0] = models.NewEvent(99, models.ThinkingPayload{Text: "mutated"})
	reloaded, err := adapter.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), reloaded.History[0].Seq)
}

func TestMemorySaveIsUpsert(t *testing.T) {
	ctx := context.Background()
	adapter := NewMemoryAdapter()

	record := sampleRecord("sess-1", "infra-triage", time.Now())
	require.NoError(t, adapter.Save(ctx, record))

	record.Status = models.StatusFailed
	require.NoError(t, adapter.Save(ctx, record))

	loaded, err := adapter.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, loaded.Status)

	summaries, err := adapter.List(ctx, models.SessionFilter{})
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}

func TestMemoryLoadUnknown(t *testing.T) {
	adapter := NewMemoryAdapter()
	_, err := adapter.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryListFilterAndOrder(t *testing.T) {
	ctx := context.Background()
	adapter := NewMemoryAdapter()
	now := time.Now()

	require.NoError(t, adapter.Save(ctx, sampleRecord("old", "infra-triage", now.Add(-2*time.Hour))))
	require.NoError(t, adapter.Save(ctx, sampleRecord("new", "infra-triage", now)))
	require.NoError(t, adapter.Save(ctx, sampleRecord("other", "network-triage", now.Add(-time.Hour))))

	all, err := adapter.List(ctx, models.SessionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "new", all[0].ID)
	assert.Equal(t, "other", all[1].ID)
	assert.Equal(t, "old", all[2].ID)

	filtered, err := adapter.List(ctx, models.SessionFilter{Scenario: "network-triage"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "other", filtered[0].ID)

	paged, err := adapter.List(ctx, models.SessionFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "other", paged[0].ID)

	beyond, err := adapter.List(ctx, models.SessionFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, beyond)
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	adapter := NewMemoryAdapter()

	require.NoError(t, adapter.Save(ctx, sampleRecord("sess-1", "infra-triage", time.Now())))
	require.NoError(t, adapter.Delete(ctx, "sess-1"))
	_, err := adapter.Load(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Absent id is a no-op.
	require.NoError(t, adapter.Delete(ctx, "sess-1"))
}

func TestMemoryDeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	adapter := NewMemoryAdapter()
	now := time.Now()

	require.NoError(t, adapter.Save(ctx, sampleRecord("stale", "infra-triage", now.Add(-48*time.Hour))))
	require.NoError(t, adapter.Save(ctx, sampleRecord("fresh", "infra-triage", now)))

	deleted, err := adapter.DeleteOlderThan(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = adapter.Load(ctx, "stale")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = adapter.Load(ctx, "fresh")
	assert.NoError(t, err)
}
