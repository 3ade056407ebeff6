package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/inquest/pkg/config"
	"github.com/codeready-toolchain/inquest/pkg/models"
	"github.com/codeready-toolchain/inquest/pkg/persistence"
	"github.com/codeready-toolchain/inquest/pkg/session"
)

func newFixture(t *testing.T, cfg config.EngineConfig) (*Service, *session.Store, *persistence.MemoryAdapter) {
	t.Helper()
	registry := config.NewRegistry(map[string]config.ScenarioConfig{
		"infra-triage": {OrchestratorAgentID: "orchestrator-1"},
	})
	adapter := persistence.NewMemoryAdapter()
	store := session.NewStore(cfg, registry, adapter)
	return NewService(cfg, store, adapter), store, adapter
}

func TestRunOnceRetiresTerminalSessions(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	cfg.RetireAfter = 0 // retire immediately for the test
	svc, store, adapter := newFixture(t, cfg)
	ctx := context.Background()

	finished, err := store.Create("finished alert", "infra-triage")
	require.NoError(t, err)
	finished.Append(models.RunStartPayload{Alert: "finished alert"})
	finished.Finish(models.StatusCompleted, "done")

	running, err := store.Create("running alert", "infra-triage")
	require.NoError(t, err)
	running.SetStatus(models.StatusRunning)

	svc.RunOnce(ctx)

	// The terminal session moved to the adapter; the running one stayed.
	assert.Equal(t, 1, store.Len())
	_, err = store.Get(finished.ID())
	assert.ErrorIs(t, err, session.ErrNotFound)

	persisted, err := adapter.Load(ctx, finished.ID())
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, persisted.Status)

	_, err = store.Get(running.ID())
	assert.NoError(t, err)
}

func TestRunOnceHonorsRetireGracePeriod(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	cfg.RetireAfter = time.Hour
	svc, store, _ := newFixture(t, cfg)

	rec, err := store.Create("fresh terminal", "infra-triage")
	require.NoError(t, err)
	rec.Finish(models.StatusFailed, "")

	svc.RunOnce(context.Background())

	// Finished moments ago: still within the grace period.
	assert.Equal(t, 1, store.Len())
}

func TestRunOnceDeletesExpiredPersistedSessions(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	cfg.SessionRetentionDays = 7
	svc, _, adapter := newFixture(t, cfg)
	ctx := context.Background()

	stale := &models.PersistedSession{
		ID:        "stale",
		AlertText: "old",
		Scenario:  "infra-triage",
		Status:    models.StatusCompleted,
		CreatedAt: time.Now().AddDate(0, 0, -30),
		UpdatedAt: time.Now().AddDate(0, 0, -30),
	}
	require.NoError(t, adapter.Save(ctx, stale))
	fresh := &models.PersistedSession{
		ID:        "fresh",
		AlertText: "new",
		Scenario:  "infra-triage",
		Status:    models.StatusCompleted,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, adapter.Save(ctx, fresh))

	svc.RunOnce(ctx)

	_, err := adapter.Load(ctx, "stale")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
	_, err = adapter.Load(ctx, "fresh")
	assert.NoError(t, err)
}

func TestStartStop(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	cfg.CleanupInterval = 10 * time.Millisecond
	cfg.RetireAfter = 0
	svc, store, adapter := newFixture(t, cfg)

	rec, err := store.Create("alert", "infra-triage")
	require.NoError(t, err)
	rec.Finish(models.StatusCancelled, "")

	svc.Start(context.Background())
	defer svc.Stop()

	require.Eventually(t, func() bool {
		_, loadErr := adapter.Load(context.Background(), rec.ID())
		return loadErr == nil && store.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)

	// Start is idempotent.
	svc.Start(context.Background())
}
