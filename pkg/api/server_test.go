package api

import (
	"context"
	"testing"
	"time"

	"github.com/codeready-toolchain/inquest/pkg/agentruntime"
	"github.com/codeready-toolchain/inquest/pkg/config"
	"github.com/codeready-toolchain/inquest/pkg/masking"
	"github.com/codeready-toolchain/inquest/pkg/persistence"
	"github.com/codeready-toolchain/inquest/pkg/session"
	"github.com/codeready-toolchain/inquest/pkg/worker"
)

// newTestServer wires a full server against the in-memory adapter and the
// given scripted runtime. The keepalive interval is pushed out so stream
// assertions never race a keepalive frame.
func newTestServer(t *testing.T, runtime agentruntime.Runtime) (*Server, *persistence.MemoryAdapter) {
	t.Helper()
	cfg := config.DefaultEngineConfig()
	cfg.KeepaliveInterval = time.Hour
	return newTestServerWithConfig(t, cfg, runtime)
}

func newTestServerWithConfig(t *testing.T, cfg config.EngineConfig,
	runtime agentruntime.Runtime) (*Server, *persistence.MemoryAdapter) {
	t.Helper()
	registry := config.NewRegistry(map[string]config.ScenarioConfig{
		"infra-triage": {
			OrchestratorAgentID: "orchestrator-1",
			SubAgentIDs:         []string{"topology-1", "telemetry-1"},
		},
	})
	adapter := persistence.NewMemoryAdapter()
	store := session.NewStore(cfg, registry, adapter)
	pool := worker.NewPool(runtime, cfg, masking.NewService(), adapter)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = pool.Stop(ctx)
	})

	return NewServer(cfg, store, pool, adapter, registry), adapter
}

// happyRuntime scripts one successful investigation run.
func happyRuntime(tokens int) *agentruntime.ScriptedRuntime {
	return agentruntime.NewScriptedRuntime(agentruntime.ScriptedRun{
		ThreadID: "thread-1",
		Actions: []agentruntime.ScriptAction{
			func(_ context.Context, h agentruntime.Handler) error {
				h.OnRunStepStart(agentruntime.StepStart{
					StepID: "call-1", Agent: "topology-1",
					Arguments: "what depends on node-4?",
				})
				h.OnRunStepComplete(agentruntime.StepComplete{
					StepID: "call-1", Agent: "topology-1",
					Arguments: "what depends on node-4?", Output: "svc-a, svc-b",
				})
				h.OnMessageCreate(agentruntime.Message{Text: "Replace the disk.", Final: true})
				return nil
			},
		},
		Result: &agentruntime.RunResult{
			ThreadID: "thread-1", FinalText: "Replace the disk.", Steps: 1, Tokens: &tokens,
		},
	})
}
