package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEngineConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadEngineConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 600*time.Second, cfg.RunTimeout)
	assert.Equal(t, 256, cfg.SubscriberQueueCap)
	assert.Equal(t, 15*time.Second, cfg.KeepaliveInterval)
	assert.Equal(t, 1000, cfg.QueryTruncateChars)
	assert.Equal(t, 5000, cfg.ResponseTruncateChars)
	assert.Equal(t, 200, cfg.MaxLiveSessions)
}

func TestLoadEngineConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("MAX_RETRIES", "1")
	t.Setenv("RUN_TIMEOUT_S", "30")
	t.Setenv("SUBSCRIBER_QUEUE_CAP", "4")

	cfg, err := LoadEngineConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.RunTimeout)
	assert.Equal(t, 4, cfg.SubscriberQueueCap)
}

func TestLoadEngineConfigFromEnv_Malformed(t *testing.T) {
	t.Setenv("MAX_RETRIES", "many")

	_, err := LoadEngineConfigFromEnv()
	assert.ErrorContains(t, err, "MAX_RETRIES")
}

func TestLoadEngineConfigFromEnv_Invalid(t *testing.T) {
	t.Setenv("SUBSCRIBER_QUEUE_CAP", "0")

	_, err := LoadEngineConfigFromEnv()
	assert.ErrorContains(t, err, "SUBSCRIBER_QUEUE_CAP")
}

func writeScenarioFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadScenarios(t *testing.T) {
	path := writeScenarioFile(t, `
defaults:
  sub_agent_ids:
    - runbook-search
    - ticket-search
scenarios:
  telco:
    orchestrator_agent_id: orch-telco
    sub_agent_ids:
      - graph-topology
      - telemetry
  generic:
    orchestrator_agent_id: orch-generic
    description: fallback investigation
`)

	reg, err := LoadScenarios(path)
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, []string{"generic", "telco"}, reg.Names())

	telco, err := reg.Get("telco")
	require.NoError(t, err)
	assert.Equal(t, "orch-telco", telco.OrchestratorAgentID)
	// Explicit sub-agent list wins over defaults.
	assert.Equal(t, []string{"graph-topology", "telemetry"}, telco.SubAgentIDs)

	generic, err := reg.Get("generic")
	require.NoError(t, err)
	// Defaults fill in the unset list.
	assert.Equal(t, []string{"runbook-search", "ticket-search"}, generic.SubAgentIDs)

	_, err = reg.Get("absent")
	assert.ErrorIs(t, err, ErrScenarioNotFound)
}

func TestLoadScenarios_EnvExpansion(t *testing.T) {
	t.Setenv("ORCH_AGENT_ID", "agent-from-env")
	path := writeScenarioFile(t, `
scenarios:
  telco:
    orchestrator_agent_id: "{{.ORCH_AGENT_ID}}"
    sub_agent_ids: [topology]
`)

	reg, err := LoadScenarios(path)
	require.NoError(t, err)

	sc, err := reg.Get("telco")
	require.NoError(t, err)
	assert.Equal(t, "agent-from-env", sc.OrchestratorAgentID)
}

func TestLoadScenarios_MissingOrchestrator(t *testing.T) {
	path := writeScenarioFile(t, `
scenarios:
  broken:
    sub_agent_ids: [topology]
`)

	_, err := LoadScenarios(path)
	assert.ErrorContains(t, err, "orchestrator_agent_id is required")
}

func TestExpandEnv_PreservesDollarSigns(t *testing.T) {
	in := []byte(`pattern: "^secret.*$"`)
	assert.Equal(t, in, ExpandEnv(in))
}
