package config

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// ErrScenarioNotFound is returned by Registry.Get for unknown scenarios.
var ErrScenarioNotFound = errors.New("scenario not found")

// ScenarioConfig binds a scenario name to the pre-provisioned agent ids the
// worker hands to the agent runtime. Agents are provisioned out of band;
// the engine only consumes resolved ids.
type ScenarioConfig struct {
	// OrchestratorAgentID is the root agent driving the investigation.
	OrchestratorAgentID string `yaml:"orchestrator_agent_id"`

	// SubAgentIDs are the connected specialist agents (graph topology,
	// telemetry, runbook search, ticket search, ...).
	SubAgentIDs []string `yaml:"sub_agent_ids"`

	// Description is surfaced in listings; informational only.
	Description string `yaml:"description,omitempty"`
}

// scenarioFile is the on-disk shape of scenarios.yaml.
type scenarioFile struct {
	Defaults  *ScenarioConfig           `yaml:"defaults"`
	Scenarios map[string]ScenarioConfig `yaml:"scenarios"`
}

// Registry is the immutable scenario lookup built at startup.
type Registry struct {
	scenarios map[string]ScenarioConfig
}

// NewRegistry builds a registry from an explicit scenario map (used by tests
// and embedded setups).
func NewRegistry(scenarios map[string]ScenarioConfig) *Registry {
	m := make(map[string]ScenarioConfig, len(scenarios))
	for name, sc := range scenarios {
		m[name] = sc
	}
	return &Registry{scenarios: m}
}

// LoadScenarios reads, env-expands and validates the scenario file.
func LoadScenarios(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file %s: %w", path, err)
	}

	var file scenarioFile
	if err := yaml.Unmarshal(ExpandEnv(data), &file); err != nil {
		return nil, fmt.Errorf("failed to parse scenario file %s: %w", path, err)
	}
	if len(file.Scenarios) == 0 {
		return nil, fmt.Errorf("scenario file %s defines no scenarios", path)
	}

	scenarios := make(map[string]ScenarioConfig, len(file.Scenarios))
	for name, sc := range file.Scenarios {
		if file.Defaults != nil {
			if err := mergo.Merge(&sc, *file.Defaults); err != nil {
				return nil, fmt.Errorf("failed to merge defaults into scenario %s: %w", name, err)
			}
		}
		if sc.OrchestratorAgentID == "" {
			return nil, fmt.Errorf("scenario %s: orchestrator_agent_id is required", name)
		}
		scenarios[name] = sc
	}

	return &Registry{scenarios: scenarios}, nil
}

// Get returns the scenario configuration by name.
func (r *Registry) Get(name string) (ScenarioConfig, error) {
	sc, ok := r.scenarios[name]
	if !ok {
		return ScenarioConfig{}, fmt.Errorf("%w: %s", ErrScenarioNotFound, name)
	}
	return sc, nil
}

// Names returns the configured scenario names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.scenarios))
	for name := range r.scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of configured scenarios.
func (r *Registry) Len() int {
	return len(r.scenarios)
}
