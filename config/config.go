// Package config loads declarative tuning defaults for agents and
// conductors from a YAML document, so a deployment can adjust timeouts,
// iteration caps, the error mode, merger choice and quorum without
// recompiling. It only produces plain defaults structs; callers apply them
// to agent.Builder / conductor.Base themselves (this package never imports
// either, to avoid a dependency cycle with the builders it feeds).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AgentDefaults seeds an agent.Builder's tunables.
type AgentDefaults struct {
	MaxIterations  int           `yaml:"max_iterations"`
	MaxInputLength int           `yaml:"max_input_length"`
	ToolTimeout    time.Duration `yaml:"tool_timeout"`
	Temperature    float64       `yaml:"temperature"`
	MaxTokens      int           `yaml:"max_tokens"`
}

// ConductorDefaults seeds a conductor.Base plus the per-strategy knobs that
// most deployments want to tune (merger choice, quorum, concurrency).
type ConductorDefaults struct {
	MaxRounds    int           `yaml:"max_rounds"`
	AgentTimeout time.Duration `yaml:"agent_timeout"`
	ErrorMode    string        `yaml:"error_mode"`
	RetryCount   int           `yaml:"retry_count"`

	Merger      string  `yaml:"merger"`
	Concurrency int     `yaml:"concurrency"`
	Quorum      float64 `yaml:"quorum"`
	TallyMethod string  `yaml:"tally_method"`
}

// Config is the top-level document Load parses: named agent profiles and
// named conductor profiles, so one file can seed several ensembles.
type Config struct {
	Agents     map[string]AgentDefaults     `yaml:"agents"`
	Conductors map[string]ConductorDefaults `yaml:"conductors"`
}

// DefaultAgent is applied to any agent profile the document omits a field
// for; yaml.Unmarshal only overwrites fields present in the document, so
// profiles are always layered on top of this.
var DefaultAgent = AgentDefaults{
	MaxIterations:  10,
	MaxInputLength: 100000,
	ToolTimeout:    30 * time.Second,
}

// DefaultConductor mirrors the defaults conductor.NewBase and
// conductor.NewVoting apply.
var DefaultConductor = ConductorDefaults{
	MaxRounds:   10,
	ErrorMode:   "fail-fast",
	RetryCount:  3,
	Quorum:      0.5,
	TallyMethod: "majority",
}

// Load parses the YAML document at path into a Config. Every named profile
// starts from DefaultAgent / DefaultConductor before the document's fields
// are applied on top.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses a YAML document already in memory into a Config.
func Parse(data []byte) (Config, error) {
	var raw struct {
		Agents     map[string]AgentDefaults     `yaml:"agents"`
		Conductors map[string]ConductorDefaults `yaml:"conductors"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("config: parse yaml: %w", err)
	}

	cfg := Config{
		Agents:     make(map[string]AgentDefaults, len(raw.Agents)),
		Conductors: make(map[string]ConductorDefaults, len(raw.Conductors)),
	}
	for name, a := range raw.Agents {
		cfg.Agents[name] = mergeAgent(DefaultAgent, a)
	}
	for name, c := range raw.Conductors {
		cfg.Conductors[name] = mergeConductor(DefaultConductor, c)
	}
	return cfg, nil
}

// Agent looks up a named agent profile, falling back to DefaultAgent if the
// name is not present.
func (c Config) Agent(name string) AgentDefaults {
	if a, ok := c.Agents[name]; ok {
		return a
	}
	return DefaultAgent
}

// Conductor looks up a named conductor profile, falling back to
// DefaultConductor if the name is not present.
func (c Config) Conductor(name string) ConductorDefaults {
	if cd, ok := c.Conductors[name]; ok {
		return cd
	}
	return DefaultConductor
}

func mergeAgent(base, override AgentDefaults) AgentDefaults {
	if override.MaxIterations != 0 {
		base.MaxIterations = override.MaxIterations
	}
	if override.MaxInputLength != 0 {
		base.MaxInputLength = override.MaxInputLength
	}
	if override.ToolTimeout != 0 {
		base.ToolTimeout = override.ToolTimeout
	}
	if override.Temperature != 0 {
		base.Temperature = override.Temperature
	}
	if override.MaxTokens != 0 {
		base.MaxTokens = override.MaxTokens
	}
	return base
}

func mergeConductor(base, override ConductorDefaults) ConductorDefaults {
	if override.MaxRounds != 0 {
		base.MaxRounds = override.MaxRounds
	}
	if override.AgentTimeout != 0 {
		base.AgentTimeout = override.AgentTimeout
	}
	if override.ErrorMode != "" {
		base.ErrorMode = override.ErrorMode
	}
	if override.RetryCount != 0 {
		base.RetryCount = override.RetryCount
	}
	if override.Merger != "" {
		base.Merger = override.Merger
	}
	if override.Concurrency != 0 {
		base.Concurrency = override.Concurrency
	}
	if override.Quorum != 0 {
		base.Quorum = override.Quorum
	}
	if override.TallyMethod != "" {
		base.TallyMethod = override.TallyMethod
	}
	return base
}
