// Package agent implements the bounded tool-use conversation loop that
// drives a single agent from an input string to a final assistant text
// response, dispatching any requested tool calls along the way.
package agent

import (
	"time"

	"github.com/hupe1980/conductormesh/backend"
	"github.com/hupe1980/conductormesh/errs"
	"github.com/hupe1980/conductormesh/logging"
	"github.com/hupe1980/conductormesh/message"
	"github.com/hupe1980/conductormesh/metrics"
	"github.com/hupe1980/conductormesh/tool"
	"github.com/hupe1980/conductormesh/tokencount"
	"github.com/hupe1980/conductormesh/tracing"
)

// Default tuning values applied when a Builder option does not override them.
const (
	DefaultMaxIterations  = 10
	DefaultMaxInputLength = 100000
	DefaultToolTimeout    = 30 * time.Second
)

// Hooks are the five lifecycle callbacks an agent run fires at. Any hook
// left nil is simply skipped. Hooks observe the run; they never alter
// control flow or returned values.
type Hooks struct {
	OnBeforeGenerate func(agentID string, iteration int)
	OnAfterGenerate  func(agentID string, iteration int, resp backend.GenerateResponse)
	OnBeforeToolCall func(agentID string, call message.ToolCall)
	OnAfterToolCall  func(agentID string, call message.ToolCall, result any)
	OnError          func(agentID string, err error)
}

// Agent is a configured, reusable tool-use conversation driver. Build one
// with Builder and call Run per invocation; an Agent holds no per-run
// mutable state, so it is safe for concurrent Run calls.
type Agent struct {
	id            string
	description   string
	systemPrompt  string
	backend       backend.Backend
	tools         map[string]tool.Tool
	model         string
	temperature   float64
	maxTokens     int
	maxIterations int
	maxInputLen   int
	toolTimeout   time.Duration
	hooks         Hooks
	logger        logging.Logger
	tracer        *tracing.Tracer
	metrics       *metrics.Collector
	tokens        *tokencount.Estimator
}

// ID returns the agent's unique identifier (its configured name).
func (a *Agent) ID() string { return a.id }

// Description returns the agent's human-readable purpose, used by
// conductors that need to describe agents to an LLM (e.g. the
// hierarchical manager's delegate_task tool).
func (a *Agent) Description() string { return a.description }

// Tools returns the tool definitions this agent exposes to a backend.
func (a *Agent) Tools() []tool.Definition {
	defs := make([]tool.Definition, 0, len(a.tools))
	for _, t := range a.tools {
		defs = append(defs, tool.DefinitionOf(t))
	}
	return defs
}

func errInvalidInput(format string, args ...any) error {
	return errs.New(errs.InvalidInput, format, args...)
}

// WithAdditionalTools returns a shallow copy of a with extraTools merged
// into its tool set; a itself is left unmodified. The hierarchical
// conductor uses this to hand a manager agent a synthesized delegate_task
// tool for the duration of one run without mutating the caller's registered
// agent.
func (a *Agent) WithAdditionalTools(extraTools ...tool.Tool) *Agent {
	merged := make(map[string]tool.Tool, len(a.tools)+len(extraTools))
	for name, t := range a.tools {
		merged[name] = t
	}
	for _, t := range extraTools {
		merged[t.Name()] = t
	}
	clone := *a
	clone.tools = merged
	return &clone
}
