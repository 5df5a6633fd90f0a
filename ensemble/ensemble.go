// Package ensemble groups a set of agents into a named collection with a
// default orchestration strategy. An Ensemble itself does not implement
// orchestration — it validates the roster, prepares the shared context and
// trace, and delegates to a Conductor (package conductor provides the six
// built-in strategies).
package ensemble

import (
	"context"

	"github.com/hupe1980/conductormesh/agent"
	"github.com/hupe1980/conductormesh/backend"
	"github.com/hupe1980/conductormesh/errs"
	"github.com/hupe1980/conductormesh/exectrace"
	"github.com/hupe1980/conductormesh/sharedcontext"
)

// Context keys the ensemble installs into the shared context before
// delegating to the conductor.
const (
	KeyInput = "ensemble:input"
	KeyName  = "ensemble:name"
)

// AgentRole is the ensemble's binding of an agent: its participation
// identity, an optional human-readable role label, a priority (used by
// strategies that need a tie-break or ordering hint) and free-form tags.
// A role is registered at ensemble build time and never mutated afterward.
type AgentRole struct {
	ID       string
	Agent    *agent.Agent
	Role     string
	Priority int
	Tags     []string
}

// Result is the outcome of a single Ensemble.Run call. Failures records
// per-agent errors from a conductor that tolerates partial failure (the
// parallel conductor's continue error mode); it is nil whenever no agent
// failed. An all-failure continue run returns the empty Response alongside a
// fully populated Failures map and its error, so callers can distinguish
// "nothing succeeded" from "nothing to do".
type Result struct {
	Response string
	Usage    backend.TokenUsage
	Trace    *exectrace.Trace
	Failures map[string]error
}

// Hooks are fired around every agent a conductor runs. conductor.Base.RunAgent
// records the trace step itself and fires these beside it: OnBeforeAgent
// before the agent starts, then OnAfterAgent on success or OnAgentError on
// failure. The hooks do not open or close trace steps.
type Hooks struct {
	OnBeforeAgent func(agentID, input string)
	OnAfterAgent  func(agentID string, result agent.Result)
	OnAgentError  func(agentID string, err error)
}

// Conductor is the orchestration strategy an Ensemble delegates to. It is
// implemented by package conductor's six built-in strategies, or by a
// caller-supplied custom strategy.
type Conductor interface {
	Run(ctx context.Context, e *Ensemble, input string, sc *sharedcontext.Context, tr *exectrace.Trace) (Result, error)
}

// Ensemble is a named, immutable-after-build collection of agent roles with
// a default Conductor.
type Ensemble struct {
	name             string
	roles            map[string]AgentRole
	order            []string
	defaultConductor Conductor
	hooks            Hooks
}

// RunOption configures a single Run call.
type RunOption func(*runOptions)

type runOptions struct {
	conductor Conductor
	sharedCtx *sharedcontext.Context
}

// WithConductor overrides the ensemble's default conductor for this run.
func WithConductor(c Conductor) RunOption { return func(o *runOptions) { o.conductor = c } }

// WithSharedContext adopts an existing SharedContext rather than creating a
// fresh one, letting a caller seed prior history or chain ensemble runs.
func WithSharedContext(sc *sharedcontext.Context) RunOption {
	return func(o *runOptions) { o.sharedCtx = sc }
}

// Roles returns the registered roles in registration order.
func (e *Ensemble) Roles() []AgentRole {
	out := make([]AgentRole, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.roles[id])
	}
	return out
}

// Role looks up a role by id.
func (e *Ensemble) Role(id string) (AgentRole, bool) {
	r, ok := e.roles[id]
	return r, ok
}

// Name returns the ensemble's configured name.
func (e *Ensemble) Name() string { return e.name }

// Hooks returns the ensemble's configured agent-lifecycle hooks.
func (e *Ensemble) Hooks() Hooks { return e.hooks }

// Run validates that a conductor is available, adopts or creates a shared
// context, installs the context-keyed inputs, opens a trace, and delegates
// to the conductor.
func (e *Ensemble) Run(ctx context.Context, input string, optFns ...RunOption) (Result, error) {
	opts := runOptions{conductor: e.defaultConductor}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.conductor == nil {
		return Result{}, errs.New(errs.MissingRequired, "ensemble %q: no conductor available", e.name)
	}

	sc := opts.sharedCtx
	if sc == nil {
		sc = sharedcontext.New()
	}
	sc.Set(KeyInput, input)
	sc.Set(KeyName, e.name)

	tr := exectrace.New()
	defer tr.Finish()

	return opts.conductor.Run(ctx, e, input, sc, tr)
}
