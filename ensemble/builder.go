package ensemble

import (
	"github.com/hupe1980/conductormesh/agent"
	"github.com/hupe1980/conductormesh/errs"
)

// Builder constructs an Ensemble. Requires a name and at least one agent;
// duplicate role ids fail Build with a duplicate-id error.
type Builder struct {
	name      string
	order     []string
	roles     map[string]AgentRole
	conductor Conductor
	hooks     Hooks
	err       error
}

// NewBuilder starts a Builder for an ensemble named name.
func NewBuilder(name string) *Builder {
	return &Builder{name: name, roles: make(map[string]AgentRole)}
}

// WithAgent registers a plain agent under its own id with no role label.
func (b *Builder) WithAgent(a *agent.Agent) *Builder {
	return b.WithRole(AgentRole{ID: a.ID(), Agent: a})
}

// WithRole registers a fully specified AgentRole. A duplicate id is
// recorded and surfaces when Build is called.
func (b *Builder) WithRole(role AgentRole) *Builder {
	if _, exists := b.roles[role.ID]; exists {
		b.err = errs.New(errs.DuplicateID, "ensemble %q: duplicate agent id %q", b.name, role.ID)
		return b
	}
	b.roles[role.ID] = role
	b.order = append(b.order, role.ID)
	return b
}

// WithDefaultConductor sets the conductor used when Run is called without
// an explicit WithConductor override.
func (b *Builder) WithDefaultConductor(c Conductor) *Builder { b.conductor = c; return b }

// WithHooks attaches ensemble-level agent-lifecycle hooks.
func (b *Builder) WithHooks(h Hooks) *Builder { b.hooks = h; return b }

// Build validates the roster and returns the configured Ensemble.
func (b *Builder) Build() (*Ensemble, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.name == "" {
		return nil, errs.New(errs.MissingRequired, "ensemble: name is required")
	}
	if len(b.roles) == 0 {
		return nil, errs.New(errs.MissingRequired, "ensemble %q: at least one agent is required", b.name)
	}

	return &Ensemble{
		name:             b.name,
		roles:            b.roles,
		order:            b.order,
		defaultConductor: b.conductor,
		hooks:            b.hooks,
	}, nil
}
