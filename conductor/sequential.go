package conductor

import (
	"context"

	"github.com/hupe1980/conductormesh/agent"
	"github.com/hupe1980/conductormesh/ensemble"
	"github.com/hupe1980/conductormesh/errs"
	"github.com/hupe1980/conductormesh/exectrace"
	"github.com/hupe1980/conductormesh/sharedcontext"
)

// TransformFunc rewrites the running output before it is handed to the next
// agent in a Sequential pipeline.
type TransformFunc func(output string, next ensemble.AgentRole) string

// Sequential runs a fixed order of agents, piping each agent's response as
// the next agent's input.
type Sequential struct {
	base      *Base
	order     []string
	transform TransformFunc
}

// SequentialOption configures a Sequential at construction time.
type SequentialOption func(*Sequential)

// WithSequentialOrder fixes the pipeline order; unset, the ensemble's
// registration order is used.
func WithSequentialOrder(ids ...string) SequentialOption {
	return func(s *Sequential) { s.order = ids }
}

// WithSequentialTransform rewrites the running output before every step
// after the first.
func WithSequentialTransform(fn TransformFunc) SequentialOption {
	return func(s *Sequential) { s.transform = fn }
}

// NewSequential constructs a Sequential conductor sharing base.
func NewSequential(base *Base, optFns ...SequentialOption) *Sequential {
	base.Strategy = "sequential"
	s := &Sequential{base: base}
	for _, fn := range optFns {
		fn(s)
	}
	return s
}

var _ ensemble.Conductor = (*Sequential)(nil)

// Run feeds input through the pipeline, step by step.
func (s *Sequential) Run(ctx context.Context, e *ensemble.Ensemble, input string, sc *sharedcontext.Context, tr *exectrace.Trace) (ensemble.Result, error) {
	order := s.order
	if len(order) == 0 {
		for _, r := range e.Roles() {
			order = append(order, r.ID)
		}
	}
	if len(order) == 0 {
		return ensemble.Result{}, errs.New(errs.MissingRequired, "sequential: ensemble %q has no agents", e.Name())
	}

	var results []agent.Result
	current := input

	for i, id := range order {
		if err := s.base.CheckCancel(ctx); err != nil {
			return ensemble.Result{}, err
		}

		role, err := LookupRole(e, id)
		if err != nil {
			return ensemble.Result{}, err
		}

		if i > 0 && s.transform != nil {
			current = s.transform(current, role)
		}

		result, err := s.base.RunAgent(ctx, e, sc, tr, role, current)
		if err != nil {
			return ensemble.Result{Trace: tr}, err
		}
		results = append(results, result)
		current = result.Response
	}

	return ensemble.Result{
		Response: current,
		Usage:    AggregateUsage(results),
		Trace:    tr,
	}, nil
}
