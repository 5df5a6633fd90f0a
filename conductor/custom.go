package conductor

import (
	"context"

	"github.com/hupe1980/conductormesh/ensemble"
	"github.com/hupe1980/conductormesh/errs"
	"github.com/hupe1980/conductormesh/exectrace"
	"github.com/hupe1980/conductormesh/sharedcontext"
)

// OrchestrateFunc is a caller-supplied orchestration strategy. It receives
// the same shared Base every built-in strategy uses, so it can call
// base.RunAgent and reuse cancellation, timeout, and retry behavior.
type OrchestrateFunc func(ctx context.Context, e *ensemble.Ensemble, input string, sc *sharedcontext.Context, tr *exectrace.Trace, base *Base) (ensemble.Result, error)

// Custom adapts a caller-supplied OrchestrateFunc to ensemble.Conductor.
type Custom struct {
	base        *Base
	orchestrate OrchestrateFunc
}

// NewCustom constructs a Custom conductor. orchestrate must be non-nil.
func NewCustom(base *Base, orchestrate OrchestrateFunc) (*Custom, error) {
	if orchestrate == nil {
		return nil, errs.New(errs.MissingRequired, "custom: no orchestrate function supplied")
	}
	base.Strategy = "custom"
	return &Custom{base: base, orchestrate: orchestrate}, nil
}

var _ ensemble.Conductor = (*Custom)(nil)

// Run delegates to the configured orchestrate function.
func (c *Custom) Run(ctx context.Context, e *ensemble.Ensemble, input string, sc *sharedcontext.Context, tr *exectrace.Trace) (ensemble.Result, error) {
	return c.orchestrate(ctx, e, input, sc, tr, c.base)
}
