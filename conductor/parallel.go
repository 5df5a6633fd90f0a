package conductor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/conductormesh/agent"
	"github.com/hupe1980/conductormesh/ensemble"
	"github.com/hupe1980/conductormesh/errs"
	"github.com/hupe1980/conductormesh/exectrace"
	"github.com/hupe1980/conductormesh/sharedcontext"
)

// MergeContext carries everything a Merger needs to combine the results of a
// Parallel run into one response.
type MergeContext struct {
	Ensemble      *ensemble.Ensemble
	SharedContext *sharedcontext.Context
	Trace         *exectrace.Trace
	Base          *Base
	Results       map[string]agent.Result
	Order         []string
	Failures      map[string]error
}

// Merger combines a Parallel run's per-agent results into a single response.
type Merger func(ctx context.Context, mc MergeContext) (string, error)

const defaultMergeSeparator = "\n\n---\n\n"

// ConcatenateMerger joins every agent's response, labeled by its role label
// (or by its agent id when the role has none), with separator (defaulting to
// a horizontal-rule-style block when empty).
func ConcatenateMerger(separator string) Merger {
	if separator == "" {
		separator = defaultMergeSeparator
	}
	return func(_ context.Context, mc MergeContext) (string, error) {
		parts := make([]string, 0, len(mc.Order))
		for _, id := range mc.Order {
			r, ok := mc.Results[id]
			if !ok {
				continue
			}
			label := id
			if mc.Ensemble != nil {
				if role, found := mc.Ensemble.Role(id); found && role.Role != "" {
					label = role.Role
				}
			}
			parts = append(parts, fmt.Sprintf("[%s]\n%s", label, r.Response))
		}
		return strings.Join(parts, separator), nil
	}
}

// SummarizeMerger feeds every agent's labeled response to summarizerID and
// returns its response as the merged result.
func SummarizeMerger(summarizerID string) Merger {
	return func(ctx context.Context, mc MergeContext) (string, error) {
		role, err := LookupRole(mc.Ensemble, summarizerID)
		if err != nil {
			return "", err
		}

		var sb strings.Builder
		sb.WriteString("Summarize the following agent responses into one answer:\n\n")
		for _, id := range mc.Order {
			r, ok := mc.Results[id]
			if !ok {
				continue
			}
			fmt.Fprintf(&sb, "[%s]\n%s\n\n", id, r.Response)
		}

		result, err := mc.Base.RunAgent(ctx, mc.Ensemble, mc.SharedContext, mc.Trace, role, sb.String())
		if err != nil {
			return "", err
		}
		return result.Response, nil
	}
}

// SelectBestMerger picks the response of whichever agent id selector names.
func SelectBestMerger(selector func(MergeContext) string) Merger {
	return func(_ context.Context, mc MergeContext) (string, error) {
		id := selector(mc)
		r, ok := mc.Results[id]
		if !ok {
			return "", errs.New(errs.NotFound, "parallel: select-best merger chose unknown agent %q", id)
		}
		return r.Response, nil
	}
}

// CustomMerger returns fn unchanged; it exists so a caller-supplied Merger
// reads the same as the builtin constructors at a call site.
func CustomMerger(fn Merger) Merger { return fn }

// Parallel runs a set of agents concurrently against the same input and
// combines their responses with a Merger.
type Parallel struct {
	base        *Base
	agentIDs    []string
	concurrency int
	merger      Merger
}

// ParallelOption configures a Parallel at construction time.
type ParallelOption func(*Parallel)

// WithParallelAgents fixes the participating agent ids; unset, every
// registered role runs.
func WithParallelAgents(ids ...string) ParallelOption {
	return func(p *Parallel) { p.agentIDs = ids }
}

// WithParallelConcurrency bounds in-flight agent calls; unset, every agent
// runs at once.
func WithParallelConcurrency(n int) ParallelOption {
	return func(p *Parallel) { p.concurrency = n }
}

// WithParallelMerger sets the Merger combining per-agent results.
func WithParallelMerger(m Merger) ParallelOption {
	return func(p *Parallel) { p.merger = m }
}

// NewParallel constructs a Parallel conductor. A merger must be configured.
func NewParallel(base *Base, optFns ...ParallelOption) (*Parallel, error) {
	base.Strategy = "parallel"
	p := &Parallel{base: base}
	for _, fn := range optFns {
		fn(p)
	}
	if p.merger == nil {
		return nil, errs.New(errs.MissingRequired, "parallel: no merger configured")
	}
	return p, nil
}

var _ ensemble.Conductor = (*Parallel)(nil)

func valuesOf(m map[string]agent.Result) []agent.Result {
	out := make([]agent.Result, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	return out
}

// Run fans input out to every configured agent, bounded by concurrency, and
// merges their results. If every agent fails, the first failure (in
// configured-order) is raised regardless of error mode; otherwise a
// fail-fast or retry error mode propagates the first encountered failure and
// continue mode tolerates it, recording it in the result's Failures map.
func (p *Parallel) Run(ctx context.Context, e *ensemble.Ensemble, input string, sc *sharedcontext.Context, tr *exectrace.Trace) (ensemble.Result, error) {
	if err := p.base.CheckCancel(ctx); err != nil {
		return ensemble.Result{}, err
	}

	ids := p.agentIDs
	if len(ids) == 0 {
		for _, r := range e.Roles() {
			ids = append(ids, r.ID)
		}
	}
	if len(ids) == 0 {
		return ensemble.Result{}, errs.New(errs.MissingRequired, "parallel: ensemble %q has no agents", e.Name())
	}

	roles := make(map[string]ensemble.AgentRole, len(ids))
	for _, id := range ids {
		role, err := LookupRole(e, id)
		if err != nil {
			return ensemble.Result{}, err
		}
		roles[id] = role
	}

	concurrency := p.concurrency
	if concurrency <= 0 {
		concurrency = len(ids)
	}

	var mu sync.Mutex
	results := make(map[string]agent.Result, len(ids))
	failures := make(map[string]error)

	sem := semaphore.NewWeighted(int64(concurrency))
	g, gctx := errgroup.WithContext(ctx)

	for _, id := range ids {
		id := id
		role := roles[id]
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			result, err := p.base.RunAgent(gctx, e, sc, tr, role, input)
			mu.Lock()
			if err != nil {
				failures[id] = err
			} else {
				results[id] = result
			}
			mu.Unlock()

			if err != nil && p.base.ErrorMode != Continue {
				return err
			}
			return nil
		})
	}

	groupErr := g.Wait()

	if len(results) == 0 && len(failures) > 0 {
		for _, id := range ids {
			if err, ok := failures[id]; ok {
				return ensemble.Result{Trace: tr, Failures: failures}, err
			}
		}
	}

	if groupErr != nil && p.base.ErrorMode != Continue {
		return ensemble.Result{Trace: tr, Failures: failures}, groupErr
	}

	response, err := p.merger(ctx, MergeContext{
		Ensemble:      e,
		SharedContext: sc,
		Trace:         tr,
		Base:          p.base,
		Results:       results,
		Order:         ids,
		Failures:      failures,
	})
	if err != nil {
		return ensemble.Result{Trace: tr, Failures: failures}, err
	}

	if len(failures) == 0 {
		failures = nil
	}

	return ensemble.Result{
		Response: response,
		Usage:    AggregateUsage(valuesOf(results)),
		Trace:    tr,
		Failures: failures,
	}, nil
}
