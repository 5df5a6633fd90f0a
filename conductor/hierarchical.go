package conductor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/conductormesh/backend"
	"github.com/hupe1980/conductormesh/ensemble"
	"github.com/hupe1980/conductormesh/errs"
	"github.com/hupe1980/conductormesh/exectrace"
	"github.com/hupe1980/conductormesh/sharedcontext"
	"github.com/hupe1980/conductormesh/tool"
)

// DefaultMaxDelegations bounds how many times a manager may invoke
// delegate_task in a single Hierarchical run, guarding against a manager
// stuck delegating to itself in a loop.
const DefaultMaxDelegations = 10

// Hierarchical runs one manager agent equipped with a synthesized
// delegate_task tool that invokes named worker agents on its behalf.
type Hierarchical struct {
	base           *Base
	managerID      string
	workerIDs      []string
	maxDelegations int
}

// HierarchicalOption configures a Hierarchical at construction time.
type HierarchicalOption func(*Hierarchical)

// WithManager sets the manager agent id. Required.
func WithManager(id string) HierarchicalOption {
	return func(h *Hierarchical) { h.managerID = id }
}

// WithWorkers fixes the delegate-eligible worker ids; unset, every other
// registered role is eligible.
func WithWorkers(ids ...string) HierarchicalOption {
	return func(h *Hierarchical) { h.workerIDs = ids }
}

// WithMaxDelegations overrides DefaultMaxDelegations.
func WithMaxDelegations(n int) HierarchicalOption {
	return func(h *Hierarchical) { h.maxDelegations = n }
}

// NewHierarchical constructs a Hierarchical conductor. A manager id must be
// configured.
func NewHierarchical(base *Base, optFns ...HierarchicalOption) (*Hierarchical, error) {
	base.Strategy = "hierarchical"
	h := &Hierarchical{base: base, maxDelegations: DefaultMaxDelegations}
	for _, fn := range optFns {
		fn(h)
	}
	if h.managerID == "" {
		return nil, errs.New(errs.MissingRequired, "hierarchical: no manager id configured")
	}
	return h, nil
}

var _ ensemble.Conductor = (*Hierarchical)(nil)

func workerDirectory(workers map[string]ensemble.AgentRole) string {
	ids := make([]string, 0, len(workers))
	for id := range workers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var sb strings.Builder
	for _, id := range ids {
		w := workers[id]
		fmt.Fprintf(&sb, "- %s (role: %s): %s\n", id, w.Role, w.Agent.Description())
	}
	return sb.String()
}

// Run resolves the manager and its workers, hands the manager a
// delegate_task tool for the duration of this run, and runs the manager
// against input.
func (h *Hierarchical) Run(ctx context.Context, e *ensemble.Ensemble, input string, sc *sharedcontext.Context, tr *exectrace.Trace) (ensemble.Result, error) {
	if err := h.base.CheckCancel(ctx); err != nil {
		return ensemble.Result{}, err
	}

	managerRole, err := LookupRole(e, h.managerID)
	if err != nil {
		return ensemble.Result{}, err
	}

	workerIDs := h.workerIDs
	if len(workerIDs) == 0 {
		for _, r := range e.Roles() {
			if r.ID != h.managerID {
				workerIDs = append(workerIDs, r.ID)
			}
		}
	}

	workers := make(map[string]ensemble.AgentRole, len(workerIDs))
	for _, id := range workerIDs {
		role, err := LookupRole(e, id)
		if err != nil {
			return ensemble.Result{}, err
		}
		workers[id] = role
	}

	var (
		mu          sync.Mutex
		delegations int
		totalUsage  backend.TokenUsage
	)

	delegateTool := tool.NewFunctionTool(
		"delegate_task",
		"Delegate a task to one of the following worker agents:\n"+workerDirectory(workers),
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"worker_id": map[string]any{"type": "string", "description": "id of the worker agent to delegate to"},
				"task":      map[string]any{"type": "string", "description": "the task to hand to the worker"},
			},
			"required": []string{"worker_id", "task"},
		},
		func(toolCtx context.Context, args map[string]any) (any, error) {
			mu.Lock()
			delegations++
			exceeded := delegations > h.maxDelegations
			mu.Unlock()
			if exceeded {
				return nil, errs.New(errs.MaxDelegations, "hierarchical: manager %q exceeded %d delegations", h.managerID, h.maxDelegations)
			}

			workerID, _ := args["worker_id"].(string)
			task, _ := args["task"].(string)

			worker, ok := workers[workerID]
			if !ok {
				return map[string]any{"success": false, "error": fmt.Sprintf("unknown worker %q", workerID)}, nil
			}

			result, err := h.base.RunAgent(toolCtx, e, sc, tr, worker, task)
			if err != nil {
				return map[string]any{"success": false, "error": err.Error()}, nil
			}

			mu.Lock()
			totalUsage = totalUsage.Add(result.Usage)
			mu.Unlock()

			return map[string]any{"success": true, "worker": workerID, "response": result.Response}, nil
		},
	)

	manager := managerRole.Agent.WithAdditionalTools(delegateTool)
	enhanced := ensemble.AgentRole{
		ID:       managerRole.ID,
		Agent:    manager,
		Role:     managerRole.Role,
		Priority: managerRole.Priority,
		Tags:     managerRole.Tags,
	}

	prompt := fmt.Sprintf("%s\n\nAvailable workers:\n%s", input, workerDirectory(workers))

	result, err := h.base.RunAgent(ctx, e, sc, tr, enhanced, prompt)
	if err != nil {
		return ensemble.Result{Trace: tr}, err
	}

	mu.Lock()
	totalUsage = totalUsage.Add(result.Usage)
	mu.Unlock()

	return ensemble.Result{
		Response: result.Response,
		Usage:    totalUsage,
		Trace:    tr,
	}, nil
}
