package handoff

import (
	"context"

	"github.com/hupe1980/conductormesh/agent"
	"github.com/hupe1980/conductormesh/errs"
)

// ChainStep is one link in a handoff chain: an agent identified by ID, and
// an optional ShouldHandoff predicate that inspects the agent's response
// and names the next step's ID to jump to.
type ChainStep struct {
	ID            string
	Agent         *agent.Agent
	ShouldHandoff func(response string) (nextID string, shouldJump bool)
}

// ChainResult is the outcome of RunChain: the sequence of step ids actually
// visited, in order, and the last visited step's response.
type ChainResult struct {
	Visited  []string
	Response string
}

// RunChain runs steps[0] against input, then repeatedly asks the current
// step's ShouldHandoff (if configured) for a next step id: if it names a
// valid id, execution jumps there with the current response as the next
// step's input; otherwise the chain terminates. The chain always starts at
// steps[0]; a chain with no steps fails with not-found.
//
// Jumps are capped at len(steps)*2 (spec §9 Open Question 3): a
// misconfigured ShouldHandoff that jumps without bound would otherwise loop
// forever, so exceeding the cap fails with max-delegations instead.
func RunChain(ctx context.Context, steps []ChainStep, input string) (ChainResult, error) {
	if len(steps) == 0 {
		return ChainResult{}, errs.New(errs.NotFound, "handoff: empty chain")
	}

	byID := make(map[string]int, len(steps))
	for i, s := range steps {
		byID[s.ID] = i
	}

	maxJumps := len(steps) * 2

	current := 0
	cur := input
	var visited []string

	for jumps := 0; ; jumps++ {
		if err := ctx.Err(); err != nil {
			return ChainResult{Visited: visited, Response: cur}, errs.Wrap(errs.Cancelled, err, "handoff: chain run cancelled")
		}
		if jumps > maxJumps {
			return ChainResult{Visited: visited, Response: cur}, errs.New(errs.MaxDelegations, "handoff: chain exceeded %d jumps", maxJumps)
		}

		step := steps[current]
		visited = append(visited, step.ID)

		result, err := step.Agent.Run(ctx, cur)
		if err != nil {
			return ChainResult{Visited: visited, Response: cur}, err
		}
		cur = result.Response

		if step.ShouldHandoff == nil {
			break
		}

		nextID, ok := step.ShouldHandoff(cur)
		if !ok {
			break
		}
		nextIdx, known := byID[nextID]
		if !known {
			break
		}
		current = nextIdx
	}

	return ChainResult{Visited: visited, Response: cur}, nil
}
