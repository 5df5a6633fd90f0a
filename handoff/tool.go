package handoff

import (
	"context"
	"encoding/json"

	"github.com/hupe1980/conductormesh/tool"
)

// ToolName is the name under which NewTool registers the handoff tool on an
// agent.
const ToolName = "handoff"

// NewTool constructs the `handoff` tool bound to a fixed set of target agent
// ids and a Handler. The model requests a handoff by calling this tool with
// {target_agent, task, reason, context?, priority?}; once the arguments pass
// schema validation, the tool result is always a structured JSON object,
// never a raised error, so a rejected or failed handoff (including an
// undeclared target_agent) is reported back to the requesting agent like any
// other tool outcome.
func NewTool(fromAgent string, targets []string, handler Handler) tool.Tool {
	targetSet := make(map[string]bool, len(targets))
	for _, t := range targets {
		targetSet[t] = true
	}

	return tool.NewFunctionTool(
		ToolName,
		"Transfer the current task to another agent. target_agent must be one of: "+joinTargets(targets),
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"target_agent": map[string]any{"type": "string", "description": "id of the agent to hand the task to"},
				"task":         map[string]any{"type": "string", "description": "the task description to hand off"},
				"reason":       map[string]any{"type": "string", "description": "why this handoff is being requested"},
				"context":      map[string]any{"type": "object", "description": "optional structured context for the target agent"},
				"priority":     map[string]any{"type": "string", "enum": []any{"low", "normal", "high"}},
			},
			"required": []string{"target_agent", "task", "reason"},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			target, _ := args["target_agent"].(string)

			if !targetSet[target] {
				return map[string]any{
					"success":  false,
					"rejected": true,
					"reason":   "Invalid target agent: " + target,
				}, nil
			}

			req := NewRequest(fromAgent, target, stringArg(args, "reason"), stringArg(args, "task"))
			req.Priority = Priority(stringArg(args, "priority"))
			if ctxObj, ok := args["context"].(map[string]any); ok {
				req.Context = ctxObj
			}

			resp, err := handler.Handle(ctx, req)
			if err != nil {
				return map[string]any{"success": false, "handoff_id": req.ID, "error": err.Error()}, nil
			}

			if !resp.Accepted {
				return map[string]any{
					"success":    false,
					"rejected":   true,
					"handoff_id": req.ID,
					"reason":     resp.RejectionReason,
				}, nil
			}

			return map[string]any{
				"success":    true,
				"handoff_id": req.ID,
				"agent":      target,
				"result":     resp.Result,
				"data":       resp.Data,
			}, nil
		},
	)
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func joinTargets(ss []string) string {
	b, _ := json.Marshal(ss)
	return string(b)
}
