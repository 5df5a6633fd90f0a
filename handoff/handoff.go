// Package handoff implements agent-to-agent task transfer as a tool: an
// agent requests a handoff by name, a Handler decides whether to accept it
// and runs the target agent, and the outcome is serialized back into the
// requesting agent's conversation as a normal tool result. Package conductor
// builds comparable machinery for manager/worker delegation
// (conductor.Hierarchical's synthesized delegate_task tool); this package
// covers the spec's separate direct agent-to-agent handoff surface, where
// any declared target may be requested without a manager in the loop.
package handoff

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hupe1980/conductormesh/agent"
	"github.com/hupe1980/conductormesh/message"
)

// Priority is a caller-assigned hint carried on a Request; the engine does
// not interpret it.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Request is the payload a handoff carries from the requesting agent to the
// target.
type Request struct {
	// ID correlates a Request with its Response and any log lines an
	// observer emits in between. NewRequest fills it in; callers building a
	// Request literal directly (e.g. in tests) may leave it empty.
	ID        string
	FromAgent string
	ToAgent   string
	Reason    string
	Task      string
	Context   map[string]any
	History   []message.Message
	Priority  Priority
}

// NewRequest builds a Request with a fresh correlation ID.
func NewRequest(fromAgent, toAgent, reason, task string) Request {
	return Request{
		ID:        uuid.NewString(),
		FromAgent: fromAgent,
		ToAgent:   toAgent,
		Reason:    reason,
		Task:      task,
	}
}

// Response is a Handler's verdict on a Request.
type Response struct {
	Accepted        bool
	RejectionReason string
	Result          string
	Data            map[string]any
}

// Handler decides whether to accept a Request and, if accepted, carries it
// out.
type Handler interface {
	Handle(ctx context.Context, req Request) (Response, error)
}

// Registry resolves a target agent id to the *agent.Agent that should run
// it. Both Simple and Advanced handlers are built over one.
type Registry map[string]*agent.Agent

// Resolve looks up id, reporting ok=false if it is not registered.
func (r Registry) Resolve(id string) (*agent.Agent, bool) {
	a, ok := r[id]
	return a, ok
}

// SimpleHandler accepts every Request whose target resolves in its
// Registry and runs the target agent with the task, prefixed by the
// caller-supplied context when present.
type SimpleHandler struct {
	Agents Registry
}

// NewSimpleHandler constructs a SimpleHandler over agents.
func NewSimpleHandler(agents Registry) *SimpleHandler {
	return &SimpleHandler{Agents: agents}
}

var _ Handler = (*SimpleHandler)(nil)

// Handle resolves req.ToAgent and runs it with req.Task, or with a
// "Context: …\n\nTask: …" preamble when req.Context is non-empty.
func (h *SimpleHandler) Handle(ctx context.Context, req Request) (Response, error) {
	target, ok := h.Agents.Resolve(req.ToAgent)
	if !ok {
		return Response{Accepted: false, RejectionReason: fmt.Sprintf("unknown target agent %q", req.ToAgent)}, nil
	}

	input := req.Task
	if len(req.Context) > 0 {
		input = fmt.Sprintf("Context: %v\n\nTask: %s", req.Context, req.Task)
	}

	result, err := target.Run(ctx, input)
	if err != nil {
		return Response{}, err
	}

	return Response{Accepted: true, Result: result.Response}, nil
}

// Validator short-circuits a handoff before the target agent runs. Returning
// ok=false rejects the handoff with reason as the RejectionReason.
type Validator func(req Request) (ok bool, reason string)

// Transform rewrites a handoff's task text, either on the way in (before the
// target agent runs) or on the way out (on the target's response).
type Transform func(s string) string

// AdvancedHandler extends SimpleHandler with optional validation, input and
// output transforms, and lifecycle callbacks. All fields are optional.
type AdvancedHandler struct {
	Agents           Registry
	Validate         Validator
	InputTransform   Transform
	OutputTransform  Transform
	OnHandoff        func(req Request)
	OnComplete       func(req Request, resp Response)
}

var _ Handler = (*AdvancedHandler)(nil)

// Handle validates req (if a Validator is configured), runs the resolved
// target agent with the (optionally transformed) task, applies the output
// transform to its response, and fires OnHandoff/OnComplete around the
// call.
func (h *AdvancedHandler) Handle(ctx context.Context, req Request) (Response, error) {
	if h.OnHandoff != nil {
		h.OnHandoff(req)
	}

	if h.Validate != nil {
		if ok, reason := h.Validate(req); !ok {
			resp := Response{Accepted: false, RejectionReason: reason}
			if h.OnComplete != nil {
				h.OnComplete(req, resp)
			}
			return resp, nil
		}
	}

	target, ok := h.Agents.Resolve(req.ToAgent)
	if !ok {
		resp := Response{Accepted: false, RejectionReason: fmt.Sprintf("unknown target agent %q", req.ToAgent)}
		if h.OnComplete != nil {
			h.OnComplete(req, resp)
		}
		return resp, nil
	}

	task := req.Task
	if h.InputTransform != nil {
		task = h.InputTransform(task)
	}
	input := task
	if len(req.Context) > 0 {
		input = fmt.Sprintf("Context: %v\n\nTask: %s", req.Context, task)
	}

	result, err := target.Run(ctx, input)
	if err != nil {
		return Response{}, err
	}

	response := result.Response
	if h.OutputTransform != nil {
		response = h.OutputTransform(response)
	}

	resp := Response{Accepted: true, Result: response}
	if h.OnComplete != nil {
		h.OnComplete(req, resp)
	}
	return resp, nil
}
