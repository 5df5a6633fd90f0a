package handoff

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/conductormesh/agent"
	"github.com/hupe1980/conductormesh/backend"
	"github.com/hupe1980/conductormesh/message"
)

func buildEchoAgent(t *testing.T, name, prefix string) *agent.Agent {
	t.Helper()
	mock := backend.NewMock(backend.GenerateResponse{
		Message: message.Assistant(prefix + ": handled"),
		Finish:  backend.FinishStop,
	})
	a, err := agent.NewBuilder(name).
		WithSystemPrompt("You help with " + name).
		WithBackend(mock).
		Build()
	require.NoError(t, err)
	return a
}

func TestSimpleHandler_Accepts(t *testing.T) {
	billing := buildEchoAgent(t, "billing", "billing")
	h := NewSimpleHandler(Registry{"billing": billing})

	resp, err := h.Handle(context.Background(), Request{
		FromAgent: "triage",
		ToAgent:   "billing",
		Task:      "refund order 42",
	})
	require.NoError(t, err)
	assert.True(t, resp.Accepted)
	assert.Equal(t, "billing: handled", resp.Result)
}

func TestSimpleHandler_UnknownTarget(t *testing.T) {
	h := NewSimpleHandler(Registry{})

	resp, err := h.Handle(context.Background(), Request{ToAgent: "ghost", Task: "x"})
	require.NoError(t, err)
	assert.False(t, resp.Accepted)
	assert.Contains(t, resp.RejectionReason, "ghost")
}

func TestAdvancedHandler_ValidationRejects(t *testing.T) {
	billing := buildEchoAgent(t, "billing", "billing")
	h := &AdvancedHandler{
		Agents: Registry{"billing": billing},
		Validate: func(req Request) (bool, string) {
			return false, "not authorized for this task"
		},
	}

	resp, err := h.Handle(context.Background(), Request{ToAgent: "billing", Task: "x"})
	require.NoError(t, err)
	assert.False(t, resp.Accepted)
	assert.Equal(t, "not authorized for this task", resp.RejectionReason)
}

func TestAdvancedHandler_Transforms(t *testing.T) {
	billing := buildEchoAgent(t, "billing", "billing")
	h := &AdvancedHandler{
		Agents:          Registry{"billing": billing},
		OutputTransform: func(s string) string { return "[" + s + "]" },
	}

	resp, err := h.Handle(context.Background(), Request{ToAgent: "billing", Task: "x"})
	require.NoError(t, err)
	assert.True(t, resp.Accepted)
	assert.Equal(t, "[billing: handled]", resp.Result)
}

func TestNewTool_InvalidTarget(t *testing.T) {
	billing := buildEchoAgent(t, "billing", "billing")
	h := NewSimpleHandler(Registry{"billing": billing})
	toolImpl := NewTool("triage", []string{"billing"}, h)

	result, err := toolImpl.Execute(context.Background(), map[string]any{
		"target_agent": "unknown",
		"task":         "x",
		"reason":       "y",
	})
	require.NoError(t, err)

	out := result.(map[string]any)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, true, out["rejected"])
	assert.Contains(t, out["reason"].(string), "Invalid target")
}

func TestNewTool_Accepted(t *testing.T) {
	billing := buildEchoAgent(t, "billing", "billing")
	h := NewSimpleHandler(Registry{"billing": billing})
	toolImpl := NewTool("triage", []string{"billing"}, h)

	result, err := toolImpl.Execute(context.Background(), map[string]any{
		"target_agent": "billing",
		"task":         "refund",
		"reason":       "customer request",
	})
	require.NoError(t, err)

	out := result.(map[string]any)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "billing", out["agent"])
	assert.Equal(t, "billing: handled", out["result"])
}

func TestRunChain_Handoff(t *testing.T) {
	a := buildEchoAgent(t, "a", "a")
	b := buildEchoAgent(t, "b", "b")

	steps := []ChainStep{
		{ID: "a", Agent: a, ShouldHandoff: func(resp string) (string, bool) { return "b", true }},
		{ID: "b", Agent: b},
	}

	result, err := RunChain(context.Background(), steps, "start")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, result.Visited)
	assert.Equal(t, "b: handled", result.Response)
}

func TestRunChain_NoHandoffTerminatesImmediately(t *testing.T) {
	a := buildEchoAgent(t, "a", "a")
	steps := []ChainStep{{ID: "a", Agent: a}}

	result, err := RunChain(context.Background(), steps, "start")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, result.Visited)
}

func TestRunChain_MaxDelegationsExceeded(t *testing.T) {
	a := buildEchoAgent(t, "a", "a")
	b := buildEchoAgent(t, "b", "b")

	// A and B bounce forever; the chain must abort rather than loop forever.
	steps := []ChainStep{
		{ID: "a", Agent: a, ShouldHandoff: func(string) (string, bool) { return "b", true }},
		{ID: "b", Agent: b, ShouldHandoff: func(string) (string, bool) { return "a", true }},
	}

	_, err := RunChain(context.Background(), steps, "start")
	require.Error(t, err)
}
