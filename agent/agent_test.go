package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/conductormesh/backend"
	"github.com/hupe1980/conductormesh/errs"
	"github.com/hupe1980/conductormesh/message"
	"github.com/hupe1980/conductormesh/tool"
)

func TestBuilder_MissingRequired(t *testing.T) {
	_, err := NewBuilder("").Build()
	assert.True(t, errs.Is(err, errs.MissingRequired))

	_, err = NewBuilder("a").WithBackend(backend.NewMock()).Build()
	assert.True(t, errs.Is(err, errs.MissingRequired))

	_, err = NewBuilder("a").WithSystemPrompt("hi").Build()
	assert.True(t, errs.Is(err, errs.MissingRequired))
}

func TestRun_OneShot(t *testing.T) {
	mock := backend.NewMock(backend.GenerateResponse{
		Message: message.Assistant("hello there"),
		Finish:  backend.FinishStop,
	})

	a, err := NewBuilder("greeter").
		WithSystemPrompt("You are friendly.").
		WithBackend(mock).
		Build()
	require.NoError(t, err)

	result, err := a.Run(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello there", result.Response)
	assert.Equal(t, 1, result.Iterations)
	assert.Equal(t, 1, mock.CallCount())
}

func TestRun_ToolCalling(t *testing.T) {
	sumTool := tool.NewFunctionTool("sum", "add two numbers", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}, func(_ context.Context, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})

	mock := backend.NewMock(
		backend.GenerateResponse{
			Message: message.AssistantToolCalls("", message.ToolCall{
				ID:   "call-1",
				Name: "sum",
				Arguments: map[string]any{
					"a": 2.0,
					"b": 3.0,
				},
			}),
			Finish: backend.FinishToolCalls,
		},
		backend.GenerateResponse{
			Message: message.Assistant("the sum is 5"),
			Finish:  backend.FinishStop,
		},
	)

	a, err := NewBuilder("calculator").
		WithSystemPrompt("You can do math.").
		WithBackend(mock).
		WithTools(sumTool).
		Build()
	require.NoError(t, err)

	result, err := a.Run(context.Background(), "what is 2 + 3?")
	require.NoError(t, err)
	assert.Equal(t, "the sum is 5", result.Response)
	assert.Equal(t, 2, result.Iterations)

	var toolMsg *message.Message
	for i := range result.Messages {
		if result.Messages[i].Role == message.RoleTool {
			toolMsg = &result.Messages[i]
		}
	}
	require.NotNil(t, toolMsg)
	assert.Equal(t, "call-1", toolMsg.ToolCallID)
	assert.Equal(t, "5", toolMsg.Content)
}

func TestRun_UnknownToolDoesNotAbort(t *testing.T) {
	mock := backend.NewMock(
		backend.GenerateResponse{
			Message: message.AssistantToolCalls("", message.ToolCall{ID: "x", Name: "does_not_exist"}),
			Finish:  backend.FinishToolCalls,
		},
		backend.GenerateResponse{
			Message: message.Assistant("recovered"),
			Finish:  backend.FinishStop,
		},
	)

	a, err := NewBuilder("agent").WithSystemPrompt("p").WithBackend(mock).Build()
	require.NoError(t, err)

	result, err := a.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "recovered", result.Response)
}

func TestRun_ToolFailureDoesNotAbort(t *testing.T) {
	failing := tool.NewFunctionTool("boom", "always fails", map[string]any{"type": "object"}, func(_ context.Context, _ map[string]any) (any, error) {
		return nil, errors.New("kaboom")
	})

	mock := backend.NewMock(
		backend.GenerateResponse{
			Message: message.AssistantToolCalls("", message.ToolCall{ID: "x", Name: "boom"}),
			Finish:  backend.FinishToolCalls,
		},
		backend.GenerateResponse{
			Message: message.Assistant("handled the error"),
			Finish:  backend.FinishStop,
		},
	)

	a, err := NewBuilder("agent").WithSystemPrompt("p").WithBackend(mock).WithTools(failing).Build()
	require.NoError(t, err)

	result, err := a.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "handled the error", result.Response)
}

func TestRun_InvalidInput(t *testing.T) {
	a, err := NewBuilder("agent").WithSystemPrompt("p").WithBackend(backend.NewMock()).Build()
	require.NoError(t, err)

	_, err = a.Run(context.Background(), "")
	assert.True(t, errs.Is(err, errs.InvalidInput))

	_, err = a.Run(context.Background(), strings.Repeat("x", DefaultMaxInputLength+1))
	assert.True(t, errs.Is(err, errs.InvalidInput))
}

func TestRun_Cancelled(t *testing.T) {
	mock := backend.NewMock(backend.GenerateResponse{Message: message.Assistant("never used"), Finish: backend.FinishStop})
	a, err := NewBuilder("agent").WithSystemPrompt("p").WithBackend(mock).Build()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = a.Run(ctx, "go")
	assert.True(t, errs.Is(err, errs.Cancelled))
}

func TestRun_BackendFailure(t *testing.T) {
	mock := &backend.Mock{Err: errors.New("vendor unavailable")}
	a, err := NewBuilder("agent").WithSystemPrompt("p").WithBackend(mock).Build()
	require.NoError(t, err)

	_, err = a.Run(context.Background(), "go")
	assert.True(t, errs.Is(err, errs.BackendFailure))
}

func TestRun_MaxIterationsBounds(t *testing.T) {
	loopTool := tool.NewFunctionTool("loop", "loops forever", map[string]any{"type": "object"}, func(_ context.Context, _ map[string]any) (any, error) {
		return "again", nil
	})

	responses := make([]backend.GenerateResponse, 0, 20)
	for i := 0; i < 20; i++ {
		responses = append(responses, backend.GenerateResponse{
			Message: message.AssistantToolCalls("", message.ToolCall{ID: "x", Name: "loop"}),
			Finish:  backend.FinishToolCalls,
		})
	}
	mock := backend.NewMock(responses...)

	a, err := NewBuilder("agent").WithSystemPrompt("p").WithBackend(mock).WithTools(loopTool).WithMaxIterations(3).Build()
	require.NoError(t, err)

	result, err := a.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Iterations)
	assert.LessOrEqual(t, mock.CallCount(), 3)
}
