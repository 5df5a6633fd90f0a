package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hupe1980/conductormesh/backend"
	"github.com/hupe1980/conductormesh/errs"
	"github.com/hupe1980/conductormesh/internal/jsonschema"
	"github.com/hupe1980/conductormesh/message"
	"github.com/hupe1980/conductormesh/tracing"
)

// Result is the outcome of a single Agent.Run call.
type Result struct {
	Response   string
	Messages   []message.Message
	Iterations int
	Usage      backend.TokenUsage
}

// state tracks one in-flight run. It is not shared across goroutines.
type state struct {
	messages []message.Message
	done     bool
}

// Run drives the agent's tool-use loop to a final assistant text response,
// bounded by maxIterations. See package doc for the algorithm.
func (a *Agent) Run(ctx context.Context, input string) (Result, error) {
	if len(input) == 0 || len(input) > a.maxInputLen {
		err := errInvalidInput("agent %q: input length %d exceeds bound [1, %d]", a.id, len(input), a.maxInputLen)
		a.fireError(err)
		return Result{}, err
	}

	st := &state{
		messages: []message.Message{
			message.System(a.systemPrompt),
			message.User(input),
		},
	}

	var usage backend.TokenUsage
	iteration := 0

	for !st.done && iteration < a.maxIterations {
		if err := ctx.Err(); err != nil {
			cancelErr := errs.Wrap(errs.Cancelled, err, "agent %q: run cancelled", a.id)
			a.fireError(cancelErr)
			return Result{Messages: st.messages, Iterations: iteration, Usage: usage}, cancelErr
		}

		iteration++

		if a.hooks.OnBeforeGenerate != nil {
			a.hooks.OnBeforeGenerate(a.id, iteration)
		}

		stepStart := time.Now()
		spanCtx, span := a.tracer.StartAgentStep(ctx, a.id, iteration)
		resp, err := a.backend.Generate(spanCtx, backend.GenerateRequest{
			Messages:    st.messages,
			Tools:       a.Tools(),
			Model:       a.model,
			Temperature: a.temperature,
			MaxTokens:   a.maxTokens,
		})
		tracing.End(span, err)
		if a.metrics != nil {
			a.metrics.ObserveStep("agent", a.id, time.Since(stepStart))
		}
		if err != nil {
			wrapped := errs.Wrap(errs.BackendFailure, err, "agent %q: backend generate failed", a.id)
			if a.metrics != nil {
				a.metrics.ObserveError(string(errs.BackendFailure))
			}
			a.fireError(wrapped)
			return Result{Messages: st.messages, Iterations: iteration, Usage: usage}, wrapped
		}

		if resp.Usage != nil {
			usage = usage.Add(*resp.Usage)
		} else {
			prompt := a.tokens.CountMessages(st.messages)
			completion := a.tokens.Count(resp.Message.Content)
			usage = usage.Add(backend.TokenUsage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion})
		}
		if a.metrics != nil {
			a.metrics.ObserveTokens(a.id, usage.PromptTokens, usage.CompletionTokens)
		}

		st.messages = append(st.messages, resp.Message)

		if a.hooks.OnAfterGenerate != nil {
			a.hooks.OnAfterGenerate(a.id, iteration, resp)
		}

		switch resp.Finish {
		case backend.FinishToolCalls:
			for _, call := range resp.Message.ToolCalls {
				st.messages = append(st.messages, a.dispatchToolCall(ctx, call))
			}
		default:
			st.done = true
		}
	}

	response := ""
	for i := len(st.messages) - 1; i >= 0; i-- {
		if st.messages[i].Role == message.RoleAssistant {
			response = st.messages[i].Content
			break
		}
	}

	return Result{Response: response, Messages: st.messages, Iterations: iteration, Usage: usage}, nil
}

// dispatchToolCall invokes one requested tool call and returns the
// tool-result message to append. Tool failures never propagate out of Run;
// they are serialized into the tool message so the model can react.
func (a *Agent) dispatchToolCall(ctx context.Context, call message.ToolCall) message.Message {
	t, ok := a.tools[call.Name]
	if !ok {
		return message.Tool(call.ID, fmt.Sprintf(`{"error":"Tool '%s' not found"}`, call.Name))
	}

	if err := jsonschema.Validate(call.Arguments, t.Parameters()); err != nil {
		payload, _ := json.Marshal(map[string]string{"error": "parameter validation failed: " + err.Error()})
		return message.Tool(call.ID, string(payload))
	}

	if a.hooks.OnBeforeToolCall != nil {
		a.hooks.OnBeforeToolCall(a.id, call)
	}

	toolCtx, cancel := context.WithTimeout(ctx, a.toolTimeout)
	defer cancel()

	spanCtx, span := a.tracer.StartToolCall(toolCtx, call.Name)
	result, err := t.Execute(spanCtx, call.Arguments)
	tracing.End(span, err)

	if err != nil {
		if a.metrics != nil {
			a.metrics.ObserveToolCall(call.Name, "error")
		}
		a.logger.Warn("agent.tool.failed", "agent", a.id, "tool", call.Name, "error", err.Error())
		payload, _ := json.Marshal(map[string]string{"error": err.Error()})
		return message.Tool(call.ID, string(payload))
	}

	if a.metrics != nil {
		a.metrics.ObserveToolCall(call.Name, "success")
	}

	if a.hooks.OnAfterToolCall != nil {
		a.hooks.OnAfterToolCall(a.id, call, result)
	}

	if s, ok := result.(string); ok {
		return message.Tool(call.ID, s)
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return message.Tool(call.ID, fmt.Sprintf(`{"error":"failed to encode tool result: %v"}`, err))
	}
	return message.Tool(call.ID, string(encoded))
}

func (a *Agent) fireError(err error) {
	if a.hooks.OnError != nil {
		a.hooks.OnError(a.id, err)
	}
}
