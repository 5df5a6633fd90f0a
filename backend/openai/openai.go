// Package openai adapts the OpenAI Chat Completions API to backend.Backend.
// It translates message/message.go and tool/tool.go shapes into the SDK's
// request/response types and back; no retry or tool-dispatch logic lives
// here.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/hupe1980/conductormesh/backend"
	"github.com/hupe1980/conductormesh/message"
	"github.com/hupe1980/conductormesh/tool"
)

// Options configures the OpenAI backend adapter.
type Options struct {
	Model               string
	MaxCompletionTokens int64
}

// Backend wraps the OpenAI Chat Completions API behind backend.Backend.
type Backend struct {
	client *openai.Client
	opts   Options
}

// Option configures a Backend at construction time.
type Option func(*Options)

// WithModel overrides the default model.
func WithModel(m string) Option { return func(o *Options) { o.Model = m } }

// WithMaxCompletionTokens overrides the default completion-token ceiling.
func WithMaxCompletionTokens(n int64) Option { return func(o *Options) { o.MaxCompletionTokens = n } }

// New constructs a Backend using the official OpenAI client, configured from
// the environment (OPENAI_API_KEY).
func New(optFns ...Option) *Backend {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient constructs a Backend from an already-configured client.
func NewFromClient(client *openai.Client, optFns ...Option) *Backend {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Backend{client: client, opts: opts}
}

// Generate translates req into a Chat Completions call and translates the
// response back into a backend.GenerateResponse.
func (b *Backend) Generate(ctx context.Context, req backend.GenerateRequest) (backend.GenerateResponse, error) {
	model := b.opts.Model
	if req.Model != "" {
		model = req.Model
	}
	maxTokens := b.opts.MaxCompletionTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req.Messages),
		Model:               model,
		Temperature:         openai.Float(req.Temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return backend.GenerateResponse{}, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return backend.GenerateResponse{}, fmt.Errorf("openai: no choices returned")
	}

	return toGenerateResponse(resp), nil
}

func buildMessages(msgs []message.Message) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	for _, m := range msgs {
		switch m.Role {
		case message.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case message.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case message.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: buildToolCalls(m.ToolCalls),
				},
			})
		case message.RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		}
	}
	return out
}

func buildToolCalls(calls []message.ToolCall) []openai.ChatCompletionMessageToolCallParam {
	out := make([]openai.ChatCompletionMessageToolCallParam, len(calls))
	for i, c := range calls {
		args, _ := json.Marshal(c.Arguments)
		out[i] = openai.ChatCompletionMessageToolCallParam{
			ID:   c.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      c.Name,
				Arguments: string(args),
			},
		}
	}
	return out
}

func buildTools(defs []tool.Definition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, len(defs))
	for i, d := range defs {
		out[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        d.Name,
				Description: openai.String(d.Description),
				Parameters:  d.Parameters,
			},
		}
	}
	return out
}

func toGenerateResponse(resp *openai.ChatCompletion) backend.GenerateResponse {
	choice := resp.Choices[0]

	var calls []message.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		calls = append(calls, message.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}

	finish := backend.FinishStop
	switch choice.FinishReason {
	case "tool_calls":
		finish = backend.FinishToolCalls
	case "length":
		finish = backend.FinishLength
	}

	var msg message.Message
	if len(calls) > 0 {
		msg = message.AssistantToolCalls(choice.Message.Content, calls...)
	} else {
		msg = message.Assistant(choice.Message.Content)
	}

	return backend.GenerateResponse{
		Message: msg,
		Usage: &backend.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		Finish: finish,
	}
}
