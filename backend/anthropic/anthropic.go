// Package anthropic adapts the Anthropic Messages API to backend.Backend. It
// performs the minimal translation of message/message.go and tool/tool.go
// shapes into Anthropic request/response types; no retry, caching, or tool
// dispatch logic lives here — that belongs to package resilience and the
// agent loop respectively.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/conductormesh/backend"
	"github.com/hupe1980/conductormesh/message"
	"github.com/hupe1980/conductormesh/tool"
)

// Options configures the Anthropic backend adapter.
type Options struct {
	Model     anthropic.Model
	MaxTokens int64
	APIKey    string
}

// Backend wraps the Anthropic Messages API behind backend.Backend.
type Backend struct {
	client *anthropic.Client
	opts   Options
}

// Option configures a Backend at construction time.
type Option func(*Options)

// WithModel overrides the default model.
func WithModel(m anthropic.Model) Option { return func(o *Options) { o.Model = m } }

// WithMaxTokens overrides the default max-tokens ceiling.
func WithMaxTokens(n int64) Option { return func(o *Options) { o.MaxTokens = n } }

// WithAPIKey sets the Anthropic API key explicitly rather than reading it
// from the environment.
func WithAPIKey(key string) Option { return func(o *Options) { o.APIKey = key } }

// New constructs a Backend using the official Anthropic client.
func New(optFns ...Option) *Backend {
	opts := Options{
		Model:     anthropic.ModelClaude3_5Sonnet20241022,
		MaxTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Backend{client: &client, opts: opts}
}

// Generate translates req into an Anthropic Messages API call and translates
// the response back into a backend.GenerateResponse.
func (b *Backend) Generate(ctx context.Context, req backend.GenerateRequest) (backend.GenerateResponse, error) {
	model := b.opts.Model
	if req.Model != "" {
		model = anthropic.Model(req.Model)
	}
	maxTokens := b.opts.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:       model,
		Messages:    buildMessages(req.Messages),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(req.Temperature),
	}

	if system := systemBlocks(req.Messages); len(system) > 0 {
		params.System = system
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	resp, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return backend.GenerateResponse{}, fmt.Errorf("anthropic: %w", err)
	}

	return toGenerateResponse(resp), nil
}

func buildMessages(msgs []message.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, m := range msgs {
		switch m.Role {
		case message.RoleSystem:
			continue
		case message.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case message.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(assistantBlocks(m)...))
		case message.RoleTool:
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		}
	}
	return out
}

func assistantBlocks(m message.Message) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion
	if m.Content != "" {
		blocks = append(blocks, anthropic.NewTextBlock(m.Content))
	}
	for _, call := range m.ToolCalls {
		var input any = call.Arguments
		blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, input, call.Name))
	}
	return blocks
}

func systemBlocks(msgs []message.Message) []anthropic.TextBlockParam {
	var out []anthropic.TextBlockParam
	for _, m := range msgs {
		if m.Role == message.RoleSystem && m.Content != "" {
			out = append(out, anthropic.TextBlockParam{Text: m.Content})
		}
	}
	return out
}

func buildTools(defs []tool.Definition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(defs))
	for i, d := range defs {
		schema := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}
		if props, ok := d.Parameters["properties"]; ok {
			schema.Properties = props
		}
		if required, ok := d.Parameters["required"].([]string); ok {
			schema.Required = required
		}
		out[i] = anthropic.ToolUnionParamOfTool(schema, d.Name)
	}
	return out
}

func toGenerateResponse(resp *anthropic.Message) backend.GenerateResponse {
	var text string
	var calls []message.ToolCall

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text += block.AsText().Text
		case "tool_use":
			tu := block.AsToolUse()
			args, _ := toArguments(tu.Input)
			calls = append(calls, message.ToolCall{ID: tu.ID, Name: tu.Name, Arguments: args})
		}
	}

	finish := backend.FinishStop
	switch resp.StopReason {
	case "tool_use":
		finish = backend.FinishToolCalls
	case "max_tokens":
		finish = backend.FinishLength
	}

	var msg message.Message
	if len(calls) > 0 {
		msg = message.AssistantToolCalls(text, calls...)
	} else {
		msg = message.Assistant(text)
	}

	return backend.GenerateResponse{
		Message: msg,
		Usage: &backend.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
		Finish: finish,
	}
}

func toArguments(input any) (map[string]any, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	var args map[string]any
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, err
	}
	return args, nil
}
