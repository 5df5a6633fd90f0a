// Package bedrock adapts the AWS Bedrock Converse API to backend.Backend.
// Like backend/anthropic and backend/openai it is intentionally thin:
// translate message/message.go and tool/tool.go shapes into the Converse
// request/response shape and back, and nothing else.
package bedrock

import (
	"context"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"

	"github.com/hupe1980/conductormesh/backend"
	"github.com/hupe1980/conductormesh/message"
	"github.com/hupe1980/conductormesh/tool"
)

// converseAPI abstracts the single Bedrock runtime call this adapter needs,
// so tests can inject a fake without standing up AWS credentials.
type converseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Options configures the Bedrock backend adapter.
type Options struct {
	Model  string
	Region string
}

// Option configures Options at construction time.
type Option func(*Options)

// WithModel overrides the default Bedrock model id.
func WithModel(m string) Option { return func(o *Options) { o.Model = m } }

// WithRegion overrides the AWS region used to load the default credential chain.
func WithRegion(r string) Option { return func(o *Options) { o.Region = r } }

// Backend wraps the Bedrock Converse API behind backend.Backend.
type Backend struct {
	client converseAPI
	opts   Options
}

// New constructs a Backend using the default AWS credential chain.
func New(ctx context.Context, optFns ...Option) (*Backend, error) {
	opts := Options{Region: "us-east-1"}
	for _, fn := range optFns {
		fn(&opts)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("bedrock: load aws config: %w", err)
	}

	return &Backend{client: bedrockruntime.NewFromConfig(awsCfg), opts: opts}, nil
}

// NewFromClient constructs a Backend from an already-configured client.
func NewFromClient(client converseAPI, optFns ...Option) *Backend {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Backend{client: client, opts: opts}
}

var _ backend.Backend = (*Backend)(nil)

// Generate translates req into a Converse call and translates the response
// back into a backend.GenerateResponse.
func (b *Backend) Generate(ctx context.Context, req backend.GenerateRequest) (backend.GenerateResponse, error) {
	model := b.opts.Model
	if req.Model != "" {
		model = req.Model
	}

	input := toConverseInput(model, req)

	out, err := b.client.Converse(ctx, input)
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return backend.GenerateResponse{}, fmt.Errorf("bedrock: %s: %w", apiErr.ErrorCode(), err)
		}
		return backend.GenerateResponse{}, fmt.Errorf("bedrock: %w", err)
	}

	return fromConverseOutput(out), nil
}

func toConverseInput(model string, req backend.GenerateRequest) *bedrockruntime.ConverseInput {
	input := &bedrockruntime.ConverseInput{ModelId: &model}

	maxTokens := int32(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	infCfg := &types.InferenceConfiguration{MaxTokens: &maxTokens}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		infCfg.Temperature = &temp
	}
	input.InferenceConfig = infCfg

	for _, m := range req.Messages {
		if m.Role == message.RoleSystem {
			input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: m.Content}}
			continue
		}
		if msg := toConverseMessage(m); msg != nil {
			input.Messages = append(input.Messages, *msg)
		}
	}

	if len(req.Tools) > 0 {
		input.ToolConfig = toToolConfig(req.Tools)
	}

	return input
}

func toConverseMessage(m message.Message) *types.Message {
	switch m.Role {
	case message.RoleUser:
		return &types.Message{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
		}
	case message.RoleAssistant:
		msg := &types.Message{Role: types.ConversationRoleAssistant}
		if m.Content != "" {
			msg.Content = append(msg.Content, &types.ContentBlockMemberText{Value: m.Content})
		}
		for _, tc := range m.ToolCalls {
			input := tc.Arguments
			if input == nil {
				input = map[string]any{}
			}
			msg.Content = append(msg.Content, &types.ContentBlockMemberToolUse{
				Value: types.ToolUseBlock{
					ToolUseId: &tc.ID,
					Name:      &tc.Name,
					Input:     document.NewLazyDocument(input),
				},
			})
		}
		return msg
	case message.RoleTool:
		return &types.Message{
			Role: types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: &m.ToolCallID,
					Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: m.Content}},
				},
			}},
		}
	default:
		return nil
	}
}

func toToolConfig(defs []tool.Definition) *types.ToolConfiguration {
	tools := make([]types.Tool, len(defs))
	for i, d := range defs {
		schema := d.Parameters
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		name, desc := d.Name, d.Description
		tools[i] = &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        &name,
				Description: &desc,
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		}
	}
	return &types.ToolConfiguration{Tools: tools}
}

func fromConverseOutput(out *bedrockruntime.ConverseOutput) backend.GenerateResponse {
	var usage *backend.TokenUsage
	if out.Usage != nil {
		prompt := int(derefInt32(out.Usage.InputTokens))
		completion := int(derefInt32(out.Usage.OutputTokens))
		usage = &backend.TokenUsage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
	}

	var content string
	var calls []message.ToolCall
	if outMsg, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, block := range outMsg.Value.Content {
			switch b := block.(type) {
			case *types.ContentBlockMemberText:
				content = b.Value
			case *types.ContentBlockMemberToolUse:
				calls = append(calls, message.ToolCall{
					ID:        derefString(b.Value.ToolUseId),
					Name:      derefString(b.Value.Name),
					Arguments: decodeDocument(b.Value.Input),
				})
			}
		}
	}

	finish := backend.FinishStop
	switch out.StopReason {
	case types.StopReasonToolUse:
		finish = backend.FinishToolCalls
	case types.StopReasonMaxTokens:
		finish = backend.FinishLength
	}

	var msg message.Message
	if len(calls) > 0 {
		msg = message.AssistantToolCalls(content, calls...)
	} else {
		msg = message.Assistant(content)
	}

	return backend.GenerateResponse{Message: msg, Usage: usage, Finish: finish}
}

func decodeDocument(doc document.Interface) map[string]any {
	if doc == nil {
		return map[string]any{}
	}
	var v map[string]any
	if err := doc.UnmarshalSmithyDocument(&v); err != nil {
		return map[string]any{}
	}
	return v
}

func derefInt32(p *int32) int32 {
	if p == nil {
		return 0
	}
	return *p
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
