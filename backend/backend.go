// Package backend defines the abstract LLM service contract the rest of the
// module consumes: one request, one response, no internal state. Vendor
// adapters (backend/anthropic, backend/openai, backend/bedrock) implement
// Backend against their respective SDKs; the agent loop and conductors never
// import a vendor SDK directly.
package backend

import (
	"context"

	"github.com/hupe1980/conductormesh/message"
	"github.com/hupe1980/conductormesh/tool"
)

// FinishReason is the closed set of reasons a backend stopped generating.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
	FinishLength    FinishReason = "length"
	FinishError     FinishReason = "error"
)

// TokenUsage is the per-call token accounting triple. TotalTokens is always
// PromptTokens + CompletionTokens; backends that cannot report real usage
// should estimate it (see package tokencount) rather than leave it zero.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Add returns the element-wise sum of u and other.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}

// GenerateRequest carries everything a backend needs to produce one
// response: no request-to-request state is retained by the backend.
type GenerateRequest struct {
	Messages    []message.Message
	Tools       []tool.Definition
	Model       string
	Temperature float64
	MaxTokens   int
	Stop        []string
}

// GenerateResponse is a backend's single reply to a GenerateRequest.
type GenerateResponse struct {
	Message message.Message
	Usage   *TokenUsage
	Finish  FinishReason
}

// Backend is the abstract LLM service contract. Implementations translate
// GenerateRequest into their vendor's wire format and translate the vendor
// response/stop-reason back into this package's closed FinishReason set.
// They perform no retry, caching, or tool dispatch of their own.
type Backend interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
}
