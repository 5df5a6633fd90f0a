// Package tool implements the function-calling subsystem that lets an agent
// invoke structured capabilities (APIs, computations, side effects) with
// schema-validated arguments and consistent error handling.
package tool

import (
	"context"
	"fmt"
)

// Definition is the shape a backend needs to describe a tool to a vendor's
// function-calling API: name, description and a JSON-Schema-object for
// parameters, with no reference to the tool's implementation.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Tool is the contract exposed to tool authors: a name, a description, a
// JSON-Schema-object describing its parameters, and an Execute function.
// Parameter objects are validated against Parameters() by the agent loop
// before Execute is invoked, so implementations can assume args conform.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// DefinitionOf returns t's Definition, the shape backends render into their
// vendor wire format.
func DefinitionOf(t Tool) Definition {
	return Definition{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()}
}

// Error represents a failure during tool execution. Tool errors never abort
// an agent run; the agent loop serializes them into a tool-result message
// so the model can react to the failure.
type Error struct {
	Tool    string
	Message string
	Code    string
	Cause   error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError constructs an Error with the given tool name, message, and code.
func NewError(tool, message, code string) *Error {
	return &Error{Tool: tool, Message: message, Code: code}
}
