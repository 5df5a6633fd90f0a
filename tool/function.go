package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/conductormesh/internal/jsonschema"
	"github.com/hupe1980/conductormesh/logging"
)

// FunctionTool is a generic adapter that exposes a plain Go function as a
// Tool: it holds a JSON-Schema parameter spec, validates arguments against
// it before invocation, and normalizes errors into *Error with consistent
// codes:
//
//	VALIDATION_ERROR  -> schema / argument mismatch
//	EXECUTION_ERROR   -> underlying function returned a plain error
//	(custom codes preserved if the function returns an *Error directly)
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(ctx context.Context, args map[string]any) (any, error)
	logger      logging.Logger
}

// FunctionToolOption configures a FunctionTool at construction time.
type FunctionToolOption func(*FunctionTool)

// WithLogger attaches a logger the FunctionTool emits call lifecycle
// messages to. Defaults to logging.NoOpLogger.
func WithLogger(l logging.Logger) FunctionToolOption {
	return func(t *FunctionTool) { t.logger = l }
}

// NewFunctionTool constructs a FunctionTool from an explicit schema and
// implementation function.
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(ctx context.Context, args map[string]any) (any, error),
	optFns ...FunctionToolOption,
) *FunctionTool {
	t := &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
		logger:      logging.NoOpLogger{},
	}
	for _, o := range optFns {
		o(t)
	}
	return t
}

// Name returns the unique tool name used in function-call declarations and routing.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the short natural-language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Execute validates args against the declared schema, then invokes the
// underlying function. Validation or execution failures are wrapped (or
// passed through) as *Error for uniform downstream handling.
func (t *FunctionTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	start := time.Now()
	t.logger.Debug("tool.execute.start", "tool", t.name)

	if err := jsonschema.Validate(args, t.parameters); err != nil {
		t.logger.Warn("tool.execute.validation_failed", "tool", t.name, "error", err.Error())
		return nil, &Error{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    "VALIDATION_ERROR",
			Cause:   err,
		}
	}

	result, err := t.fn(ctx, args)
	if err != nil {
		if toolErr, ok := err.(*Error); ok {
			t.logger.Error("tool.execute.error", "tool", t.name, "error", toolErr.Message)
			return nil, toolErr
		}
		t.logger.Error("tool.execute.error", "tool", t.name, "error", err.Error())
		return nil, &Error{Tool: t.name, Message: err.Error(), Code: "EXECUTION_ERROR", Cause: err}
	}

	t.logger.Info("tool.execute.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())
	return result, nil
}
