// Package tracing emits an OpenTelemetry span around every agent-loop
// iteration and every conductor step. It is pure observability: spans never
// influence control flow or the value returned to a caller. NoOp, the default
// wherever no Tracer is configured, uses the global provider, which is a no-op
// until one is installed, so callers who never configure OpenTelemetry pay
// nothing beyond a no-op span.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// instrumentationName identifies this module's spans in exported traces.
const instrumentationName = "github.com/hupe1980/conductormesh"

// Exporter selects the span destination Setup installs.
type Exporter string

const (
	// ExporterNone installs no TracerProvider: Setup returns a Tracer over
	// the current global provider, which discards spans unless a real
	// provider was installed elsewhere.
	ExporterNone Exporter = "none"
	// ExporterStdout pretty-prints completed spans to stdout, useful for
	// local runs.
	ExporterStdout Exporter = "stdout"
)

// Setup installs a global TracerProvider for exporter and returns a shutdown
// function the caller should defer. The returned Tracer is equivalent to
// calling New(nil) afterward, but Setup also makes the provider available to
// any other package that calls otel.GetTracerProvider() directly.
func Setup(ctx context.Context, exporter Exporter) (*Tracer, func(context.Context) error, error) {
	noopShutdown := func(context.Context) error { return nil }

	switch exporter {
	case ExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, nil, fmt.Errorf("tracing: create stdout exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		)
		otel.SetTracerProvider(tp)
		return New(tp), tp.Shutdown, nil
	case ExporterNone, "":
		return NoOp(), noopShutdown, nil
	default:
		return nil, nil, fmt.Errorf("tracing: unsupported exporter %q", exporter)
	}
}

// Tracer wraps an OpenTelemetry tracer for the spans this module emits.
type Tracer struct {
	tracer oteltrace.Tracer
}

// New wraps an existing OpenTelemetry TracerProvider. Passing nil uses
// otel.GetTracerProvider(), which defaults to a no-op provider until the
// caller installs a real one.
func New(tp oteltrace.TracerProvider) *Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracer{tracer: tp.Tracer(instrumentationName)}
}

// NoOp returns a Tracer backed by the global (default no-op) provider.
func NoOp() *Tracer { return New(nil) }

// StartAgentStep opens a span for a single agent-loop iteration.
func (t *Tracer) StartAgentStep(ctx context.Context, agentID string, iteration int) (context.Context, oteltrace.Span) {
	return t.tracer.Start(ctx, "agent.step",
		oteltrace.WithAttributes(
			attribute.String("agent.id", agentID),
			attribute.Int("agent.iteration", iteration),
		),
	)
}

// StartConductorStep opens a span for a single conductor-driven agent call.
func (t *Tracer) StartConductorStep(ctx context.Context, strategy, agentID string) (context.Context, oteltrace.Span) {
	return t.tracer.Start(ctx, "conductor.step",
		oteltrace.WithAttributes(
			attribute.String("conductor.strategy", strategy),
			attribute.String("agent.id", agentID),
		),
	)
}

// StartToolCall opens a span for a single tool invocation.
func (t *Tracer) StartToolCall(ctx context.Context, toolName string) (context.Context, oteltrace.Span) {
	return t.tracer.Start(ctx, "tool.call", oteltrace.WithAttributes(attribute.String("tool.name", toolName)))
}

// End records err (if any) on span and closes it.
func End(span oteltrace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
