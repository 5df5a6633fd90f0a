package agent

import (
	"time"

	"github.com/hupe1980/conductormesh/backend"
	"github.com/hupe1980/conductormesh/errs"
	"github.com/hupe1980/conductormesh/logging"
	"github.com/hupe1980/conductormesh/metrics"
	"github.com/hupe1980/conductormesh/tokencount"
	"github.com/hupe1980/conductormesh/tool"
	"github.com/hupe1980/conductormesh/tracing"
)

// Builder constructs an Agent. Required fields are name, systemPrompt and
// backend; Build fails with a missing-required error if any is absent.
type Builder struct {
	name          string
	description   string
	systemPrompt  string
	backend       backend.Backend
	tools         []tool.Tool
	model         string
	temperature   float64
	maxTokens     int
	maxIterations int
	maxInputLen   int
	toolTimeout   time.Duration
	hooks         Hooks
	logger        logging.Logger
	tracer        *tracing.Tracer
	metrics       *metrics.Collector
}

// NewBuilder starts a Builder for an agent named name.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:          name,
		description:   "Agent " + name,
		maxIterations: DefaultMaxIterations,
		maxInputLen:   DefaultMaxInputLength,
		toolTimeout:   DefaultToolTimeout,
	}
}

// WithDescription sets the agent's human-readable description.
func (b *Builder) WithDescription(d string) *Builder { b.description = d; return b }

// WithSystemPrompt sets the required system prompt seeded into every run.
func (b *Builder) WithSystemPrompt(p string) *Builder { b.systemPrompt = p; return b }

// WithBackend sets the required backend the agent calls to generate.
func (b *Builder) WithBackend(bk backend.Backend) *Builder { b.backend = bk; return b }

// WithTools registers the tools available for this agent to call.
func (b *Builder) WithTools(tools ...tool.Tool) *Builder { b.tools = append(b.tools, tools...); return b }

// WithModel sets the backend model identifier to request.
func (b *Builder) WithModel(model string) *Builder { b.model = model; return b }

// WithTemperature sets the sampling temperature forwarded to the backend.
func (b *Builder) WithTemperature(t float64) *Builder { b.temperature = t; return b }

// WithMaxTokens bounds the backend's generated tokens per call.
func (b *Builder) WithMaxTokens(n int) *Builder { b.maxTokens = n; return b }

// WithMaxIterations overrides DefaultMaxIterations.
func (b *Builder) WithMaxIterations(n int) *Builder { b.maxIterations = n; return b }

// WithMaxInputLength overrides DefaultMaxInputLength.
func (b *Builder) WithMaxInputLength(n int) *Builder { b.maxInputLen = n; return b }

// WithToolTimeout overrides DefaultToolTimeout.
func (b *Builder) WithToolTimeout(d time.Duration) *Builder { b.toolTimeout = d; return b }

// WithHooks attaches lifecycle hooks to the built agent.
func (b *Builder) WithHooks(h Hooks) *Builder { b.hooks = h; return b }

// WithLogger attaches a logger. Defaults to logging.NoOpLogger.
func (b *Builder) WithLogger(l logging.Logger) *Builder { b.logger = l; return b }

// WithTracer attaches an OpenTelemetry span emitter. Defaults to a no-op tracer.
func (b *Builder) WithTracer(t *tracing.Tracer) *Builder { b.tracer = t; return b }

// WithMetrics attaches a Prometheus collector observing every loop
// iteration, tool call and error. Left nil, an Agent emits no metrics.
func (b *Builder) WithMetrics(m *metrics.Collector) *Builder { b.metrics = m; return b }

// Build validates required fields and returns the configured Agent.
func (b *Builder) Build() (*Agent, error) {
	if b.name == "" {
		return nil, errs.New(errs.MissingRequired, "agent: name is required")
	}
	if b.systemPrompt == "" {
		return nil, errs.New(errs.MissingRequired, "agent %q: systemPrompt is required", b.name)
	}
	if b.backend == nil {
		return nil, errs.New(errs.MissingRequired, "agent %q: backend is required", b.name)
	}

	tools := make(map[string]tool.Tool, len(b.tools))
	for _, t := range b.tools {
		tools[t.Name()] = t
	}

	logger := b.logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	tracer := b.tracer
	if tracer == nil {
		tracer = tracing.NoOp()
	}

	return &Agent{
		id:            b.name,
		description:   b.description,
		systemPrompt:  b.systemPrompt,
		backend:       b.backend,
		tools:         tools,
		model:         b.model,
		temperature:   b.temperature,
		maxTokens:     b.maxTokens,
		maxIterations: b.maxIterations,
		maxInputLen:   b.maxInputLen,
		toolTimeout:   b.toolTimeout,
		hooks:         b.hooks,
		logger:        logger,
		tracer:        tracer,
		metrics:       b.metrics,
		tokens:        tokencount.ForModel(b.model),
	}, nil
}
