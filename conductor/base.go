// Package conductor implements the six built-in ensemble orchestration
// strategies (sequential, parallel, hierarchical, debate, voting, custom)
// against the ensemble.Conductor interface. Base holds the fields and
// helpers every strategy shares: cancellation checks, agent-id lookup,
// usage aggregation, and the retry-plus-circuit-breaker discipline backing
// the retry error mode.
package conductor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/hupe1980/conductormesh/agent"
	"github.com/hupe1980/conductormesh/backend"
	"github.com/hupe1980/conductormesh/ensemble"
	"github.com/hupe1980/conductormesh/errs"
	"github.com/hupe1980/conductormesh/exectrace"
	"github.com/hupe1980/conductormesh/logging"
	"github.com/hupe1980/conductormesh/message"
	"github.com/hupe1980/conductormesh/metrics"
	"github.com/hupe1980/conductormesh/resilience"
	"github.com/hupe1980/conductormesh/sharedcontext"
	"github.com/hupe1980/conductormesh/tracing"
)

// ErrorMode selects how a conductor reacts to a failing agent step.
type ErrorMode string

const (
	// FailFast aborts the run on the first agent error.
	FailFast ErrorMode = "fail-fast"
	// Continue records the error and proceeds with the remaining agents.
	Continue ErrorMode = "continue"
	// Retry retries a failing step with backoff before behaving like FailFast.
	Retry ErrorMode = "retry"
)

// Default tuning values shared by every strategy.
const (
	DefaultMaxRounds  = 10
	DefaultRetryCount = 3
)

// Base is the configuration and machinery common to every strategy: round
// and timeout bounds, the error mode, and (for Retry) a per-agent-id
// circuit breaker layered above a jittered-backoff retry loop. Strategies
// hold a *Base rather than embedding one by value so the circuit breaker
// state and its mutex are shared correctly across calls.
type Base struct {
	MaxRounds        int
	AgentTimeout     time.Duration
	ErrorMode        ErrorMode
	RetryCount       int
	BackoffBaseDelay time.Duration
	BackoffMaxDelay  time.Duration
	CircuitBreaker   resilience.CircuitBreakerConfig
	RetryLimiter     *rate.Limiter
	Logger           logging.Logger
	Metrics          *metrics.Collector
	Tracer           *tracing.Tracer
	Strategy         string

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[agent.Result]
}

// BaseOption configures a Base at construction time.
type BaseOption func(*Base)

// WithMaxRounds overrides DefaultMaxRounds (consumed by debate).
func WithMaxRounds(n int) BaseOption { return func(b *Base) { b.MaxRounds = n } }

// WithAgentTimeout bounds a single agent call; zero means unbounded.
func WithAgentTimeout(d time.Duration) BaseOption { return func(b *Base) { b.AgentTimeout = d } }

// WithErrorMode overrides the default FailFast error mode.
func WithErrorMode(m ErrorMode) BaseOption { return func(b *Base) { b.ErrorMode = m } }

// WithRetryCount overrides DefaultRetryCount (only consumed under Retry).
func WithRetryCount(n int) BaseOption { return func(b *Base) { b.RetryCount = n } }

// WithBackoff overrides the jittered exponential backoff bounds used under Retry.
func WithBackoff(base, max time.Duration) BaseOption {
	return func(b *Base) { b.BackoffBaseDelay = base; b.BackoffMaxDelay = max }
}

// WithCircuitBreakerConfig overrides the per-agent-id circuit breaker used under Retry.
func WithCircuitBreakerConfig(cfg resilience.CircuitBreakerConfig) BaseOption {
	return func(b *Base) { b.CircuitBreaker = cfg }
}

// WithRetryRateLimit paces retry attempts across every agent sharing this Base.
func WithRetryRateLimit(r rate.Limit, burst int) BaseOption {
	return func(b *Base) { b.RetryLimiter = rate.NewLimiter(r, burst) }
}

// WithLogger attaches a logger used for hook-panic recovery and circuit
// breaker state-change reporting.
func WithLogger(l logging.Logger) BaseOption { return func(b *Base) { b.Logger = l } }

// WithMetrics attaches a Prometheus collector observing every step this
// Base runs, labeled by the owning strategy's name. Left nil, a Base emits
// no metrics.
func WithMetrics(m *metrics.Collector) BaseOption { return func(b *Base) { b.Metrics = m } }

// WithTracer attaches a Tracer emitting a span around every agent step this
// Base runs. Left nil, a Base uses tracing.NoOp().
func WithTracer(t *tracing.Tracer) BaseOption { return func(b *Base) { b.Tracer = t } }

// NewBase constructs a Base with sensible defaults, applying any overrides.
func NewBase(optFns ...BaseOption) *Base {
	b := &Base{
		MaxRounds:        DefaultMaxRounds,
		ErrorMode:        FailFast,
		RetryCount:       DefaultRetryCount,
		BackoffBaseDelay: resilience.DefaultRetryConfig.BaseDelay,
		BackoffMaxDelay:  resilience.DefaultRetryConfig.MaxDelay,
		CircuitBreaker:   resilience.DefaultCircuitBreakerConfig,
		Logger:           logging.NoOpLogger{},
		Tracer:           tracing.NoOp(),
		breakers:         make(map[string]*gobreaker.CircuitBreaker[agent.Result]),
	}
	for _, fn := range optFns {
		fn(b)
	}
	return b
}

// CheckCancel raises *cancelled* if ctx has already been cancelled or timed out.
func (b *Base) CheckCancel(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.Cancelled, err, "conductor: run cancelled")
	}
	return nil
}

// LookupRole resolves id in e, raising *not-found* if it is absent.
func LookupRole(e *ensemble.Ensemble, id string) (ensemble.AgentRole, error) {
	role, ok := e.Role(id)
	if !ok {
		return ensemble.AgentRole{}, errs.New(errs.NotFound, "conductor: agent %q not found", id)
	}
	return role, nil
}

// AggregateUsage sums token usage element-wise across results; a result with
// no usage recorded contributes zero.
func AggregateUsage(results []agent.Result) backend.TokenUsage {
	var usage backend.TokenUsage
	for _, r := range results {
		usage = usage.Add(r.Usage)
	}
	return usage
}

func (b *Base) breakerFor(agentID string) *gobreaker.CircuitBreaker[agent.Result] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.breakers[agentID]; ok {
		return cb
	}
	cb := resilience.NewBreaker[agent.Result]("conductor:"+agentID, b.CircuitBreaker, b.Logger)
	b.breakers[agentID] = cb
	return cb
}

// RunAgent executes role's agent against input: it records a trace step,
// honors AgentTimeout and ErrorMode (retrying with backoff and a per-agent
// circuit breaker under Retry), fires the ensemble's agent lifecycle hooks,
// and appends the resulting text into the shared context under the agent's
// id once it succeeds.
func (b *Base) RunAgent(ctx context.Context, e *ensemble.Ensemble, sc *sharedcontext.Context, tr *exectrace.Trace, role ensemble.AgentRole, input string) (agent.Result, error) {
	if err := b.CheckCancel(ctx); err != nil {
		return agent.Result{}, err
	}

	hooks := e.Hooks()
	if hooks.OnBeforeAgent != nil {
		b.safeCall(func() { hooks.OnBeforeAgent(role.ID, input) })
	}

	step := tr.StartStep(role.ID, input)
	stepStart := time.Now()

	var result agent.Result
	var err error

	spanCtx, span := b.Tracer.StartConductorStep(ctx, b.Strategy, role.ID)
	defer func() { tracing.End(span, err) }()

	runCtx := spanCtx
	if b.AgentTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(spanCtx, b.AgentTimeout)
		defer cancel()
	}

	if b.ErrorMode == Retry {
		cb := b.breakerFor(role.ID)
		cfg := resilience.RetryConfig{
			MaxAttempts: maxInt(b.RetryCount, 0) + 1,
			BaseDelay:   b.BackoffBaseDelay,
			MaxDelay:    b.BackoffMaxDelay,
		}
		result, err = resilience.Do(runCtx, cfg, b.RetryLimiter, cb, func() (agent.Result, error) {
			return role.Agent.Run(runCtx, input)
		})
	} else {
		result, err = role.Agent.Run(runCtx, input)
	}

	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			err = errs.Wrap(errs.Timeout, err, "conductor: agent %q timed out", role.ID)
		}
		tr.FailStep(step, err)
		if b.Metrics != nil {
			if kind, ok := errs.KindOf(err); ok {
				b.Metrics.ObserveError(string(kind))
			}
		}
		if hooks.OnAgentError != nil {
			b.safeCall(func() { hooks.OnAgentError(role.ID, err) })
		}
		return result, err
	}

	if b.Metrics != nil {
		b.Metrics.ObserveStep(b.Strategy, role.ID, time.Since(stepStart))
	}

	tr.CompleteStep(step, result.Response, map[string]any{
		"iterations":  result.Iterations,
		"totalTokens": result.Usage.TotalTokens,
	})
	sc.AppendAgentMessage(role.ID, message.Assistant(result.Response))
	sc.AppendHistory(message.Assistant(result.Response))

	if hooks.OnAfterAgent != nil {
		b.safeCall(func() { hooks.OnAfterAgent(role.ID, result) })
	}

	return result, nil
}

// safeCall invokes fn, recovering and logging a panic rather than letting a
// misbehaving hook corrupt the run.
func (b *Base) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.Logger.Error("conductor.hook.panic", "recovered", r)
		}
	}()
	fn()
}

func maxInt(a, min int) int {
	if a > min {
		return a
	}
	return min
}
