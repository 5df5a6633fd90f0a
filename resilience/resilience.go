// Package resilience wraps a backend.Backend with retry and per-agent circuit
// breaking so the conductor package's retry error mode has somewhere to live.
// It adds no orchestration logic of its own: callers bind it to one agent id
// via ForAgent and use the result as a plain backend.Backend. The generic
// Do/NewBreaker helpers are exported so package conductor can apply the same
// retry-plus-circuit-breaker discipline around a whole agent.Run call, not
// just a single backend.Generate call.
package resilience

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/hupe1980/conductormesh/backend"
	"github.com/hupe1980/conductormesh/errs"
	"github.com/hupe1980/conductormesh/logging"
)

// RetryConfig controls the jittered exponential backoff applied between
// attempts. MaxAttempts counts every attempt, the first one included. The
// backoff base doubles each attempt starting from BaseDelay, capped at
// MaxDelay; the actual delay is drawn between half of that base and the full
// base, to avoid thundering-herd retries across agents sharing a backend.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig allows three attempts in total. conductor.NewBase takes
// only its delay bounds; a conductor's own RetryCount sets how many retries
// follow the first attempt.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts: 3,
	BaseDelay:   200 * time.Millisecond,
	MaxDelay:    5 * time.Second,
}

// CircuitBreakerConfig configures a per-key circuit breaker. Once
// MaxFailures consecutive calls fail, the breaker opens and further calls
// fail fast for Timeout before a single probe request is allowed through.
type CircuitBreakerConfig struct {
	MaxFailures uint32
	Timeout     time.Duration
	Interval    time.Duration
}

// DefaultCircuitBreakerConfig is a conservative default suited to an LLM
// backend with per-minute-scale call rates.
var DefaultCircuitBreakerConfig = CircuitBreakerConfig{
	MaxFailures: 5,
	Timeout:     30 * time.Second,
	Interval:    60 * time.Second,
}

// NewBreaker constructs a named circuit breaker over any result type T,
// logging every state transition.
func NewBreaker[T any](name string, cfg CircuitBreakerConfig, logger logging.Logger) *gobreaker.CircuitBreaker[T] {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool { return err == nil },
	})
}

// Do executes fn through cb, making at most cfg.MaxAttempts attempts with
// jittered exponential backoff between them. limiter, if non-nil, paces every attempt
// (including the first). A circuit-open rejection fails immediately without
// consuming a retry attempt; a cancelled ctx aborts the retry loop.
func Do[T any](ctx context.Context, cfg RetryConfig, limiter *rate.Limiter, cb *gobreaker.CircuitBreaker[T], fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := wait(ctx, backoffDelay(cfg, attempt)); err != nil {
				return zero, err
			}
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return zero, errs.Wrap(errs.Cancelled, err, "resilience: rate limiter wait")
			}
		}

		result, err := cb.Execute(func() (T, error) { return fn() })
		if err == nil {
			return result, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, errs.Wrap(errs.BackendFailure, err, "resilience: circuit %q open", cb.Name())
		}
		if ctx.Err() != nil {
			return zero, errs.Wrap(errs.Cancelled, ctx.Err(), "resilience: cancelled during attempt %d", attempt)
		}
		lastErr = err
	}

	return zero, errs.Wrap(errs.BackendFailure, lastErr, "resilience: exhausted %d attempts", cfg.MaxAttempts)
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return errs.Wrap(errs.Cancelled, ctx.Err(), "resilience: cancelled during retry backoff")
	}
}

// backoffDelay computes the jittered exponential delay before the given
// attempt (attempt is 1-indexed; the base before attempt 2 is BaseDelay, and
// the returned delay lies between half the base and the full base).
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	shift := attempt - 2
	if shift < 0 {
		shift = 0
	}
	d := cfg.BaseDelay << uint(shift)
	if d <= 0 || d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(d)/2 + 1))
	return d/2 + jitter
}

// Backend wraps an inner backend.Backend with retry and a circuit breaker
// scoped per agent id, so one misbehaving agent's failures don't trip the
// breaker for every other agent sharing the same vendor backend.
type Backend struct {
	inner   backend.Backend
	retry   RetryConfig
	cbCfg   CircuitBreakerConfig
	limiter *rate.Limiter
	logger  logging.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[backend.GenerateResponse]
}

// Option configures a Backend at construction time.
type Option func(*Backend)

// WithRetryConfig overrides DefaultRetryConfig.
func WithRetryConfig(cfg RetryConfig) Option { return func(b *Backend) { b.retry = cfg } }

// WithCircuitBreakerConfig overrides DefaultCircuitBreakerConfig.
func WithCircuitBreakerConfig(cfg CircuitBreakerConfig) Option {
	return func(b *Backend) { b.cbCfg = cfg }
}

// WithRetryRateLimit bounds the total rate of attempts (including retries)
// issued across every agent sharing this Backend, smoothing bursts of
// simultaneous retries before they reach the vendor.
func WithRetryRateLimit(r rate.Limit, burst int) Option {
	return func(b *Backend) { b.limiter = rate.NewLimiter(r, burst) }
}

// WithLogger attaches a logger used to report circuit breaker state changes.
func WithLogger(l logging.Logger) Option { return func(b *Backend) { b.logger = l } }

// New wraps inner with retry and per-agent circuit breaking.
func New(inner backend.Backend, optFns ...Option) *Backend {
	b := &Backend{
		inner:    inner,
		retry:    DefaultRetryConfig,
		cbCfg:    DefaultCircuitBreakerConfig,
		logger:   logging.NoOpLogger{},
		breakers: make(map[string]*gobreaker.CircuitBreaker[backend.GenerateResponse]),
	}
	for _, fn := range optFns {
		fn(b)
	}
	return b
}

func (b *Backend) breakerFor(agentID string) *gobreaker.CircuitBreaker[backend.GenerateResponse] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.breakers[agentID]; ok {
		return cb
	}
	cb := NewBreaker[backend.GenerateResponse]("backend:"+agentID, b.cbCfg, b.logger)
	b.breakers[agentID] = cb
	return cb
}

// State returns the current circuit breaker state for agentID, creating the
// breaker (in its initial closed state) if none exists yet.
func (b *Backend) State(agentID string) gobreaker.State {
	return b.breakerFor(agentID).State()
}

// Generate runs req against the inner backend on behalf of agentID, retrying
// transient failures with jittered backoff and routing every attempt through
// that agent's circuit breaker.
func (b *Backend) Generate(ctx context.Context, agentID string, req backend.GenerateRequest) (backend.GenerateResponse, error) {
	cb := b.breakerFor(agentID)
	return Do(ctx, b.retry, b.limiter, cb, func() (backend.GenerateResponse, error) {
		return b.inner.Generate(ctx, req)
	})
}

// agentBound adapts a Backend bound to one agent id to the plain
// backend.Backend interface, so it can be passed straight to agent.Builder.
type agentBound struct {
	b       *Backend
	agentID string
}

func (a agentBound) Generate(ctx context.Context, req backend.GenerateRequest) (backend.GenerateResponse, error) {
	return a.b.Generate(ctx, a.agentID, req)
}

// ForAgent returns a backend.Backend bound to agentID's circuit breaker.
func (b *Backend) ForAgent(agentID string) backend.Backend {
	return agentBound{b: b, agentID: agentID}
}
