package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/conductormesh/backend"
	"github.com/hupe1980/conductormesh/errs"
	"github.com/hupe1980/conductormesh/message"
)

type flakyBackend struct {
	fn func(ctx context.Context, req backend.GenerateRequest) (backend.GenerateResponse, error)
}

func (f *flakyBackend) Generate(ctx context.Context, req backend.GenerateRequest) (backend.GenerateResponse, error) {
	return f.fn(ctx, req)
}

func TestGenerate_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	inner := &flakyBackend{fn: func(_ context.Context, _ backend.GenerateRequest) (backend.GenerateResponse, error) {
		calls++
		if calls < 2 {
			return backend.GenerateResponse{}, errors.New("transient")
		}
		return backend.GenerateResponse{Message: message.Assistant("ok"), Finish: backend.FinishStop}, nil
	}}

	b := New(inner, WithRetryConfig(RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}))
	resp, err := b.Generate(context.Background(), "agent-a", backend.GenerateRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Message.Content)
	assert.Equal(t, 2, calls)
}

func TestGenerate_ExhaustsRetries(t *testing.T) {
	calls := 0
	inner := &flakyBackend{fn: func(_ context.Context, _ backend.GenerateRequest) (backend.GenerateResponse, error) {
		calls++
		return backend.GenerateResponse{}, errors.New("down")
	}}

	b := New(inner, WithRetryConfig(RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}))
	_, err := b.Generate(context.Background(), "agent-a", backend.GenerateRequest{})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.BackendFailure))
	assert.Equal(t, 3, calls)
}

func TestGenerate_CircuitOpensAndFailsFast(t *testing.T) {
	calls := 0
	inner := &flakyBackend{fn: func(_ context.Context, _ backend.GenerateRequest) (backend.GenerateResponse, error) {
		calls++
		return backend.GenerateResponse{}, errors.New("down")
	}}

	b := New(inner,
		WithRetryConfig(RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}),
		WithCircuitBreakerConfig(CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Minute, Interval: time.Minute}),
	)

	for i := 0; i < 2; i++ {
		_, err := b.Generate(context.Background(), "agent-a", backend.GenerateRequest{})
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State("agent-a"))
	assert.Equal(t, 2, calls)

	_, err := b.Generate(context.Background(), "agent-a", backend.GenerateRequest{})
	require.Error(t, err)
	assert.Equal(t, 2, calls, "circuit open should fail fast without calling the inner backend")
}

func TestGenerate_BreakersAreScopedPerAgent(t *testing.T) {
	inner := &flakyBackend{fn: func(_ context.Context, _ backend.GenerateRequest) (backend.GenerateResponse, error) {
		return backend.GenerateResponse{}, errors.New("down")
	}}

	b := New(inner,
		WithRetryConfig(RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}),
		WithCircuitBreakerConfig(CircuitBreakerConfig{MaxFailures: 1, Timeout: time.Minute, Interval: time.Minute}),
	)

	_, _ = b.Generate(context.Background(), "agent-a", backend.GenerateRequest{})
	assert.Equal(t, gobreaker.StateOpen, b.State("agent-a"))
	assert.Equal(t, gobreaker.StateClosed, b.State("agent-b"))
}

func TestGenerate_CancelledContextStopsRetries(t *testing.T) {
	calls := 0
	inner := &flakyBackend{fn: func(_ context.Context, _ backend.GenerateRequest) (backend.GenerateResponse, error) {
		calls++
		return backend.GenerateResponse{}, errors.New("down")
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := New(inner, WithRetryConfig(RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}))
	_, err := b.Generate(ctx, "agent-a", backend.GenerateRequest{})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Cancelled))
	assert.Equal(t, 1, calls)
}

func TestForAgent_ImplementsBackendInterface(t *testing.T) {
	inner := &flakyBackend{fn: func(_ context.Context, _ backend.GenerateRequest) (backend.GenerateResponse, error) {
		return backend.GenerateResponse{Message: message.Assistant("ok"), Finish: backend.FinishStop}, nil
	}}

	b := New(inner)
	var bound backend.Backend = b.ForAgent("agent-a")
	resp, err := bound.Generate(context.Background(), backend.GenerateRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Message.Content)
}
