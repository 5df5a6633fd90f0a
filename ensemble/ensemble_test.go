package ensemble

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/conductormesh/agent"
	"github.com/hupe1980/conductormesh/backend"
	"github.com/hupe1980/conductormesh/errs"
	"github.com/hupe1980/conductormesh/exectrace"
	"github.com/hupe1980/conductormesh/message"
	"github.com/hupe1980/conductormesh/sharedcontext"
)

func mustAgent(t *testing.T, name, reply string) *agent.Agent {
	t.Helper()
	mock := backend.NewMock(backend.GenerateResponse{Message: message.Assistant(reply), Finish: backend.FinishStop})
	a, err := agent.NewBuilder(name).WithSystemPrompt("p").WithBackend(mock).Build()
	require.NoError(t, err)
	return a
}

type stubConductor struct {
	response string
}

func (s stubConductor) Run(ctx context.Context, e *Ensemble, input string, sc *sharedcontext.Context, tr *exectrace.Trace) (Result, error) {
	return Result{Response: s.response, Trace: tr}, nil
}

func TestBuilder_MissingRequired(t *testing.T) {
	_, err := NewBuilder("").WithAgent(mustAgent(t, "a", "hi")).Build()
	assert.True(t, errs.Is(err, errs.MissingRequired))

	_, err = NewBuilder("empty").Build()
	assert.True(t, errs.Is(err, errs.MissingRequired))
}

func TestBuilder_DuplicateID(t *testing.T) {
	a1 := mustAgent(t, "worker", "hi")
	a2 := mustAgent(t, "worker", "there")
	_, err := NewBuilder("e").WithAgent(a1).WithAgent(a2).Build()
	assert.True(t, errs.Is(err, errs.DuplicateID))
}

func TestRun_NoConductor(t *testing.T) {
	e, err := NewBuilder("e").WithAgent(mustAgent(t, "a", "hi")).Build()
	require.NoError(t, err)

	_, err = e.Run(context.Background(), "go")
	assert.True(t, errs.Is(err, errs.MissingRequired))
}

func TestRun_DelegatesToConductor(t *testing.T) {
	e, err := NewBuilder("e").
		WithAgent(mustAgent(t, "a", "hi")).
		WithDefaultConductor(stubConductor{response: "done"}).
		Build()
	require.NoError(t, err)

	result, err := e.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "done", result.Response)
	assert.NotNil(t, result.Trace)
}
