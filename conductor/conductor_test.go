package conductor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/conductormesh/agent"
	"github.com/hupe1980/conductormesh/backend"
	"github.com/hupe1980/conductormesh/ensemble"
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

func mustFailingAgent(t *testing.T, name string) *agent.Agent {
	t.Helper()
	mock := &backend.Mock{Err: errors.New("vendor unavailable")}
	a, err := agent.NewBuilder(name).WithSystemPrompt("p").WithBackend(mock).Build()
	require.NoError(t, err)
	return a
}

func mustEnsemble(t *testing.T, roles ...ensemble.AgentRole) *ensemble.Ensemble {
	t.Helper()
	b := ensemble.NewBuilder("e")
	for _, r := range roles {
		b = b.WithRole(r)
	}
	e, err := b.Build()
	require.NoError(t, err)
	return e
}

func roleFor(a *agent.Agent) ensemble.AgentRole {
	return ensemble.AgentRole{ID: a.ID(), Agent: a}
}

func TestSequential_PipesOutputForward(t *testing.T) {
	a1 := mustAgent(t, "step1", "uppercased: HELLO")
	a2 := mustAgent(t, "step2", "final: done")

	base := NewBase()
	seq := NewSequential(base, WithSequentialOrder("step1", "step2"))

	e, err := ensemble.NewBuilder("seq").WithRole(roleFor(a1)).WithRole(roleFor(a2)).WithDefaultConductor(seq).Build()
	require.NoError(t, err)

	result, err := e.Run(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "final: done", result.Response)
	assert.NotNil(t, result.Trace)
	assert.Len(t, result.Trace.Steps(), 2)
}

func TestSequential_NoOrderFallsBackToRoster(t *testing.T) {
	base := NewBase()
	seq := NewSequential(base)
	e := mustEnsemble(t, roleFor(mustAgent(t, "placeholder", "x")))
	_, err := seq.Run(context.Background(), e, "hi", sharedcontext.New(), exectrace.New())
	// the ensemble has an agent and Sequential was given no order, so it falls
	// back to the ensemble's roster and succeeds.
	require.NoError(t, err)
}

func TestSequential_NoAgentsInEnsembleFails(t *testing.T) {
	base := NewBase()
	seq := NewSequential(base)
	e := &ensemble.Ensemble{}
	_, err := seq.Run(context.Background(), e, "hi", sharedcontext.New(), exectrace.New())
	assert.True(t, errs.Is(err, errs.MissingRequired))
}

func TestParallel_RequiresMerger(t *testing.T) {
	base := NewBase()
	_, err := NewParallel(base)
	assert.True(t, errs.Is(err, errs.MissingRequired))
}

func TestParallel_ConcatenateMerger(t *testing.T) {
	a1 := mustAgent(t, "a", "response A")
	a2 := mustAgent(t, "b", "response B")

	base := NewBase()
	p, err := NewParallel(base, WithParallelAgents("a", "b"), WithParallelMerger(ConcatenateMerger("")))
	require.NoError(t, err)

	e, err := ensemble.NewBuilder("par").WithRole(roleFor(a1)).WithRole(roleFor(a2)).WithDefaultConductor(p).Build()
	require.NoError(t, err)

	result, err := e.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.Contains(t, result.Response, "response A")
	assert.Contains(t, result.Response, "response B")
	assert.Nil(t, result.Failures)
}

func TestParallel_ContinueModeRecordsFailures(t *testing.T) {
	ok := mustAgent(t, "ok", "fine")
	bad := mustFailingAgent(t, "bad")

	base := NewBase(WithErrorMode(Continue))
	p, err := NewParallel(base, WithParallelAgents("ok", "bad"), WithParallelMerger(ConcatenateMerger("")))
	require.NoError(t, err)

	e, err := ensemble.NewBuilder("par").WithRole(roleFor(ok)).WithRole(roleFor(bad)).WithDefaultConductor(p).Build()
	require.NoError(t, err)

	result, err := e.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.Contains(t, result.Response, "fine")
	require.Len(t, result.Failures, 1)
	assert.Contains(t, result.Failures, "bad")
}

func TestParallel_AllFailuresRaiseFirstErrorRegardlessOfMode(t *testing.T) {
	bad1 := mustFailingAgent(t, "bad1")
	bad2 := mustFailingAgent(t, "bad2")

	base := NewBase(WithErrorMode(Continue))
	p, err := NewParallel(base, WithParallelAgents("bad1", "bad2"), WithParallelMerger(ConcatenateMerger("")))
	require.NoError(t, err)

	e, err := ensemble.NewBuilder("par").WithRole(roleFor(bad1)).WithRole(roleFor(bad2)).WithDefaultConductor(p).Build()
	require.NoError(t, err)

	result, err := e.Run(context.Background(), "go")
	require.Error(t, err)
	require.Len(t, result.Failures, 2)
}

func TestParallel_FailFastAbortsOnFirstError(t *testing.T) {
	ok := mustAgent(t, "ok", "fine")
	bad := mustFailingAgent(t, "bad")

	base := NewBase(WithErrorMode(FailFast))
	p, err := NewParallel(base, WithParallelAgents("ok", "bad"), WithParallelMerger(ConcatenateMerger("")))
	require.NoError(t, err)

	e, err := ensemble.NewBuilder("par").WithRole(roleFor(ok)).WithRole(roleFor(bad)).WithDefaultConductor(p).Build()
	require.NoError(t, err)

	_, err = e.Run(context.Background(), "go")
	require.Error(t, err)
}

func TestHierarchical_DelegatesToWorker(t *testing.T) {
	workerMock := backend.NewMock(backend.GenerateResponse{Message: message.Assistant("worker did it"), Finish: backend.FinishStop})
	worker, err := agent.NewBuilder("worker").WithSystemPrompt("p").WithBackend(workerMock).Build()
	require.NoError(t, err)

	managerMock := backend.NewMock(
		backend.GenerateResponse{
			Message: message.AssistantToolCalls("", message.ToolCall{
				ID:   "call-1",
				Name: "delegate_task",
				Arguments: map[string]any{
					"worker_id": "worker",
					"task":      "do the thing",
				},
			}),
			Finish: backend.FinishToolCalls,
		},
		backend.GenerateResponse{Message: message.Assistant("manager summary"), Finish: backend.FinishStop},
	)
	manager, err := agent.NewBuilder("manager").WithSystemPrompt("p").WithBackend(managerMock).Build()
	require.NoError(t, err)

	base := NewBase()
	h, err := NewHierarchical(base, WithManager("manager"), WithWorkers("worker"))
	require.NoError(t, err)

	e, err := ensemble.NewBuilder("hier").WithRole(roleFor(manager)).WithRole(roleFor(worker)).WithDefaultConductor(h).Build()
	require.NoError(t, err)

	result, err := e.Run(context.Background(), "please delegate")
	require.NoError(t, err)
	assert.Equal(t, "manager summary", result.Response)
}

func TestHierarchical_RequiresManager(t *testing.T) {
	base := NewBase()
	_, err := NewHierarchical(base)
	assert.True(t, errs.Is(err, errs.MissingRequired))
}

func TestDebate_RequiresTwoDebaters(t *testing.T) {
	base := NewBase()
	_, err := NewDebate(base, "topic", WithDebaters("only-one"))
	assert.True(t, errs.Is(err, errs.MissingRequired))
}

func TestDebate_AgreementConsensus(t *testing.T) {
	a1Mock := backend.NewMock(
		backend.GenerateResponse{Message: message.Assistant("I believe X is correct."), Finish: backend.FinishStop},
		backend.GenerateResponse{Message: message.Assistant("I agree with your refinement."), Finish: backend.FinishStop},
	)
	a1, err := agent.NewBuilder("a1").WithSystemPrompt("p").WithBackend(a1Mock).Build()
	require.NoError(t, err)

	a2Mock := backend.NewMock(
		backend.GenerateResponse{Message: message.Assistant("I believe Y is correct."), Finish: backend.FinishStop},
		backend.GenerateResponse{Message: message.Assistant("Good point, consensus reached."), Finish: backend.FinishStop},
	)
	a2, err := agent.NewBuilder("a2").WithSystemPrompt("p").WithBackend(a2Mock).Build()
	require.NoError(t, err)

	base := NewBase(WithMaxRounds(5))
	d, err := NewDebate(base, "X vs Y", WithDebaters("a1", "a2"), WithDebateMaxRounds(3))
	require.NoError(t, err)

	e, err := ensemble.NewBuilder("debate").WithRole(roleFor(a1)).WithRole(roleFor(a2)).WithDefaultConductor(d).Build()
	require.NoError(t, err)

	result, err := e.Run(context.Background(), "debate it")
	require.NoError(t, err)
	assert.Contains(t, result.Response, "a1")
	assert.Contains(t, result.Response, "a2")
}

func TestVoting_Majority(t *testing.T) {
	v1 := mustAgent(t, "v1", "I choose option 1")
	v2 := mustAgent(t, "v2", "My pick is 1")
	v3 := mustAgent(t, "v3", "Option 2 for me")

	base := NewBase()
	voting, err := NewVoting(base, "pick one", WithVoters("v1", "v2", "v3"), WithOptions("Go", "Python"))
	require.NoError(t, err)

	e, err := ensemble.NewBuilder("vote").WithRole(roleFor(v1)).WithRole(roleFor(v2)).WithRole(roleFor(v3)).WithDefaultConductor(voting).Build()
	require.NoError(t, err)

	result, err := e.Run(context.Background(), "pick one")
	require.NoError(t, err)
	assert.Contains(t, result.Response, "Winner: Go")
}

func TestVoting_RankedInstantRunoff(t *testing.T) {
	// Options: A=1, B=2, C=3. Round one: A gets 2 first-choices, B gets 2,
	// C gets 1 and is the unambiguous lowest scorer, so it is eliminated
	// deterministically; its ballot's next preference (A) then gives A a
	// majority in round two.
	v1 := mustAgent(t, "v1", "1, 2, 3")
	v2 := mustAgent(t, "v2", "1, 3, 2")
	v3 := mustAgent(t, "v3", "2, 1, 3")
	v4 := mustAgent(t, "v4", "2, 3, 1")
	v5 := mustAgent(t, "v5", "3, 1, 2")

	base := NewBase()
	voting, err := NewVoting(base, "rank them", WithVoters("v1", "v2", "v3", "v4", "v5"), WithOptions("A", "B", "C"), WithTallyMethod(Ranked))
	require.NoError(t, err)

	e, err := ensemble.NewBuilder("vote").
		WithRole(roleFor(v1)).WithRole(roleFor(v2)).WithRole(roleFor(v3)).WithRole(roleFor(v4)).WithRole(roleFor(v5)).
		WithDefaultConductor(voting).Build()
	require.NoError(t, err)

	result, err := e.Run(context.Background(), "rank them")
	require.NoError(t, err)
	assert.Contains(t, result.Response, "Winner: A")
}

func TestVoting_InsufficientOptions(t *testing.T) {
	base := NewBase()
	_, err := NewVoting(base, "q", WithOptions("only-one"))
	assert.True(t, errs.Is(err, errs.InsufficientOptions))
}

func TestVoting_QuorumNotMet(t *testing.T) {
	v1 := mustAgent(t, "v1", "1")
	v2 := mustFailingAgent(t, "v2")

	// Under continue mode the failing voter is skipped instead of aborting the
	// run, leaving one ballot where the quorum of 1.0 requires two.
	base := NewBase(WithErrorMode(Continue))
	voting, err := NewVoting(base, "q", WithVoters("v1", "v2"), WithOptions("A", "B"), WithQuorum(1.0))
	require.NoError(t, err)

	e, err := ensemble.NewBuilder("vote").WithRole(roleFor(v1)).WithRole(roleFor(v2)).WithDefaultConductor(voting).Build()
	require.NoError(t, err)

	_, err = e.Run(context.Background(), "q")
	assert.True(t, errs.Is(err, errs.QuorumNotMet))
}

func TestCustom_RequiresOrchestrate(t *testing.T) {
	base := NewBase()
	_, err := NewCustom(base, nil)
	assert.True(t, errs.Is(err, errs.MissingRequired))
}

func TestCustom_DelegatesToOrchestrateFunc(t *testing.T) {
	a1 := mustAgent(t, "a", "hi")
	base := NewBase()
	c, err := NewCustom(base, func(ctx context.Context, e *ensemble.Ensemble, input string, sc *sharedcontext.Context, tr *exectrace.Trace, b *Base) (ensemble.Result, error) {
		return ensemble.Result{Response: "custom:" + input, Trace: tr}, nil
	})
	require.NoError(t, err)

	e, err := ensemble.NewBuilder("custom").WithRole(roleFor(a1)).WithDefaultConductor(c).Build()
	require.NoError(t, err)

	result, err := e.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "custom:go", result.Response)
}

func TestBuilder_DispatchesByKind(t *testing.T) {
	base := NewBase()
	b := NewBuilder(KindSequential, base).Sequential(WithSequentialOrder("a"))
	c, err := b.Build()
	require.NoError(t, err)
	var _ ensemble.Conductor = c

	_, err = NewBuilder(Kind("bogus"), base).Build()
	assert.True(t, errs.Is(err, errs.MissingRequired))
}

func TestCancellation_SequentialAbortsImmediately(t *testing.T) {
	a1 := mustAgent(t, "a", "hi")
	base := NewBase()
	seq := NewSequential(base, WithSequentialOrder("a"))

	e, err := ensemble.NewBuilder("seq").WithRole(roleFor(a1)).WithDefaultConductor(seq).Build()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = e.Run(ctx, "go")
	assert.True(t, errs.Is(err, errs.Cancelled))
}
