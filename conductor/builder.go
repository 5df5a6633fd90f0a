package conductor

import (
	"github.com/hupe1980/conductormesh/ensemble"
	"github.com/hupe1980/conductormesh/errs"
)

// Kind names one of the six built-in orchestration strategies.
type Kind string

const (
	KindSequential   Kind = "sequential"
	KindParallel     Kind = "parallel"
	KindHierarchical Kind = "hierarchical"
	KindDebate       Kind = "debate"
	KindVoting       Kind = "voting"
	KindCustom       Kind = "custom"
)

// Builder selects and constructs one of the six strategies against a shared
// Base, so callers needn't import each strategy's package-level
// constructor directly when the kind is chosen dynamically (e.g. from
// configuration).
type Builder struct {
	kind Kind
	base *Base

	sequentialOpts []SequentialOption

	parallelOpts []ParallelOption

	hierarchicalOpts []HierarchicalOption

	debateTopic string
	debateOpts  []DebateOption

	votingQuestion string
	votingOpts     []VotingOption

	customOrchestrate OrchestrateFunc
}

// NewBuilder starts a Builder for the given kind over base.
func NewBuilder(kind Kind, base *Base) *Builder {
	return &Builder{kind: kind, base: base}
}

// Sequential configures the sequential strategy's options.
func (b *Builder) Sequential(opts ...SequentialOption) *Builder {
	b.sequentialOpts = opts
	return b
}

// Parallel configures the parallel strategy's options.
func (b *Builder) Parallel(opts ...ParallelOption) *Builder {
	b.parallelOpts = opts
	return b
}

// Hierarchical configures the hierarchical strategy's options.
func (b *Builder) Hierarchical(opts ...HierarchicalOption) *Builder {
	b.hierarchicalOpts = opts
	return b
}

// Debate configures the debate strategy's topic and options.
func (b *Builder) Debate(topic string, opts ...DebateOption) *Builder {
	b.debateTopic = topic
	b.debateOpts = opts
	return b
}

// Voting configures the voting strategy's question and options.
func (b *Builder) Voting(question string, opts ...VotingOption) *Builder {
	b.votingQuestion = question
	b.votingOpts = opts
	return b
}

// Custom configures the custom strategy's orchestrate function.
func (b *Builder) Custom(orchestrate OrchestrateFunc) *Builder {
	b.customOrchestrate = orchestrate
	return b
}

// Build constructs the concrete conductor selected by Kind.
func (b *Builder) Build() (ensemble.Conductor, error) {
	switch b.kind {
	case KindSequential:
		return NewSequential(b.base, b.sequentialOpts...), nil
	case KindParallel:
		return NewParallel(b.base, b.parallelOpts...)
	case KindHierarchical:
		return NewHierarchical(b.base, b.hierarchicalOpts...)
	case KindDebate:
		return NewDebate(b.base, b.debateTopic, b.debateOpts...)
	case KindVoting:
		return NewVoting(b.base, b.votingQuestion, b.votingOpts...)
	case KindCustom:
		return NewCustom(b.base, b.customOrchestrate)
	default:
		return nil, errs.New(errs.MissingRequired, "conductor: unknown kind %q", b.kind)
	}
}
