package conductor

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/conductormesh/agent"
	"github.com/hupe1980/conductormesh/ensemble"
	"github.com/hupe1980/conductormesh/errs"
	"github.com/hupe1980/conductormesh/exectrace"
	"github.com/hupe1980/conductormesh/sharedcontext"
)

// DefaultConsensusThreshold is the fraction of debaters whose statements
// must carry an agreement cue for DefaultAgreementPredicate to declare
// consensus reached.
const DefaultConsensusThreshold = 0.8

var defaultAgreementKeywords = []string{
	"i agree", "you're right", "good point", "consensus", "we all", "common ground",
}

// AgreementPredicate decides whether a round of debate statements has
// reached consensus.
type AgreementPredicate func(statements map[string]string) bool

// DefaultAgreementPredicate declares consensus once at least threshold of
// the round's statements contain a case-insensitive agreement cue.
func DefaultAgreementPredicate(threshold float64) AgreementPredicate {
	return func(statements map[string]string) bool {
		if len(statements) == 0 {
			return false
		}
		matches := 0
		for _, s := range statements {
			lower := strings.ToLower(s)
			for _, kw := range defaultAgreementKeywords {
				if strings.Contains(lower, kw) {
					matches++
					break
				}
			}
		}
		return float64(matches) >= threshold*float64(len(statements))
	}
}

// ConsensusStrategy selects how a Debate resolves its final response.
type ConsensusStrategy string

const (
	// ConsensusJudge hands the debate transcript to a dedicated judge agent.
	ConsensusJudge ConsensusStrategy = "judge"
	// ConsensusAgreement concatenates every debater's final statement.
	ConsensusAgreement ConsensusStrategy = "agreement"
	// ConsensusVoting has debaters vote for whichever peer made the
	// strongest case.
	ConsensusVoting ConsensusStrategy = "voting"
)

// DebateHooks observes each completed debate round.
type DebateHooks struct {
	OnDebateRound func(round int, statements map[string]string)
}

// Debate runs a multi-round position/refinement exchange among a fixed set
// of debaters and resolves a final response by judge, agreement, or vote.
type Debate struct {
	base               *Base
	debaterIDs         []string
	topic              string
	maxRounds          int
	consensus          ConsensusStrategy
	judgeID            string
	agreementPredicate AgreementPredicate
	consensusThreshold float64
	hooks              DebateHooks
}

// DebateOption configures a Debate at construction time.
type DebateOption func(*Debate)

// WithDebaters fixes the participating debater ids. Required, at least two.
func WithDebaters(ids ...string) DebateOption { return func(d *Debate) { d.debaterIDs = ids } }

// WithDebateMaxRounds overrides DefaultMaxRounds for this debate.
func WithDebateMaxRounds(n int) DebateOption { return func(d *Debate) { d.maxRounds = n } }

// WithConsensusStrategy selects how the debate's final response is resolved.
func WithConsensusStrategy(s ConsensusStrategy) DebateOption {
	return func(d *Debate) { d.consensus = s }
}

// WithJudge sets the judge agent id, required when ConsensusStrategy is ConsensusJudge.
func WithJudge(id string) DebateOption { return func(d *Debate) { d.judgeID = id } }

// WithAgreementPredicate overrides the default keyword-based consensus check.
func WithAgreementPredicate(p AgreementPredicate) DebateOption {
	return func(d *Debate) { d.agreementPredicate = p }
}

// WithConsensusThreshold overrides DefaultConsensusThreshold.
func WithConsensusThreshold(t float64) DebateOption {
	return func(d *Debate) { d.consensusThreshold = t }
}

// WithDebateHooks attaches round-observation hooks.
func WithDebateHooks(h DebateHooks) DebateOption { return func(d *Debate) { d.hooks = h } }

// NewDebate constructs a Debate over topic. At least two debaters are
// required, and a judge id is required when using ConsensusJudge.
func NewDebate(base *Base, topic string, optFns ...DebateOption) (*Debate, error) {
	base.Strategy = "debate"
	d := &Debate{
		base:               base,
		topic:              topic,
		maxRounds:          base.MaxRounds,
		consensus:          ConsensusAgreement,
		consensusThreshold: DefaultConsensusThreshold,
	}
	for _, fn := range optFns {
		fn(d)
	}
	if len(d.debaterIDs) < 2 {
		return nil, errs.New(errs.MissingRequired, "debate: at least two debaters are required")
	}
	if d.consensus == ConsensusJudge && d.judgeID == "" {
		return nil, errs.New(errs.MissingRequired, "debate: judge consensus strategy requires a judge id")
	}
	if d.agreementPredicate == nil {
		d.agreementPredicate = DefaultAgreementPredicate(d.consensusThreshold)
	}
	return d, nil
}

var _ ensemble.Conductor = (*Debate)(nil)

func labeledConcatenation(order []string, statements map[string]string) string {
	parts := make([]string, 0, len(order))
	for _, id := range order {
		s, ok := statements[id]
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("[%s]\n%s", id, s))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// Run drives the initial statement round, maxRounds refinement rounds (with
// early exit once consensus is reached under ConsensusAgreement), and
// resolves a final response.
func (d *Debate) Run(ctx context.Context, e *ensemble.Ensemble, input string, sc *sharedcontext.Context, tr *exectrace.Trace) (ensemble.Result, error) {
	if err := d.base.CheckCancel(ctx); err != nil {
		return ensemble.Result{}, err
	}

	debaters := make([]ensemble.AgentRole, len(d.debaterIDs))
	for i, id := range d.debaterIDs {
		role, err := LookupRole(e, id)
		if err != nil {
			return ensemble.Result{}, err
		}
		debaters[i] = role
	}

	topic := d.topic
	if topic == "" {
		topic = input
	}

	var results []agent.Result
	initial := make(map[string]string, len(debaters))
	latest := make(map[string]string, len(debaters))
	history := make(map[string][]string, len(debaters))

	for _, role := range debaters {
		prompt := fmt.Sprintf("Topic: %s\n\nState your initial position.", topic)
		result, err := d.base.RunAgent(ctx, e, sc, tr, role, prompt)
		if err != nil {
			return ensemble.Result{Trace: tr}, err
		}
		results = append(results, result)
		initial[role.ID] = result.Response
		latest[role.ID] = result.Response
		history[role.ID] = append(history[role.ID], result.Response)
	}

	for round := 1; round <= d.maxRounds; round++ {
		if err := d.base.CheckCancel(ctx); err != nil {
			return ensemble.Result{Trace: tr}, err
		}

		roundStatements := make(map[string]string, len(debaters))
		for _, role := range debaters {
			var sb strings.Builder
			fmt.Fprintf(&sb, "Topic: %s\n\nYour previous statement:\n%s\n\nOther debaters' latest statements:\n", topic, latest[role.ID])
			for _, other := range debaters {
				if other.ID == role.ID {
					continue
				}
				fmt.Fprintf(&sb, "[%s]\n%s\n\n", other.ID, latest[other.ID])
			}
			sb.WriteString("Defend, refine, or converge your position.")

			result, err := d.base.RunAgent(ctx, e, sc, tr, role, sb.String())
			if err != nil {
				return ensemble.Result{Trace: tr}, err
			}
			results = append(results, result)
			roundStatements[role.ID] = result.Response
		}

		for id, s := range roundStatements {
			latest[id] = s
			history[id] = append(history[id], s)
		}

		if d.hooks.OnDebateRound != nil {
			d.base.safeCall(func() { d.hooks.OnDebateRound(round, roundStatements) })
		}

		if d.consensus == ConsensusAgreement && d.agreementPredicate(roundStatements) {
			break
		}
	}

	response, extra, err := d.resolve(ctx, e, sc, tr, debaters, topic, initial, latest)
	if err != nil {
		return ensemble.Result{Trace: tr}, err
	}
	results = append(results, extra...)

	return ensemble.Result{
		Response: response,
		Usage:    AggregateUsage(results),
		Trace:    tr,
	}, nil
}

func (d *Debate) resolve(ctx context.Context, e *ensemble.Ensemble, sc *sharedcontext.Context, tr *exectrace.Trace, debaters []ensemble.AgentRole, topic string, initial, latest map[string]string) (string, []agent.Result, error) {
	order := make([]string, len(debaters))
	for i, r := range debaters {
		order[i] = r.ID
	}

	switch d.consensus {
	case ConsensusJudge:
		judge, err := LookupRole(e, d.judgeID)
		if err != nil {
			return "", nil, err
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Topic: %s\n\nEvaluate the following debate and declare a final answer.\n\n", topic)
		for _, id := range order {
			fmt.Fprintf(&sb, "[%s] initial position:\n%s\n\n[%s] final position:\n%s\n\n", id, initial[id], id, latest[id])
		}

		result, err := d.base.RunAgent(ctx, e, sc, tr, judge, sb.String())
		if err != nil {
			return "", nil, err
		}
		return result.Response, []agent.Result{result}, nil

	case ConsensusVoting:
		votes := make(map[string]int, len(debaters))
		var extra []agent.Result
		for _, role := range debaters {
			var sb strings.Builder
			fmt.Fprintf(&sb, "Topic: %s\n\nFinal positions:\n", topic)
			for _, other := range debaters {
				fmt.Fprintf(&sb, "[%s]\n%s\n\n", other.ID, latest[other.ID])
			}
			sb.WriteString("Which debater (by id) made the strongest case? Name exactly one id.")

			result, err := d.base.RunAgent(ctx, e, sc, tr, role, sb.String())
			if err != nil {
				return "", nil, err
			}
			extra = append(extra, result)

			for _, other := range debaters {
				if other.ID != role.ID && strings.Contains(result.Response, other.ID) {
					votes[other.ID]++
					break
				}
			}
		}

		winner, tied := plurality(votes)
		if tied || winner == "" {
			return labeledConcatenation(order, latest), extra, nil
		}
		return latest[winner], extra, nil

	default:
		return labeledConcatenation(order, latest), nil, nil
	}
}

// plurality returns the key with the strictly highest count, reporting a tie
// when two or more keys share the maximum. It is correct regardless of map
// iteration order.
func plurality(votes map[string]int) (winner string, tied bool) {
	best := -1
	for id, count := range votes {
		switch {
		case count > best:
			best = count
			winner = id
			tied = false
		case count == best:
			tied = true
		}
	}
	return winner, tied
}
