package conductor

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/hupe1980/conductormesh/agent"
	"github.com/hupe1980/conductormesh/ensemble"
	"github.com/hupe1980/conductormesh/errs"
	"github.com/hupe1980/conductormesh/exectrace"
	"github.com/hupe1980/conductormesh/sharedcontext"
)

// TallyMethod selects how ballots are combined into a winning option.
type TallyMethod string

const (
	// Majority counts one vote per voter for their chosen option.
	Majority TallyMethod = "majority"
	// Unanimous requires every voter to choose the same option.
	Unanimous TallyMethod = "unanimous"
	// Weighted counts votes scaled by a per-voter weight.
	Weighted TallyMethod = "weighted"
	// Ranked resolves the winner by instant-runoff over ranked ballots.
	Ranked TallyMethod = "ranked"
)

// DefaultQuorum is the fraction of configured voters that must cast a
// ballot for a Voting run to resolve.
const DefaultQuorum = 0.5

// VoteHooks observes each cast ballot.
type VoteHooks struct {
	OnVote func(agentID string, vote string)
}

// Voting polls a set of agents for their preference among a set of options
// and tallies the result.
type Voting struct {
	base     *Base
	voterIDs []string
	options  []string
	quorum   float64
	method   TallyMethod
	weights  map[string]float64
	question string
	hooks    VoteHooks
}

// VotingOption configures a Voting at construction time.
type VotingOption func(*Voting)

// WithVoters fixes the participating voter ids; unset, every registered
// role votes.
func WithVoters(ids ...string) VotingOption { return func(v *Voting) { v.voterIDs = ids } }

// WithOptions fixes the ballot options; unset, each voter proposes one and
// the proposals are deduplicated.
func WithOptions(opts ...string) VotingOption { return func(v *Voting) { v.options = opts } }

// WithQuorum overrides DefaultQuorum.
func WithQuorum(q float64) VotingOption { return func(v *Voting) { v.quorum = q } }

// WithTallyMethod selects how ballots are combined.
func WithTallyMethod(m TallyMethod) VotingOption { return func(v *Voting) { v.method = m } }

// WithWeights sets per-voter weights, consumed only under the Weighted method.
func WithWeights(w map[string]float64) VotingOption { return func(v *Voting) { v.weights = w } }

// WithVoteHooks attaches ballot-observation hooks.
func WithVoteHooks(h VoteHooks) VotingOption { return func(v *Voting) { v.hooks = h } }

// NewVoting constructs a Voting conductor over question. If options are
// supplied they must dedup to at least two distinct choices.
func NewVoting(base *Base, question string, optFns ...VotingOption) (*Voting, error) {
	base.Strategy = "voting"
	v := &Voting{
		base:     base,
		question: question,
		quorum:   DefaultQuorum,
		method:   Majority,
	}
	for _, fn := range optFns {
		fn(v)
	}
	if len(v.options) > 0 {
		v.options = dedupPreserveOrder(v.options)
		if len(v.options) < 2 {
			return nil, errs.New(errs.InsufficientOptions, "voting: at least two distinct options are required")
		}
	}
	return v, nil
}

var _ ensemble.Conductor = (*Voting)(nil)

func dedupPreserveOrder(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

var intPattern = regexp.MustCompile(`-?\d+`)

func parseChoice(response string, n int) int {
	m := intPattern.FindString(response)
	if m == "" {
		return 0
	}
	i, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	i--
	if i < 0 {
		i = 0
	}
	if i >= n {
		i = n - 1
	}
	return i
}

func parseRanking(response string, n int) []int {
	matches := intPattern.FindAllString(response, -1)
	seen := make(map[int]struct{}, len(matches))
	var out []int
	for _, m := range matches {
		i, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		i--
		if i < 0 || i >= n {
			continue
		}
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, i)
	}
	if len(out) == 0 {
		return []int{0}
	}
	return out
}

func highestTally(options []string, tallies map[string]float64) string {
	best := -1.0
	winner := options[0]
	for _, opt := range options {
		if t := tallies[opt]; t > best {
			best = t
			winner = opt
		}
	}
	return winner
}

// instantRunoff resolves the winner among options by repeatedly counting
// first-choice votes over the surviving options, eliminating the lowest
// scorer each round, until one option has a majority of the cast ballots or
// only one option remains.
func instantRunoff(options []string, rankings [][]int) string {
	remaining := make(map[int]bool, len(options))
	for i := range options {
		remaining[i] = true
	}

	for {
		counts := make(map[int]int, len(remaining))
		cast := 0
		for _, ranking := range rankings {
			for _, choice := range ranking {
				if remaining[choice] {
					counts[choice]++
					cast++
					break
				}
			}
		}

		if cast == 0 {
			break
		}
		for idx, c := range counts {
			if c*2 > cast {
				return options[idx]
			}
		}

		lowestIdx, lowestCount := -1, math.MaxInt
		for idx := range remaining {
			c := counts[idx]
			if c < lowestCount {
				lowestCount = c
				lowestIdx = idx
			}
		}
		if lowestIdx == -1 || len(remaining) <= 1 {
			break
		}
		delete(remaining, lowestIdx)
	}

	for idx := range remaining {
		return options[idx]
	}
	return options[0]
}

func formatVoteResult(winner string, options []string, tallies map[string]float64, method TallyMethod, active, configured int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Winner: %s (method: %s, %d/%d voters)\n", winner, method, active, configured)
	for _, opt := range options {
		fmt.Fprintf(&sb, "  %s: %.1f\n", opt, tallies[opt])
	}
	return sb.String()
}

// Run resolves voters and options (proposing options when none are
// configured), polls every voter, tallies ballots by method, and checks
// quorum before declaring a winner.
func (v *Voting) Run(ctx context.Context, e *ensemble.Ensemble, input string, sc *sharedcontext.Context, tr *exectrace.Trace) (ensemble.Result, error) {
	if err := v.base.CheckCancel(ctx); err != nil {
		return ensemble.Result{}, err
	}

	voterIDs := v.voterIDs
	if len(voterIDs) == 0 {
		for _, r := range e.Roles() {
			voterIDs = append(voterIDs, r.ID)
		}
	}
	if len(voterIDs) == 0 {
		return ensemble.Result{}, errs.New(errs.MissingRequired, "voting: ensemble %q has no agents", e.Name())
	}

	voters := make([]ensemble.AgentRole, len(voterIDs))
	for i, id := range voterIDs {
		role, err := LookupRole(e, id)
		if err != nil {
			return ensemble.Result{}, err
		}
		voters[i] = role
	}

	question := v.question
	if question == "" {
		question = input
	}

	var results []agent.Result

	options := v.options
	if len(options) == 0 {
		proposals := make([]string, 0, len(voters))
		for _, role := range voters {
			prompt := fmt.Sprintf("Question: %s\n\nPropose one concise option.", question)
			result, err := v.base.RunAgent(ctx, e, sc, tr, role, prompt)
			if err != nil {
				if v.base.ErrorMode == Continue {
					continue
				}
				return ensemble.Result{Trace: tr}, err
			}
			results = append(results, result)
			proposals = append(proposals, result.Response)
		}
		options = dedupPreserveOrder(proposals)
		if len(options) < 2 {
			return ensemble.Result{Trace: tr}, errs.New(errs.InsufficientOptions, "voting: fewer than two distinct options were proposed")
		}
	}

	tallies := make(map[string]float64, len(options))
	for _, opt := range options {
		tallies[opt] = 0
	}

	var ballots []string
	var rankings [][]int
	active := 0

	var optionList strings.Builder
	for i, opt := range options {
		fmt.Fprintf(&optionList, "%d. %s\n", i+1, opt)
	}

	for _, role := range voters {
		var prompt string
		if v.method == Ranked {
			prompt = fmt.Sprintf("Question: %s\n\nOptions:\n%sReply with your ranked order of option numbers, most preferred first, separated by commas.", question, optionList.String())
		} else {
			prompt = fmt.Sprintf("Question: %s\n\nOptions:\n%sReply with the number of your chosen option.", question, optionList.String())
		}

		result, err := v.base.RunAgent(ctx, e, sc, tr, role, prompt)
		if err != nil {
			if v.base.ErrorMode == Continue {
				continue
			}
			return ensemble.Result{Trace: tr}, err
		}
		results = append(results, result)
		active++

		if v.hooks.OnVote != nil {
			v.base.safeCall(func() { v.hooks.OnVote(role.ID, result.Response) })
		}

		if v.method == Ranked {
			ranking := parseRanking(result.Response, len(options))
			rankings = append(rankings, ranking)
			first := options[ranking[0]]
			ballots = append(ballots, first)
			tallies[first]++
		} else {
			idx := parseChoice(result.Response, len(options))
			chosen := options[idx]
			ballots = append(ballots, chosen)
			weight := 1.0
			if v.method == Weighted {
				if w, ok := v.weights[role.ID]; ok {
					weight = w
				}
			}
			tallies[chosen] += weight
		}
	}

	required := int(math.Ceil(float64(len(voters)) * v.quorum))
	if active < required {
		return ensemble.Result{Trace: tr}, errs.New(errs.QuorumNotMet, "voting: only %d/%d required voters cast a ballot", active, required)
	}

	var winner string
	switch v.method {
	case Unanimous:
		unanimous := true
		for i := 1; i < len(ballots); i++ {
			if ballots[i] != ballots[0] {
				unanimous = false
				break
			}
		}
		if unanimous && len(ballots) > 0 {
			winner = ballots[0]
		} else {
			winner = "none (no unanimous agreement)"
		}
	case Ranked:
		winner = instantRunoff(options, rankings)
	default:
		winner = highestTally(options, tallies)
	}

	response := formatVoteResult(winner, options, tallies, v.method, active, len(voters))

	return ensemble.Result{
		Response: response,
		Usage:    AggregateUsage(results),
		Trace:    tr,
	}, nil
}
