// Package exectrace records the uniform execution trace every conductor
// strategy and agent loop produces: an ordered sequence of per-agent steps
// with timings, inputs, outputs and errors. Trace and step identifiers are
// time-sortable ULIDs rather than random UUIDs, so a set of traces can be
// ordered by creation time without a separate timestamp index.
package exectrace

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// newID returns a fresh, time-sortable identifier.
func newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// Step is a single agent invocation recorded within a Trace. A step is
// "open" from the moment it is started until Complete or Fail terminates
// it; Duration is only meaningful once terminated.
type Step struct {
	Index     int            `json:"index"`
	ID        string         `json:"id"`
	AgentID   string         `json:"agentId"`
	Input     string         `json:"input"`
	Output    string         `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	EndedAt   time.Time      `json:"endedAt,omitempty"`
	Duration  time.Duration  `json:"duration,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Terminated reports whether the step has an output or an error recorded.
func (s Step) Terminated() bool {
	return s.Output != "" || s.Error != ""
}

// Trace is the ordered record of all steps in a single ensemble run.
type Trace struct {
	mu sync.Mutex

	id        string
	startTime time.Time
	endTime   time.Time
	steps     []*Step
}

// New starts a new Trace with its StartTime set to now.
func New() *Trace {
	return &Trace{
		id:        newID(),
		startTime: time.Now(),
	}
}

// ID returns the trace's identifier.
func (t *Trace) ID() string { return t.id }

// StartTime returns when the trace began.
func (t *Trace) StartTime() time.Time { return t.startTime }

// EndTime returns when the trace was finished, or the zero time if still open.
func (t *Trace) EndTime() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.endTime
}

// Finish marks the trace as complete at the current time.
func (t *Trace) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endTime = time.Now()
}

// StartStep opens a new step for agentID with the given input and returns a
// handle to terminate it. The step's Index is its position in the trace.
func (t *Trace) StartStep(agentID, input string) *Step {
	t.mu.Lock()
	defer t.mu.Unlock()
	step := &Step{
		Index:     len(t.steps),
		ID:        newID(),
		AgentID:   agentID,
		Input:     input,
		Timestamp: time.Now(),
	}
	t.steps = append(t.steps, step)
	return step
}

// CompleteStep terminates step with a successful output.
func (t *Trace) CompleteStep(step *Step, output string, metadata map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	step.Output = output
	step.Metadata = metadata
	step.EndedAt = time.Now()
	step.Duration = step.EndedAt.Sub(step.Timestamp)
}

// FailStep terminates step with an error.
func (t *Trace) FailStep(step *Step, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	step.Error = err.Error()
	step.EndedAt = time.Now()
	step.Duration = step.EndedAt.Sub(step.Timestamp)
}

// Steps returns a copy of the recorded steps in order.
func (t *Trace) Steps() []Step {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Step, len(t.steps))
	for i, s := range t.steps {
		out[i] = *s
	}
	return out
}
