// Package metrics registers the Prometheus counters and histograms this
// module increments for step counts, step duration and token usage. Like
// package tracing, it is pure observability and never influences control
// flow.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector groups the metrics emitted by the agent loop and every
// conductor strategy.
type Collector struct {
	stepsTotal     *prometheus.CounterVec
	stepDuration   *prometheus.HistogramVec
	tokensTotal    *prometheus.CounterVec
	toolCallsTotal *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
}

// NewCollector registers a Collector's metrics under namespace on reg. Pass
// nil to register against the default global registry.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		stepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Total number of agent/conductor steps executed.",
		}, []string{"strategy", "agent_id"}),

		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of a single agent/conductor step.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"strategy", "agent_id"}),

		tokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Total tokens consumed, by kind (prompt/completion).",
		}, []string{"agent_id", "kind"}),

		toolCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total tool invocations, by tool name and outcome.",
		}, []string{"tool", "outcome"}),

		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total errors, by error kind.",
		}, []string{"kind"}),
	}
}

// ObserveStep records one completed step's duration for strategy/agentID.
func (c *Collector) ObserveStep(strategy, agentID string, d time.Duration) {
	c.stepsTotal.WithLabelValues(strategy, agentID).Inc()
	c.stepDuration.WithLabelValues(strategy, agentID).Observe(d.Seconds())
}

// ObserveTokens records prompt/completion token counts for agentID.
func (c *Collector) ObserveTokens(agentID string, prompt, completion int) {
	c.tokensTotal.WithLabelValues(agentID, "prompt").Add(float64(prompt))
	c.tokensTotal.WithLabelValues(agentID, "completion").Add(float64(completion))
}

// ObserveToolCall records one tool invocation's outcome ("success" or "error").
func (c *Collector) ObserveToolCall(tool, outcome string) {
	c.toolCallsTotal.WithLabelValues(tool, outcome).Inc()
}

// ObserveError records one error of the given kind string.
func (c *Collector) ObserveError(kind string) {
	c.errorsTotal.WithLabelValues(kind).Inc()
}
