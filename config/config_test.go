package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
agents:
  researcher:
    max_iterations: 20
    tool_timeout: 45s
conductors:
  review-panel:
    error_mode: retry
    retry_count: 5
    merger: select-best
    quorum: 0.66
`

func TestParse_LayersOverDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	researcher := cfg.Agent("researcher")
	assert.Equal(t, 20, researcher.MaxIterations)
	assert.Equal(t, 45*time.Second, researcher.ToolTimeout)
	assert.Equal(t, DefaultAgent.MaxInputLength, researcher.MaxInputLength)

	panel := cfg.Conductor("review-panel")
	assert.Equal(t, "retry", panel.ErrorMode)
	assert.Equal(t, 5, panel.RetryCount)
	assert.Equal(t, "select-best", panel.Merger)
	assert.Equal(t, 0.66, panel.Quorum)
	assert.Equal(t, DefaultConductor.MaxRounds, panel.MaxRounds)
}

func TestAgent_UnknownNameFallsBackToDefault(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, DefaultAgent, cfg.Agent("ghost"))
	assert.Equal(t, DefaultConductor, cfg.Conductor("ghost"))
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("agents: [not, a, map"))
	assert.Error(t, err)
}
