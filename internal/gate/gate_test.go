package gate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/scratchnotebook/internal/domainerr"
	"github.com/ashita-ai/scratchnotebook/internal/gate"
)

func TestGate_StartsRunningAndAllows(t *testing.T) {
	g := gate.New()
	assert.Equal(t, gate.Running, g.State())
	assert.NoError(t, g.Allow())
}

func TestGate_ZeroValueStartsRunning(t *testing.T) {
	var g gate.Gate
	assert.Equal(t, gate.Running, g.State())
	assert.NoError(t, g.Allow())
}

func TestGate_DrainRejectsWithUnavailable(t *testing.T) {
	g := gate.New()
	g.Drain()

	assert.Equal(t, gate.Draining, g.State())
	err := g.Allow()
	require.Error(t, err)

	var derr *domainerr.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domainerr.Unavailable, derr.Code)
}

func TestGate_StopRejectsWithUnavailable(t *testing.T) {
	g := gate.New()
	g.Stop()

	assert.Equal(t, gate.Stopped, g.State())
	err := g.Allow()
	require.Error(t, err)

	var derr *domainerr.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domainerr.Unavailable, derr.Code)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "running", gate.Running.String())
	assert.Equal(t, "draining", gate.Draining.String())
	assert.Equal(t, "stopped", gate.Stopped.String())
}
