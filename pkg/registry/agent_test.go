package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentRegistryGenerationBumpsOnRegisterAndRemove(t *testing.T) {
	r := NewAgentRegistry()
	assert.Equal(t, int64(0), r.Generation())

	require.NoError(t, r.Register("coder", &AgentHandle{Name: "coder"}))
	assert.Equal(t, int64(1), r.Generation())

	require.NoError(t, r.Remove("coder"))
	assert.Equal(t, int64(2), r.Generation())
}

func TestSetStatusDoesNotBumpGeneration(t *testing.T) {
	r := NewAgentRegistry()
	require.NoError(t, r.Register("coder", &AgentHandle{Name: "coder"}))
	before := r.Generation()

	r.SetStatus("coder", AgentBusy)
	assert.Equal(t, before, r.Generation())
	assert.False(t, r.IsAvailable("coder"))
}

func TestIsAvailableFalseForUnknownKind(t *testing.T) {
	r := NewAgentRegistry()
	assert.False(t, r.IsAvailable("ghost"))
}

func TestGetAgentsInfoReflectsStatus(t *testing.T) {
	r := NewAgentRegistry()
	require.NoError(t, r.Register("coder", &AgentHandle{Name: "coder", Description: "writes code"}))
	r.SetStatus("coder", AgentExecuting)

	infos := r.GetAgentsInfo()
	require.Len(t, infos, 1)
	assert.Equal(t, AgentExecuting, infos[0].Status)
}
