package policy

import (
	"testing"

	"github.com/asheshgoplani/claude-orchestrator/internal/claudeerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelGateAllowList(t *testing.T) {
	p := Policy{AllowedModels: []string{"claude-*"}}
	require.NoError(t, p.CheckModel("claude-opus"))
	err := p.CheckModel("gpt-4")
	require.Error(t, err)
	assert.True(t, claudeerr.Is(err, claudeerr.KindInvalidRequest))
}

func TestModelGateBlockListAfterAllow(t *testing.T) {
	p := Policy{AllowedModels: []string{"claude-*"}, BlockedModels: []string{"claude-legacy"}}
	require.NoError(t, p.CheckModel("claude-opus"))
	require.Error(t, p.CheckModel("claude-legacy"))
}

func TestEmptyAllowListAllowsAll(t *testing.T) {
	p := Policy{}
	require.NoError(t, p.CheckModel("anything"))
}

func TestConcurrencyGate(t *testing.T) {
	p := Policy{MaxConcurrent: 2}
	require.NoError(t, p.CheckConcurrency(1))
	require.Error(t, p.CheckConcurrency(2))
}

func TestResolveCostCapFallsBackToSmallerLimit(t *testing.T) {
	p := Policy{}
	cap, err := p.ResolveCostCap(0, 500_000, 200_000)
	require.NoError(t, err)
	assert.Equal(t, int64(200_000), cap)
}

func TestResolveCostCapRequiresField(t *testing.T) {
	p := Policy{RequireMaxCost: true}
	_, err := p.ResolveCostCap(0, 0, 0)
	require.Error(t, err)
	assert.True(t, claudeerr.Is(err, claudeerr.KindMaxCostRequired))
}

func TestClampContextTokens(t *testing.T) {
	p := Policy{MaxContextTokens: 1000}
	assert.Equal(t, 1000, p.ClampContextTokens(5000))
	assert.Equal(t, 500, p.ClampContextTokens(500))
	assert.Equal(t, 1000, p.ClampContextTokens(0))
}

func TestStoreSetValidates(t *testing.T) {
	s := NewStore(Default())
	err := s.Set(Policy{DefaultAutonomy: "bogus"})
	require.Error(t, err)
}

func TestStoreRoundTrip(t *testing.T) {
	s := NewStore(Default())
	p := Policy{DefaultAutonomy: AutonomyFull, MaxConcurrent: 5}
	require.NoError(t, s.Set(p))
	assert.Equal(t, p, s.Get())
}
