package core

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMainnetForkBoundaries(t *testing.T) {
	c := MainnetChainConfig

	assert.False(t, c.IsHomestead(big.NewInt(1_149_999)))
	assert.True(t, c.IsHomestead(big.NewInt(1_150_000)))

	assert.False(t, c.IsLondon(big.NewInt(12_964_999)))
	assert.True(t, c.IsLondon(big.NewInt(12_965_000)))

	// Time forks only activate once the chain has merged.
	merged := big.NewInt(20_000_000)
	assert.False(t, c.IsShanghai(merged, 1_681_338_454))
	assert.True(t, c.IsShanghai(merged, 1_681_338_455))
	assert.False(t, c.IsShanghai(big.NewInt(1), 1_681_338_455))
}

func TestShanghaiRequiresMerge(t *testing.T) {
	preMerge := &ChainConfig{
		ChainID:      big.NewInt(1),
		ShanghaiTime: newUint64(0),
	}
	assert.False(t, preMerge.IsShanghai(big.NewInt(0), 0))
}

func TestRulesFlattening(t *testing.T) {
	rules := TestChainConfig.Rules(big.NewInt(0), 0)
	assert.True(t, rules.IsHomestead)
	assert.True(t, rules.IsLondon)
	assert.True(t, rules.IsMerge)
	assert.True(t, rules.IsShanghai)
	assert.True(t, rules.IsCancun)
	assert.True(t, rules.IsPrague)
	assert.Equal(t, big.NewInt(1337), rules.ChainID)

	partial := MainnetChainConfig.Rules(big.NewInt(12_965_000), 0)
	assert.True(t, partial.IsLondon)
	assert.False(t, partial.IsMerge)
	assert.False(t, partial.IsShanghai)
}

func TestRulesChainIDIsACopy(t *testing.T) {
	rules := TestChainConfig.Rules(big.NewInt(0), 0)
	rules.ChainID.SetInt64(99)
	assert.Equal(t, int64(1337), TestChainConfig.ChainID.Int64())
}
