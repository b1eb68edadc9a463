package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGasPool(t *testing.T) {
	gp := new(GasPool).AddGas(1000)
	assert.Equal(t, uint64(1000), gp.Gas())

	require.NoError(t, gp.SubGas(400))
	assert.Equal(t, uint64(600), gp.Gas())

	assert.ErrorIs(t, gp.SubGas(601), ErrGasLimitReached)
	// A failed deduction leaves the pool untouched.
	assert.Equal(t, uint64(600), gp.Gas())

	require.NoError(t, gp.SubGas(600))
	assert.Equal(t, uint64(0), gp.Gas())
}

func TestGasPoolAddOverflowPanics(t *testing.T) {
	gp := new(GasPool).AddGas(math.MaxUint64 - 1)
	assert.Panics(t, func() { gp.AddGas(2) })
}
