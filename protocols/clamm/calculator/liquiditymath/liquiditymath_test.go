package liquiditymath

import (
	"testing"

	"github.com/defistate/clamm-engine/protocols/clamm/calculator/fixedpoint"
	"github.com/defistate/clamm-engine/protocols/clamm/clammerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddDelta(t *testing.T) {
	testCases := []struct {
		name     string
		x        fixedpoint.U128
		y        fixedpoint.I128
		expected fixedpoint.U128
		err      error
	}{
		{"add", fixedpoint.From64(1), fixedpoint.I128From64(2), fixedpoint.From64(3), nil},
		{"subtract", fixedpoint.From64(3), fixedpoint.I128From64(-2), fixedpoint.From64(1), nil},
		{"to zero", fixedpoint.From64(3), fixedpoint.I128From64(-3), fixedpoint.ZeroU128, nil},
		{"underflow", fixedpoint.From64(1), fixedpoint.I128From64(-2), fixedpoint.U128{}, ErrLiquidityUnderflow},
		{"overflow", fixedpoint.MaxU128, fixedpoint.I128From64(1), fixedpoint.U128{}, ErrLiquidityOverflow},
		{"min i128", fixedpoint.MaxU128, fixedpoint.MinI128, fixedpoint.U128{}, ErrLiquidityUnderflow},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			z, err := AddDelta(tc.x, tc.y)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, z)
		})
	}

	_, err := AddDelta(fixedpoint.MaxU128, fixedpoint.I128From64(1))
	assert.ErrorIs(t, err, clammerr.ErrState)
	_, err = AddDelta(fixedpoint.ZeroU128, fixedpoint.I128From64(-1))
	assert.ErrorIs(t, err, clammerr.ErrArithmetic)
}

func TestGetLiquidityForAmounts(t *testing.T) {
	one := fixedpoint.Q64x64FromInt(1)
	two := fixedpoint.Q64x64FromInt(2)
	three := fixedpoint.Q64x64FromInt(3)

	l, err := GetLiquidityForAmount0(one, two, fixedpoint.From64(500))
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.From64(1000), l)

	l, err = GetLiquidityForAmount1(two, one, fixedpoint.From64(1000))
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.From64(1000), l)

	_, err = GetLiquidityForAmount1(one, one, fixedpoint.From64(1000))
	assert.ErrorIs(t, err, clammerr.ErrInvalidRange)

	testCases := []struct {
		name     string
		price    fixedpoint.Q64x64
		expected uint64
	}{
		{"below range uses token0 only", fixedpoint.NewQ64x64(fixedpoint.U128{Lower: 1 << 63}), 150},
		{"inside range takes the smaller side", two, 600},
		{"above range uses token1 only", fixedpoint.Q64x64FromInt(4), 500},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// amount0 = 100, amount1 = 1000 over [1, 3]
			l, err := GetLiquidityForAmounts(tc.price, one, three, fixedpoint.From64(100), fixedpoint.From64(1000))
			require.NoError(t, err)
			assert.Equal(t, fixedpoint.From64(tc.expected), l)
		})
	}
}
