package sqrtpricemath

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/defistate/clamm-engine/protocols/clamm/calculator/fixedpoint"
	"github.com/defistate/clamm-engine/protocols/clamm/clammerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Helper Functions for Invariant Testing ---

// newRandU128 generates a random U128 up to a given number of bits.
func newRandU128(bits int) fixedpoint.U128 {
	max := new(big.Int).Lsh(big.NewInt(1), uint(bits))
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		panic(err)
	}
	u, err := fixedpoint.FromBig(n)
	if err != nil {
		panic(err)
	}
	return u
}

func price(n uint64) fixedpoint.Q64x64 {
	return fixedpoint.Q64x64FromInt(n)
}

func TestGetAmountDeltas(t *testing.T) {
	testCases := []struct {
		name        string
		a, b        fixedpoint.Q64x64
		liquidity   uint64
		amount0Down uint64
		amount0Up   uint64
		amount1Down uint64
		amount1Up   uint64
	}{
		{"one to two", price(1), price(2), 1000, 500, 500, 1000, 1000},
		{"one to three", price(1), price(3), 1000, 666, 667, 2000, 2000},
		{"reversed bounds", price(3), price(1), 1000, 666, 667, 2000, 2000},
		{"equal bounds", price(2), price(2), 1000, 0, 0, 0, 0},
		{"zero liquidity", price(1), price(2), 0, 0, 0, 0, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			l := fixedpoint.From64(tc.liquidity)

			got, err := GetAmount0Delta(tc.a, tc.b, l, false)
			require.NoError(t, err)
			assert.Equal(t, fixedpoint.From64(tc.amount0Down), got)

			got, err = GetAmount0Delta(tc.a, tc.b, l, true)
			require.NoError(t, err)
			assert.Equal(t, fixedpoint.From64(tc.amount0Up), got)

			got, err = GetAmount1Delta(tc.a, tc.b, l, false)
			require.NoError(t, err)
			assert.Equal(t, fixedpoint.From64(tc.amount1Down), got)

			got, err = GetAmount1Delta(tc.a, tc.b, l, true)
			require.NoError(t, err)
			assert.Equal(t, fixedpoint.From64(tc.amount1Up), got)
		})
	}

	t.Run("zero sqrt price", func(t *testing.T) {
		_, err := GetAmount0Delta(fixedpoint.Q64x64{}, price(1), fixedpoint.From64(1), true)
		assert.ErrorIs(t, err, clammerr.ErrZeroInput)
	})
}

func TestGetNextSqrtPrice(t *testing.T) {
	l := fixedpoint.From64(1000)
	half := fixedpoint.NewQ64x64(fixedpoint.U128{Lower: 1 << 63})

	t.Run("token0 in moves price down", func(t *testing.T) {
		p, err := GetNextSqrtPriceFromInput(price(1), l, fixedpoint.From64(1000), true)
		require.NoError(t, err)
		assert.Equal(t, half, p)
	})

	t.Run("token1 in moves price up", func(t *testing.T) {
		p, err := GetNextSqrtPriceFromInput(price(1), l, fixedpoint.From64(1000), false)
		require.NoError(t, err)
		assert.Equal(t, price(2), p)
	})

	t.Run("token1 out moves price down", func(t *testing.T) {
		p, err := GetNextSqrtPriceFromOutput(price(1), l, fixedpoint.From64(500), true)
		require.NoError(t, err)
		assert.Equal(t, half, p)
	})

	t.Run("token0 out moves price up", func(t *testing.T) {
		p, err := GetNextSqrtPriceFromOutput(price(1), l, fixedpoint.From64(500), false)
		require.NoError(t, err)
		assert.Equal(t, price(2), p)
	})

	t.Run("zero amount keeps the price", func(t *testing.T) {
		p, err := GetNextSqrtPriceFromInput(price(1), l, fixedpoint.ZeroU128, true)
		require.NoError(t, err)
		assert.Equal(t, price(1), p)
	})

	t.Run("output larger than reserves", func(t *testing.T) {
		_, err := GetNextSqrtPriceFromOutput(price(1), l, fixedpoint.From64(1000), false)
		assert.ErrorIs(t, err, ErrReservesExceeded)
		assert.ErrorIs(t, err, clammerr.ErrInsufficientLiquidity)

		_, err = GetNextSqrtPriceFromOutput(price(1), l, fixedpoint.From64(1000), true)
		assert.ErrorIs(t, err, ErrReservesExceeded)
	})

	t.Run("zero inputs", func(t *testing.T) {
		_, err := GetNextSqrtPriceFromInput(fixedpoint.Q64x64{}, l, fixedpoint.From64(1), true)
		assert.ErrorIs(t, err, ErrSqrtPriceZero)
		_, err = GetNextSqrtPriceFromOutput(price(1), fixedpoint.ZeroU128, fixedpoint.From64(1), true)
		assert.ErrorIs(t, err, ErrLiquidityZero)
	})
}

// --- Invariant Tests (Simulating Fuzzing) ---

func TestGetAmount0Delta_Invariants(t *testing.T) {
	for i := 0; i < 1000; i++ {
		sqrtP := fixedpoint.NewQ64x64(newRandU128(96))
		sqrtQ := fixedpoint.NewQ64x64(newRandU128(96))
		liquidity := newRandU128(64)

		if sqrtP.IsZero() {
			sqrtP = price(1)
		}
		if sqrtQ.IsZero() {
			sqrtQ = price(1)
		}

		amount0Down, err := GetAmount0Delta(sqrtP, sqrtQ, liquidity, false)
		if err != nil {
			assert.ErrorIs(t, err, clammerr.ErrOverflow)
			continue
		}
		amount0Up, err := GetAmount0Delta(sqrtP, sqrtQ, liquidity, true)
		require.NoError(t, err)

		// assert(amount0Down <= amount0Up);
		assert.True(t, amount0Down.Cmp(amount0Up) <= 0)

		// assert(amount0Up - amount0Down < 2);
		diff, err := amount0Up.Sub(amount0Down)
		require.NoError(t, err)
		assert.True(t, diff.Cmp(fixedpoint.From64(2)) < 0)
	}
}

func TestGetAmount1Delta_Invariants(t *testing.T) {
	for i := 0; i < 1000; i++ {
		sqrtP := fixedpoint.NewQ64x64(newRandU128(96))
		sqrtQ := fixedpoint.NewQ64x64(newRandU128(96))
		liquidity := newRandU128(96)

		amount1Down, err := GetAmount1Delta(sqrtP, sqrtQ, liquidity, false)
		if err != nil {
			assert.ErrorIs(t, err, clammerr.ErrOverflow)
			continue
		}
		amount1Up, err := GetAmount1Delta(sqrtP, sqrtQ, liquidity, true)
		require.NoError(t, err)

		assert.True(t, amount1Down.Cmp(amount1Up) <= 0)
		diff, err := amount1Up.Sub(amount1Down)
		require.NoError(t, err)
		assert.True(t, diff.Cmp(fixedpoint.From64(2)) < 0)
	}
}

func TestGetNextSqrtPriceFromInput_Invariants(t *testing.T) {
	for i := 0; i < 1000; i++ {
		sqrtP := fixedpoint.NewQ64x64(newRandU128(96))
		liquidity := newRandU128(96)
		amountIn := newRandU128(64)
		zeroForOne := i%2 == 0

		if sqrtP.IsZero() {
			sqrtP = price(1)
		}
		if liquidity.IsZero() {
			liquidity = fixedpoint.OneU128
		}

		sqrtQ, err := GetNextSqrtPriceFromInput(sqrtP, liquidity, amountIn, zeroForOne)
		if err != nil {
			continue
		}

		if zeroForOne {
			// token0 in never raises the price
			assert.True(t, sqrtQ.Cmp(sqrtP) <= 0)
			// and the amount paid for the move never exceeds what came in
			paid, err := GetAmount0Delta(sqrtQ, sqrtP, liquidity, true)
			if err == nil {
				assert.True(t, paid.Cmp(amountIn) <= 0)
			}
		} else {
			assert.True(t, sqrtQ.Cmp(sqrtP) >= 0)
			paid, err := GetAmount1Delta(sqrtP, sqrtQ, liquidity, true)
			if err == nil {
				assert.True(t, paid.Cmp(amountIn) <= 0)
			}
		}
	}
}
