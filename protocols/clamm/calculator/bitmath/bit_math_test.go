package bitmath

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/defistate/clamm-engine/protocols/clamm/calculator/fixedpoint"
	"github.com/defistate/clamm-engine/protocols/clamm/clammerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u128(t *testing.T, b *big.Int) fixedpoint.U128 {
	u, err := fixedpoint.FromBig(b)
	require.NoError(t, err)
	return u
}

func randU128(t *testing.T) fixedpoint.U128 {
	n, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	require.NoError(t, err)
	if n.Sign() == 0 {
		n.SetInt64(1)
	}
	return u128(t, n)
}

func TestMostSignificantBit(t *testing.T) {
	testCases := []struct {
		name     string
		input    fixedpoint.U128
		expected uint8
		err      error
	}{
		{"Input 1", fixedpoint.From64(1), 0, nil},
		{"Input 2", fixedpoint.From64(2), 1, nil},
		{"Input 3", fixedpoint.From64(3), 1, nil},
		{"Input 255", fixedpoint.From64(255), 7, nil},
		{"Input 256", fixedpoint.From64(256), 8, nil},
		{"Input 2^64", fixedpoint.U128{Upper: 1}, 64, nil},
		{"Large Number (2^128 - 1)", fixedpoint.MaxU128, 127, nil},
		{"Error on Zero", fixedpoint.ZeroU128, 0, clammerr.ErrZeroInput},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := MostSignificantBit(tc.input)
			if tc.err != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.expected, result)
			}
		})
	}
}

// --- Invariant Tests (Fuzzing) ---

func TestMostSignificantBit_Invariant(t *testing.T) {
	for i := 0; i < 1000; i++ {
		input := randU128(t)
		msb, err := MostSignificantBit(input)
		require.NoError(t, err)

		// Invariant 1: input >= 2**msb
		lowerBound := new(big.Int).Lsh(big.NewInt(1), uint(msb))
		assert.True(t, input.Big().Cmp(lowerBound) >= 0)

		// Invariant 2: input < 2**(msb + 1)
		upperBound := new(big.Int).Lsh(big.NewInt(1), uint(msb+1))
		assert.True(t, input.Big().Cmp(upperBound) < 0)
		assert.Equal(t, input.Big().BitLen()-1, int(msb))
	}
}

func TestBinaryLog2(t *testing.T) {
	t.Run("zero input", func(t *testing.T) {
		_, err := BinaryLog2(fixedpoint.ZeroU128)
		assert.ErrorIs(t, err, clammerr.ErrZeroInput)
		assert.ErrorIs(t, err, clammerr.ErrArithmetic)
	})

	t.Run("exact for powers of two", func(t *testing.T) {
		for k := 0; k < 128; k++ {
			x := u128(t, new(big.Int).Lsh(big.NewInt(1), uint(k)))
			lg, err := BinaryLog2(x)
			require.NoError(t, err)
			assert.Equal(t, fixedpoint.Q64x64FromInt(uint64(k)), lg, "k=%d", k)
		}
	})

	t.Run("log2(3)", func(t *testing.T) {
		lg, err := BinaryLog2(fixedpoint.From64(3))
		require.NoError(t, err)
		// log2(3) = 1.58496250072115618145...; the fraction is truncated to 64 bits.
		assert.Equal(t, fixedpoint.U128{Upper: 1, Lower: 10790653543520307103}, lg.Value)
	})

	t.Run("monotonic", func(t *testing.T) {
		for i := 0; i < 1000; i++ {
			a, b := randU128(t), randU128(t)
			if a.Cmp(b) > 0 {
				a, b = b, a
			}
			la, err := BinaryLog2(a)
			require.NoError(t, err)
			lb, err := BinaryLog2(b)
			require.NoError(t, err)
			assert.True(t, la.Cmp(lb) <= 0, "log2(%s) > log2(%s)", a, b)

			// the next integer never has a smaller logarithm either
			next, err := a.Add(fixedpoint.OneU128)
			if err != nil {
				continue
			}
			ln, err := BinaryLog2(next)
			require.NoError(t, err)
			assert.True(t, la.Cmp(ln) <= 0)
		}
	})
}

func TestAbsU128(t *testing.T) {
	v, err := AbsU128(fixedpoint.I128From64(-9))
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.From64(9), v)

	_, err = AbsU128(fixedpoint.MinI128)
	assert.ErrorIs(t, err, clammerr.ErrOverflow)
}
