package bitmath

import (
	"github.com/defistate/clamm-engine/protocols/clamm/calculator/fixedpoint"
	"github.com/defistate/clamm-engine/protocols/clamm/clammerr"
	"github.com/holiman/uint256"
)

// log2Iterations is the number of fractional bits BinaryLog2 extracts.
const log2Iterations = 64

var (
	// two128 bounds the normalized Q1.127 remainder: a square that reaches it
	// has crossed 2.0 and yields a 1 bit.
	two128 = new(uint256.Int).Lsh(uint256.NewInt(1), 128)
)

// MostSignificantBit returns the index of the most significant bit of x,
// where the least significant bit is at index 0.
//
// The function satisfies the property: x >= 2**msb(x) and x < 2**(msb(x)+1)
func MostSignificantBit(x fixedpoint.U128) (uint8, error) {
	if x.IsZero() {
		return 0, clammerr.ErrZeroInput
	}
	if x.Upper != 0 {
		return 64 + msb64(x.Upper), nil
	}
	return msb64(x.Lower), nil
}

// msb64 narrows the search window by halves: 32, 16, 8, 4, 2 and 1 bits.
func msb64(x uint64) uint8 {
	var r uint8
	if x >= 1<<32 {
		x >>= 32
		r += 32
	}
	if x >= 1<<16 {
		x >>= 16
		r += 16
	}
	if x >= 1<<8 {
		x >>= 8
		r += 8
	}
	if x >= 1<<4 {
		x >>= 4
		r += 4
	}
	if x >= 1<<2 {
		x >>= 2
		r += 2
	}
	if x >= 1<<1 {
		r++
	}
	return r
}

// BinaryLog2 returns log2(x) in Q64.64. The integer part comes from the most
// significant bit; the 64 fractional bits are extracted one at a time by
// squaring the remainder, normalized to [1, 2) in Q1.127, and testing whether
// the square reached 2.
//
// The result is exact for powers of two and never overshoots the true
// logarithm, so x1 < x2 implies BinaryLog2(x1) <= BinaryLog2(x2).
func BinaryLog2(x fixedpoint.U128) (fixedpoint.Q64x64, error) {
	msb, err := MostSignificantBit(x)
	if err != nil {
		return fixedpoint.Q64x64{}, err
	}

	y := x.Uint256()
	y.Lsh(y, uint(127-msb))

	result := fixedpoint.U128{Upper: uint64(msb)}
	for bit := log2Iterations - 1; bit >= 0; bit-- {
		y.Mul(y, y)
		y.Rsh(y, 127)
		if !y.Lt(two128) {
			y.Rsh(y, 1)
			result.Lower |= 1 << uint(bit)
		}
	}
	return fixedpoint.NewQ64x64(result), nil
}

// AbsU128 returns |a|. The single unrepresentable case, the minimum I128,
// fails with clammerr.ErrOverflow.
func AbsU128(a fixedpoint.I128) (fixedpoint.U128, error) {
	return a.Abs()
}
