// Package fixedpoint implements the two-limb 128-bit integers and the Q64.64
// fixed-point number the engine stores every price, liquidity and fee-growth
// value in.
//
// All arithmetic is checked: a carry or borrow out of 128 bits is reported as
// clammerr.ErrOverflow or clammerr.ErrUnderflow instead of wrapping. The only
// wrapping operations are WrappingAdd and WrappingSub, which exist for the
// fee-growth accumulators and nothing else.
package fixedpoint

import (
	"fmt"
	"math"
	"math/big"
	"math/bits"

	"github.com/defistate/clamm-engine/protocols/clamm/clammerr"
	"github.com/holiman/uint256"
	"lukechampine.com/uint128"
)

// U128 is an unsigned 128-bit integer, Upper*2^64 + Lower.
type U128 struct {
	Upper uint64 `json:"upper"`
	Lower uint64 `json:"lower"`
}

var (
	// ZeroU128 is 0.
	ZeroU128 = U128{}
	// OneU128 is 1.
	OneU128 = U128{Lower: 1}
	// MaxU128 is 2^128 - 1.
	MaxU128 = U128{Upper: math.MaxUint64, Lower: math.MaxUint64}
)

// From64 returns v as a U128.
func From64(v uint64) U128 {
	return U128{Lower: v}
}

// FromUint128 converts from the lukechampine.com/uint128 representation.
func FromUint128(v uint128.Uint128) U128 {
	return U128{Upper: v.Hi, Lower: v.Lo}
}

// FromBig converts b, failing when it is negative or wider than 128 bits. b is
// not modified.
func FromBig(b *big.Int) (U128, error) {
	if b == nil {
		return U128{}, clammerr.ErrZeroInput
	}
	if b.Sign() < 0 {
		return U128{}, clammerr.ErrUnderflow
	}
	if b.BitLen() > 128 {
		return U128{}, clammerr.ErrOverflow
	}
	return FromUint128(uint128.FromBig(new(big.Int).Set(b))), nil
}

// ParseU128 parses a base-10 string.
func ParseU128(s string) (U128, error) {
	v, err := uint128.FromString(s)
	if err != nil {
		return U128{}, fmt.Errorf("%w: %q: %v", clammerr.ErrOverflow, s, err)
	}
	return FromUint128(v), nil
}

// FromUint256 narrows x to 128 bits.
func FromUint256(x *uint256.Int) (U128, error) {
	if x[2] != 0 || x[3] != 0 {
		return U128{}, clammerr.ErrOverflow
	}
	return U128{Upper: x[1], Lower: x[0]}, nil
}

// Uint128 converts to the lukechampine.com/uint128 representation.
func (u U128) Uint128() uint128.Uint128 {
	return uint128.New(u.Lower, u.Upper)
}

// Uint256 widens u to a freshly allocated uint256.Int.
func (u U128) Uint256() *uint256.Int {
	return &uint256.Int{u.Lower, u.Upper, 0, 0}
}

// Big returns u as a new big.Int.
func (u U128) Big() *big.Int {
	return u.Uint128().Big()
}

// String formats u in base 10.
func (u U128) String() string {
	return u.Uint128().String()
}

// IsZero reports whether u == 0.
func (u U128) IsZero() bool {
	return u.Upper == 0 && u.Lower == 0
}

// Cmp compares u and v and returns -1, 0 or +1.
func (u U128) Cmp(v U128) int {
	switch {
	case u.Upper < v.Upper:
		return -1
	case u.Upper > v.Upper:
		return 1
	case u.Lower < v.Lower:
		return -1
	case u.Lower > v.Lower:
		return 1
	}
	return 0
}

// Uint64 returns u as a uint64, failing if it does not fit.
func (u U128) Uint64() (uint64, error) {
	if u.Upper != 0 {
		return 0, clammerr.ErrOverflow
	}
	return u.Lower, nil
}

// Add returns u + v.
func (u U128) Add(v U128) (U128, error) {
	lo, carry := bits.Add64(u.Lower, v.Lower, 0)
	hi, carry := bits.Add64(u.Upper, v.Upper, carry)
	if carry != 0 {
		return U128{}, clammerr.ErrOverflow
	}
	return U128{Upper: hi, Lower: lo}, nil
}

// Sub returns u - v.
func (u U128) Sub(v U128) (U128, error) {
	lo, borrow := bits.Sub64(u.Lower, v.Lower, 0)
	hi, borrow := bits.Sub64(u.Upper, v.Upper, borrow)
	if borrow != 0 {
		return U128{}, clammerr.ErrUnderflow
	}
	return U128{Upper: hi, Lower: lo}, nil
}

// Mul returns u * v.
func (u U128) Mul(v U128) (U128, error) {
	if u.Upper != 0 && v.Upper != 0 {
		return U128{}, clammerr.ErrOverflow
	}
	hi, lo := bits.Mul64(u.Lower, v.Lower)
	c1, p1 := bits.Mul64(u.Upper, v.Lower)
	c2, p2 := bits.Mul64(u.Lower, v.Upper)
	if c1 != 0 || c2 != 0 {
		return U128{}, clammerr.ErrOverflow
	}
	hi, carry := bits.Add64(hi, p1, 0)
	if carry != 0 {
		return U128{}, clammerr.ErrOverflow
	}
	hi, carry = bits.Add64(hi, p2, 0)
	if carry != 0 {
		return U128{}, clammerr.ErrOverflow
	}
	return U128{Upper: hi, Lower: lo}, nil
}

// Rsh returns u >> n.
func (u U128) Rsh(n uint) U128 {
	return FromUint128(u.Uint128().Rsh(n))
}

// WrappingAdd returns u + v mod 2^128. Only fee-growth accumulators may use it.
func (u U128) WrappingAdd(v U128) U128 {
	return FromUint128(u.Uint128().AddWrap(v.Uint128()))
}

// WrappingSub returns u - v mod 2^128. Only fee-growth deltas may use it:
// those values are meaningful as differences and are allowed to wrap.
func (u U128) WrappingSub(v U128) U128 {
	return FromUint128(u.Uint128().SubWrap(v.Uint128()))
}

// AbsDiff returns |a - b| and whether a - b is negative.
func AbsDiff(a, b U128) (U128, bool) {
	if a.Cmp(b) >= 0 {
		d, _ := a.Sub(b)
		return d, false
	}
	d, _ := b.Sub(a)
	return d, true
}

// MulDiv returns floor(a * b / denominator) with a full 256-bit intermediate.
func MulDiv(a, b, denominator U128) (U128, error) {
	if denominator.IsZero() {
		return U128{}, clammerr.ErrZeroInput
	}
	product := new(uint256.Int).Mul(a.Uint256(), b.Uint256())
	return FromUint256(product.Div(product, denominator.Uint256()))
}

// MulDivRoundingUp returns ceil(a * b / denominator) with a full 256-bit intermediate.
func MulDivRoundingUp(a, b, denominator U128) (U128, error) {
	if denominator.IsZero() {
		return U128{}, clammerr.ErrZeroInput
	}
	product := new(uint256.Int).Mul(a.Uint256(), b.Uint256())
	d := denominator.Uint256()
	rem := new(uint256.Int).Mod(product, d)
	quotient := product.Div(product, d)
	if !rem.IsZero() {
		quotient.AddUint64(quotient, 1)
	}
	return FromUint256(quotient)
}
