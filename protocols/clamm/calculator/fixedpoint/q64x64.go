package fixedpoint

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Resolution is the number of fractional bits of a Q64x64.
const Resolution = 64

var (
	// Q64 is 2^64, the raw value of 1.0 in Q64.64.
	Q64 = U128{Upper: 1}

	// fiveToThe64 lets a Q64.64 value be rendered exactly in base 10:
	// v / 2^64 == v * 5^64 / 10^64.
	fiveToThe64 = new(big.Int).Exp(big.NewInt(5), big.NewInt(Resolution), nil)
)

// Q64x64 is an unsigned fixed-point number with 64 integer and 64 fractional
// bits. The engine uses it for square-root prices and fee growth.
type Q64x64 struct {
	Value U128 `json:"value"`
}

// NewQ64x64 wraps a raw 128-bit value.
func NewQ64x64(v U128) Q64x64 {
	return Q64x64{Value: v}
}

// Q64x64FromInt returns the integer n in Q64.64.
func Q64x64FromInt(n uint64) Q64x64 {
	return Q64x64{Value: U128{Upper: n}}
}

// IsZero reports whether q == 0.
func (q Q64x64) IsZero() bool {
	return q.Value.IsZero()
}

// Cmp compares q and r and returns -1, 0 or +1.
func (q Q64x64) Cmp(r Q64x64) int {
	return q.Value.Cmp(r.Value)
}

// Add returns q + r.
func (q Q64x64) Add(r Q64x64) (Q64x64, error) {
	v, err := q.Value.Add(r.Value)
	return Q64x64{Value: v}, err
}

// Sub returns q - r.
func (q Q64x64) Sub(r Q64x64) (Q64x64, error) {
	v, err := q.Value.Sub(r.Value)
	return Q64x64{Value: v}, err
}

// WrappingAdd is the fee-growth accumulator step.
func (q Q64x64) WrappingAdd(r Q64x64) Q64x64 {
	return Q64x64{Value: q.Value.WrappingAdd(r.Value)}
}

// WrappingSub is the fee-growth difference.
func (q Q64x64) WrappingSub(r Q64x64) Q64x64 {
	return Q64x64{Value: q.Value.WrappingSub(r.Value)}
}

// AbsDiffQ64x64 returns |a - b| and whether a - b is negative.
func AbsDiffQ64x64(a, b Q64x64) (Q64x64, bool) {
	d, neg := AbsDiff(a.Value, b.Value)
	return Q64x64{Value: d}, neg
}

// Decimal returns the exact base-10 value of q.
func (q Q64x64) Decimal() decimal.Decimal {
	scaled := new(big.Int).Mul(q.Value.Big(), fiveToThe64)
	return decimal.NewFromBigInt(scaled, -Resolution)
}

// Price squares q, interpreting it as a square-root price.
func (q Q64x64) Price() decimal.Decimal {
	d := q.Decimal()
	return d.Mul(d)
}

// String formats the raw 128-bit value in base 10.
func (q Q64x64) String() string {
	return q.Value.String()
}
