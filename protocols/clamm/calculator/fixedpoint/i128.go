package fixedpoint

import (
	"fmt"
	"math"
	"math/big"
	"math/bits"

	"github.com/defistate/clamm-engine/protocols/clamm/clammerr"
)

// I128 is a two's-complement signed 128-bit integer. It carries net liquidity
// and signed liquidity deltas.
type I128 struct {
	Upper uint64
	Lower uint64
}

var (
	// ZeroI128 is 0.
	ZeroI128 = I128{}
	// MaxI128 is 2^127 - 1.
	MaxI128 = I128{Upper: math.MaxInt64, Lower: math.MaxUint64}
	// MinI128 is -2^127, the one value without a positive counterpart.
	MinI128 = I128{Upper: 1 << 63}
)

// I128From64 returns v as an I128.
func I128From64(v int64) I128 {
	if v < 0 {
		return I128{Upper: math.MaxUint64, Lower: uint64(v)}
	}
	return I128{Lower: uint64(v)}
}

// I128FromU128 reinterprets u as a positive I128, failing when u >= 2^127.
func I128FromU128(u U128) (I128, error) {
	if u.Upper>>63 != 0 {
		return I128{}, clammerr.ErrOverflow
	}
	return I128{Upper: u.Upper, Lower: u.Lower}, nil
}

// NegU128 returns -u as an I128, failing when u > 2^127.
func NegU128(u U128) (I128, error) {
	if u.Upper>>63 != 0 && (u.Upper != 1<<63 || u.Lower != 0) {
		return I128{}, clammerr.ErrOverflow
	}
	return I128{Upper: u.Upper, Lower: u.Lower}.negWrap(), nil
}

// I128FromBig converts b, failing outside [MinI128, MaxI128].
func I128FromBig(b *big.Int) (I128, error) {
	if b.Sign() >= 0 {
		u, err := FromBig(b)
		if err != nil {
			return I128{}, err
		}
		return I128FromU128(u)
	}
	u, err := FromBig(new(big.Int).Neg(b))
	if err != nil {
		return I128{}, err
	}
	return NegU128(u)
}

func (x I128) negWrap() I128 {
	lo, carry := bits.Add64(^x.Lower, 1, 0)
	hi, _ := bits.Add64(^x.Upper, 0, carry)
	return I128{Upper: hi, Lower: lo}
}

// Sign returns -1, 0 or +1.
func (x I128) Sign() int {
	switch {
	case x.Upper>>63 != 0:
		return -1
	case x.Upper == 0 && x.Lower == 0:
		return 0
	}
	return 1
}

// IsZero reports whether x == 0.
func (x I128) IsZero() bool {
	return x.Upper == 0 && x.Lower == 0
}

// Neg returns -x. It fails only for MinI128.
func (x I128) Neg() (I128, error) {
	if x == MinI128 {
		return I128{}, clammerr.ErrOverflow
	}
	return x.negWrap(), nil
}

// Abs returns |x| as a U128. It fails only for MinI128.
func (x I128) Abs() (U128, error) {
	if x == MinI128 {
		return U128{}, clammerr.ErrOverflow
	}
	if x.Sign() < 0 {
		n := x.negWrap()
		return U128{Upper: n.Upper, Lower: n.Lower}, nil
	}
	return U128{Upper: x.Upper, Lower: x.Lower}, nil
}

// Add returns x + y.
func (x I128) Add(y I128) (I128, error) {
	lo, carry := bits.Add64(x.Lower, y.Lower, 0)
	hi, _ := bits.Add64(x.Upper, y.Upper, carry)
	sum := I128{Upper: hi, Lower: lo}
	xNeg, yNeg, sumNeg := x.Sign() < 0, y.Sign() < 0, sum.Sign() < 0
	if xNeg == yNeg && sumNeg != xNeg {
		if xNeg {
			return I128{}, clammerr.ErrUnderflow
		}
		return I128{}, clammerr.ErrOverflow
	}
	return sum, nil
}

// Sub returns x - y.
func (x I128) Sub(y I128) (I128, error) {
	if y == MinI128 {
		// x - MinI128 == x + 2^127, representable only for negative x.
		if x.Sign() >= 0 {
			return I128{}, clammerr.ErrOverflow
		}
		lo, carry := bits.Add64(x.Lower, y.Lower, 0)
		hi, _ := bits.Add64(x.Upper, y.Upper, carry)
		return I128{Upper: hi, Lower: lo}, nil
	}
	return x.Add(y.negWrap())
}

// Cmp compares x and y and returns -1, 0 or +1.
func (x I128) Cmp(y I128) int {
	xs, ys := x.Sign() < 0, y.Sign() < 0
	if xs != ys {
		if xs {
			return -1
		}
		return 1
	}
	return U128{Upper: x.Upper, Lower: x.Lower}.Cmp(U128{Upper: y.Upper, Lower: y.Lower})
}

// Big returns x as a new big.Int.
func (x I128) Big() *big.Int {
	if x.Sign() < 0 {
		abs, err := x.Abs()
		if err != nil {
			return new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
		}
		b := abs.Big()
		return b.Neg(b)
	}
	return U128{Upper: x.Upper, Lower: x.Lower}.Big()
}

// String formats x in base 10.
func (x I128) String() string {
	return x.Big().String()
}

// MarshalText encodes x as a base-10 string.
func (x I128) MarshalText() ([]byte, error) {
	return []byte(x.String()), nil
}

// UnmarshalText decodes a base-10 string.
func (x *I128) UnmarshalText(text []byte) error {
	b, ok := new(big.Int).SetString(string(text), 10)
	if !ok {
		return fmt.Errorf("invalid int128 %q", text)
	}
	v, err := I128FromBig(b)
	if err != nil {
		return err
	}
	*x = v
	return nil
}
