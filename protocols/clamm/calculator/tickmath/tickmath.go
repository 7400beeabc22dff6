package tickmath

import (
	"math/big"
	"sync"

	"github.com/defistate/clamm-engine/protocols/clamm/calculator/bitmath"
	"github.com/defistate/clamm-engine/protocols/clamm/calculator/fixedpoint"
	"github.com/defistate/clamm-engine/protocols/clamm/clammerr"
	"github.com/holiman/uint256"
)

const (
	// MinTick is the minimum tick that may be passed to SqrtPriceAtTick.
	MinTick int32 = -443636
	// MaxTick is the maximum tick that may be passed to SqrtPriceAtTick.
	// It is the largest tick whose sqrt price keeps a 32-bit integer part.
	MaxTick int32 = 443636

	fractionBits = 64
)

var (
	// MinSqrtPrice is SqrtPriceAtTick(MinTick).
	MinSqrtPrice = fixedpoint.NewQ64x64(fixedpoint.From64(4295048016))
	// MaxSqrtPrice is SqrtPriceAtTick(MaxTick).
	MaxSqrtPrice = fixedpoint.NewQ64x64(fixedpoint.U128{Upper: 0xfffec4b1, Lower: 0x35bb7f32380ea83e})

	// logSqrt10001 is log2(sqrt(1.0001)) in Q0.128.
	logSqrt10001 = uint256.MustFromBig(fromHex("0x4ba28e9410862c1ddfb93cffc4e38"))

	// one in Q1.127, the seed of the exponent chain.
	oneQ127 = new(uint256.Int).Lsh(uint256.NewInt(1), 127)

	// logOne is log2(2^64), the binary log of a sqrt price of exactly 1.0.
	logOne = fixedpoint.Q64x64FromInt(fractionBits)

	// exp2Constants[k-1] is 2^(2^-k) in Q1.127. SqrtPriceAtTick multiplies one
	// in for every set bit of the fractional exponent, most significant first.
	exp2Constants = [fractionBits]*uint256.Int{
		uint256.MustFromBig(fromHex("0xb504f333f9de6484597d89b3754abe9f")), // 2^(2^-1)
		uint256.MustFromBig(fromHex("0x9837f0518db8a96f46ad23182e42f6f6")), // 2^(2^-2)
		uint256.MustFromBig(fromHex("0x8b95c1e3ea8bd6e6fbe4628758a53c90")), // 2^(2^-3)
		uint256.MustFromBig(fromHex("0x85aac367cc487b14c5c95b8c2154c1b2")), // 2^(2^-4)
		uint256.MustFromBig(fromHex("0x82cd8698ac2ba1d73e2a475b46520bff")), // 2^(2^-5)
		uint256.MustFromBig(fromHex("0x8164d1f3bc0307737be56527bd14def4")), // 2^(2^-6)
		uint256.MustFromBig(fromHex("0x80b1ed4fd999ab6c25335719b6e6fd20")), // 2^(2^-7)
		uint256.MustFromBig(fromHex("0x8058d7d2d5e5f6b094d589f608ee4aa2")), // 2^(2^-8)
		uint256.MustFromBig(fromHex("0x802c6436d0e04f50ff8ce94a6797b3ce")), // 2^(2^-9)
		uint256.MustFromBig(fromHex("0x8016302f174676283690dfe44d11d008")), // 2^(2^-10)
		uint256.MustFromBig(fromHex("0x800b179c82028fd0945e54e2ae18f2f0")), // 2^(2^-11)
		uint256.MustFromBig(fromHex("0x80058baf7fee3b5d1c718b38e549cb93")), // 2^(2^-12)
		uint256.MustFromBig(fromHex("0x8002c5d00fdcfcb6b6566a58c048be1f")), // 2^(2^-13)
		uint256.MustFromBig(fromHex("0x800162e61bed4a48e84c2e1a463473d9")), // 2^(2^-14)
		uint256.MustFromBig(fromHex("0x8000b17292f702a3aa22beacca949013")), // 2^(2^-15)
		uint256.MustFromBig(fromHex("0x800058b92abbae02030c5fa5256f41fe")), // 2^(2^-16)
		uint256.MustFromBig(fromHex("0x80002c5c8dade4d71776c0f4dbea67d6")), // 2^(2^-17)
		uint256.MustFromBig(fromHex("0x8000162e44eaf636526be456600bdbe4")), // 2^(2^-18)
		uint256.MustFromBig(fromHex("0x80000b1721fa7c188307016c1cd4e8b6")), // 2^(2^-19)
		uint256.MustFromBig(fromHex("0x8000058b90de7e4cecfc487503488bb1")), // 2^(2^-20)
		uint256.MustFromBig(fromHex("0x800002c5c8678f36cbfce50a6de60b14")), // 2^(2^-21)
		uint256.MustFromBig(fromHex("0x80000162e431db9f80b2347b5d62e516")), // 2^(2^-22)
		uint256.MustFromBig(fromHex("0x800000b1721872d0c7b08cf1e0114152")), // 2^(2^-23)
		uint256.MustFromBig(fromHex("0x80000058b90c1aa8a5c3736cb77e8dff")), // 2^(2^-24)
		uint256.MustFromBig(fromHex("0x8000002c5c8605a4635f2efc2362d978")), // 2^(2^-25)
		uint256.MustFromBig(fromHex("0x800000162e4300e635cf4a109e3939bd")), // 2^(2^-26)
		uint256.MustFromBig(fromHex("0x8000000b17217ff81bef9c551590cf83")), // 2^(2^-27)
		uint256.MustFromBig(fromHex("0x800000058b90bfdd4e39cd52c0cfa27c")), // 2^(2^-28)
		uint256.MustFromBig(fromHex("0x80000002c5c85fe6f72d669e0e76e411")), // 2^(2^-29)
		uint256.MustFromBig(fromHex("0x8000000162e42ff18f9ad35186d0df28")), // 2^(2^-30)
		uint256.MustFromBig(fromHex("0x80000000b17217f84cce71aa0dcfffe7")), // 2^(2^-31)
		uint256.MustFromBig(fromHex("0x8000000058b90bfc07a77ad56ed22aaa")), // 2^(2^-32)
		uint256.MustFromBig(fromHex("0x800000002c5c85fdfc23cdead40da8d6")), // 2^(2^-33)
		uint256.MustFromBig(fromHex("0x80000000162e42fefc25eb1571853a66")), // 2^(2^-34)
		uint256.MustFromBig(fromHex("0x800000000b17217f7d97f692baacded5")), // 2^(2^-35)
		uint256.MustFromBig(fromHex("0x80000000058b90bfbead3b8b5dd254d7")), // 2^(2^-36)
		uint256.MustFromBig(fromHex("0x8000000002c5c85fdf4eedd62f084e67")), // 2^(2^-37)
		uint256.MustFromBig(fromHex("0x800000000162e42fefa58aef378bf586")), // 2^(2^-38)
		uint256.MustFromBig(fromHex("0x8000000000b17217f7d24a78a3c7ef02")), // 2^(2^-39)
		uint256.MustFromBig(fromHex("0x800000000058b90bfbe9067c93e474a6")), // 2^(2^-40)
		uint256.MustFromBig(fromHex("0x80000000002c5c85fdf47b8e5a72599f")), // 2^(2^-41)
		uint256.MustFromBig(fromHex("0x8000000000162e42fefa3bdb315934a2")), // 2^(2^-42)
		uint256.MustFromBig(fromHex("0x80000000000b17217f7d1d7299b49c46")), // 2^(2^-43)
		uint256.MustFromBig(fromHex("0x8000000000058b90bfbe8e9a8d1c4ea0")), // 2^(2^-44)
		uint256.MustFromBig(fromHex("0x800000000002c5c85fdf4745969ea76f")), // 2^(2^-45)
		uint256.MustFromBig(fromHex("0x80000000000162e42fefa3a0df5373bf")), // 2^(2^-46)
		uint256.MustFromBig(fromHex("0x800000000000b17217f7d1cff4aac1e1")), // 2^(2^-47)
		uint256.MustFromBig(fromHex("0x80000000000058b90bfbe8e7db95a2f1")), // 2^(2^-48)
		uint256.MustFromBig(fromHex("0x8000000000002c5c85fdf473e61ae1f8")), // 2^(2^-49)
		uint256.MustFromBig(fromHex("0x800000000000162e42fefa39f121751c")), // 2^(2^-50)
		uint256.MustFromBig(fromHex("0x8000000000000b17217f7d1cf815bb96")), // 2^(2^-51)
		uint256.MustFromBig(fromHex("0x800000000000058b90bfbe8e7bec1e0d")), // 2^(2^-52)
		uint256.MustFromBig(fromHex("0x80000000000002c5c85fdf473dee5f17")), // 2^(2^-53)
		uint256.MustFromBig(fromHex("0x8000000000000162e42fefa39ef5438f")), // 2^(2^-54)
		uint256.MustFromBig(fromHex("0x80000000000000b17217f7d1cf7a26c8")), // 2^(2^-55)
		uint256.MustFromBig(fromHex("0x8000000000000058b90bfbe8e7bcf4a4")), // 2^(2^-56)
		uint256.MustFromBig(fromHex("0x800000000000002c5c85fdf473de72a2")), // 2^(2^-57)
		uint256.MustFromBig(fromHex("0x80000000000000162e42fefa39ef3765")), // 2^(2^-58)
		uint256.MustFromBig(fromHex("0x800000000000000b17217f7d1cf79b37")), // 2^(2^-59)
		uint256.MustFromBig(fromHex("0x80000000000000058b90bfbe8e7bcd7d")), // 2^(2^-60)
		uint256.MustFromBig(fromHex("0x8000000000000002c5c85fdf473de6b6")), // 2^(2^-61)
		uint256.MustFromBig(fromHex("0x800000000000000162e42fefa39ef359")), // 2^(2^-62)
		uint256.MustFromBig(fromHex("0x8000000000000000b17217f7d1cf79ac")), // 2^(2^-63)
		uint256.MustFromBig(fromHex("0x800000000000000058b90bfbe8e7bcd6")), // 2^(2^-64)
	}
)

// tickMath holds reusable uint256 objects to avoid memory allocations.
type tickMath struct {
	x     *uint256.Int
	ratio *uint256.Int
	rem   *uint256.Int
}

// pool manages a pool of tickMath objects for safe concurrent use.
var pool = sync.Pool{
	New: func() any {
		return &tickMath{
			x:     new(uint256.Int),
			ratio: new(uint256.Int),
			rem:   new(uint256.Int),
		}
	},
}

// SqrtPriceAtTick calculates sqrt(1.0001^tick) in Q64.64.
//
// The exponent |tick| * log2(sqrt(1.0001)) is split into an integer part n and
// 64 fractional bits. 2^fraction is built in Q1.127 from the exp2 constants,
// then shifted by n. Negative ticks take the reciprocal, rounded down.
func SqrtPriceAtTick(tick int32) (fixedpoint.Q64x64, error) {
	if tick < MinTick || tick > MaxTick {
		return fixedpoint.Q64x64{}, clammerr.ErrTickOutOfRange
	}

	tm := pool.Get().(*tickMath)
	defer pool.Put(tm)

	absTick := int64(tick)
	if absTick < 0 {
		absTick = -absTick
	}

	tm.x.SetUint64(uint64(absTick))
	tm.x.Mul(tm.x, logSqrt10001)

	// the integer part never exceeds 31 inside the tick domain
	n := uint(tm.rem.Rsh(tm.x, 128).Uint64())
	fraction := tm.x.Rsh(tm.x, fractionBits).Uint64()

	tm.ratio.Set(oneQ127)
	for k := 1; k <= fractionBits; k++ {
		if fraction&(1<<uint(fractionBits-k)) != 0 {
			tm.ratio.Mul(tm.ratio, exp2Constants[k-1]).Rsh(tm.ratio, 127)
		}
	}

	if tick >= 0 {
		tm.ratio.Rsh(tm.ratio, 63-n)
	} else {
		tm.rem.Lsh(tm.rem.SetOne(), 191-n)
		tm.ratio.Div(tm.rem, tm.ratio)
	}

	v, err := fixedpoint.FromUint256(tm.ratio)
	if err != nil {
		return fixedpoint.Q64x64{}, err
	}
	return fixedpoint.NewQ64x64(v), nil
}

// TickAtSqrtPrice returns the greatest tick t such that SqrtPriceAtTick(t) <= sqrtPrice.
//
// The estimate (log2(sqrtPrice) - 64) / log2(sqrt(1.0001)) is within one tick
// of the answer; it is then corrected against SqrtPriceAtTick so the result
// round-trips exactly.
func TickAtSqrtPrice(sqrtPrice fixedpoint.Q64x64) (int32, error) {
	if sqrtPrice.Cmp(MinSqrtPrice) < 0 || sqrtPrice.Cmp(MaxSqrtPrice) > 0 {
		return 0, clammerr.ErrPriceOutOfRange
	}

	lg, err := bitmath.BinaryLog2(sqrtPrice.Value)
	if err != nil {
		return 0, err
	}
	d, negative := fixedpoint.AbsDiffQ64x64(lg, logOne)

	tm := pool.Get().(*tickMath)
	defer pool.Put(tm)

	tm.x.Lsh(d.Value.Uint256(), fractionBits)
	tm.ratio.DivMod(tm.x, logSqrt10001, tm.rem)
	estimate := int64(tm.ratio.Uint64())
	if negative {
		estimate = -estimate
		if !tm.rem.IsZero() {
			estimate--
		}
	}
	tick := int32(max(int64(MinTick), min(int64(MaxTick), estimate)))

	for tick > MinTick {
		p, err := SqrtPriceAtTick(tick)
		if err != nil {
			return 0, err
		}
		if p.Cmp(sqrtPrice) <= 0 {
			break
		}
		tick--
	}
	for tick < MaxTick {
		p, err := SqrtPriceAtTick(tick + 1)
		if err != nil {
			return 0, err
		}
		if p.Cmp(sqrtPrice) > 0 {
			break
		}
		tick++
	}
	return tick, nil
}

// MinUsableTick is the lowest multiple of tickSpacing inside the tick domain.
func MinUsableTick(tickSpacing uint32) int32 {
	return -MaxUsableTick(tickSpacing)
}

// MaxUsableTick is the highest multiple of tickSpacing inside the tick domain.
func MaxUsableTick(tickSpacing uint32) int32 {
	s := int32(tickSpacing)
	return MaxTick / s * s
}

// MaxLiquidityPerTick divides the U128 range evenly between every usable
// tick, so that the sum of gross liquidity can never overflow.
func MaxLiquidityPerTick(tickSpacing uint32) (fixedpoint.U128, error) {
	if tickSpacing == 0 || tickSpacing > uint32(MaxTick) {
		return fixedpoint.U128{}, clammerr.ErrInvalidTickSpacing
	}
	numTicks := uint64((MaxUsableTick(tickSpacing)-MinUsableTick(tickSpacing))/int32(tickSpacing)) + 1
	return fixedpoint.FromUint128(fixedpoint.MaxU128.Uint128().Div64(numTicks)), nil
}

// Helper to create a big.Int from a hex string.
func fromHex(s string) *big.Int {
	n, _ := new(big.Int).SetString(s[2:], 16)
	return n
}
