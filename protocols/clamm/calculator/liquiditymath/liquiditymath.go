package liquiditymath

import (
	"fmt"

	"github.com/defistate/clamm-engine/protocols/clamm/calculator/fixedpoint"
	"github.com/defistate/clamm-engine/protocols/clamm/clammerr"
)

var (
	ErrLiquidityOverflow  = clammerr.ErrLiquidityOverflow
	ErrLiquidityUnderflow = fmt.Errorf("%w: liquidity underflow", clammerr.ErrUnderflow)
)

// AddDelta adds a signed liquidity delta to an unsigned liquidity value,
// returning an error if the operation results in an overflow or underflow.
func AddDelta(x fixedpoint.U128, y fixedpoint.I128) (fixedpoint.U128, error) {
	abs, err := y.Abs()
	if err != nil {
		return fixedpoint.U128{}, ErrLiquidityUnderflow
	}

	if y.Sign() < 0 {
		z, err := x.Sub(abs)
		if err != nil {
			return fixedpoint.U128{}, ErrLiquidityUnderflow
		}
		return z, nil
	}

	z, err := x.Add(abs)
	if err != nil {
		return fixedpoint.U128{}, ErrLiquidityOverflow
	}
	return z, nil
}

// GetLiquidityForAmount0 returns amount0 * sqrtA * sqrtB / (sqrtB - sqrtA),
// the liquidity that amount0 of token0 provides over [sqrtA, sqrtB].
func GetLiquidityForAmount0(sqrtA, sqrtB fixedpoint.Q64x64, amount0 fixedpoint.U128) (fixedpoint.U128, error) {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	width, err := sqrtB.Value.Sub(sqrtA.Value)
	if err != nil || width.IsZero() {
		return fixedpoint.U128{}, clammerr.ErrInvalidRange
	}
	intermediate, err := fixedpoint.MulDiv(sqrtA.Value, sqrtB.Value, fixedpoint.Q64)
	if err != nil {
		return fixedpoint.U128{}, err
	}
	return fixedpoint.MulDiv(amount0, intermediate, width)
}

// GetLiquidityForAmount1 returns amount1 / (sqrtB - sqrtA), the liquidity that
// amount1 of token1 provides over [sqrtA, sqrtB].
func GetLiquidityForAmount1(sqrtA, sqrtB fixedpoint.Q64x64, amount1 fixedpoint.U128) (fixedpoint.U128, error) {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	width, err := sqrtB.Value.Sub(sqrtA.Value)
	if err != nil || width.IsZero() {
		return fixedpoint.U128{}, clammerr.ErrInvalidRange
	}
	return fixedpoint.MulDiv(amount1, fixedpoint.Q64, width)
}

// GetLiquidityForAmounts returns the largest liquidity that amount0 and
// amount1 can back over [sqrtA, sqrtB] at the current price sqrtP. Below the
// range only token0 counts, above it only token1, and inside it the smaller
// of the two implied liquidities.
func GetLiquidityForAmounts(sqrtP, sqrtA, sqrtB fixedpoint.Q64x64, amount0, amount1 fixedpoint.U128) (fixedpoint.U128, error) {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}

	switch {
	case sqrtP.Cmp(sqrtA) <= 0:
		return GetLiquidityForAmount0(sqrtA, sqrtB, amount0)
	case sqrtP.Cmp(sqrtB) < 0:
		liquidity0, err := GetLiquidityForAmount0(sqrtP, sqrtB, amount0)
		if err != nil {
			return fixedpoint.U128{}, err
		}
		liquidity1, err := GetLiquidityForAmount1(sqrtA, sqrtP, amount1)
		if err != nil {
			return fixedpoint.U128{}, err
		}
		if liquidity0.Cmp(liquidity1) < 0 {
			return liquidity0, nil
		}
		return liquidity1, nil
	default:
		return GetLiquidityForAmount1(sqrtA, sqrtB, amount1)
	}
}
