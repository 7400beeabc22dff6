package swapmath

import (
	"fmt"

	"github.com/defistate/clamm-engine/protocols/clamm/calculator/fixedpoint"
	"github.com/defistate/clamm-engine/protocols/clamm/calculator/sqrtpricemath"
	"github.com/defistate/clamm-engine/protocols/clamm/clammerr"
)

// FeeDenominator is the denominator for fee calculations, representing 100% or 1,000,000 ppm.
const FeeDenominator = 1_000_000

var (
	feeDenominator = fixedpoint.From64(FeeDenominator)

	ErrFeeTooLarge = fmt.Errorf("%w: fee must be below %d ppm", clammerr.ErrInvalidFeeTier, FeeDenominator)
)

// Step is the outcome of one constant-liquidity swap step.
type Step struct {
	SqrtPriceNext fixedpoint.Q64x64
	AmountIn      fixedpoint.U128
	AmountOut     fixedpoint.U128
	FeeAmount     fixedpoint.U128
}

// ComputeSwapStep calculates the result of a swap within a single tick range.
// It determines the next price, the amounts swapped, and the fee taken.
//
// The direction is implied by the prices: the swap is zero-for-one when the
// target is at or below the current price. amountRemaining is an input amount
// when exactIn is set and an output amount otherwise. AmountIn is rounded up,
// AmountOut down and FeeAmount up, so rounding always favours the pool.
func ComputeSwapStep(
	sqrtPriceCurrent fixedpoint.Q64x64,
	sqrtPriceTarget fixedpoint.Q64x64,
	liquidity fixedpoint.U128,
	amountRemaining fixedpoint.U128,
	exactIn bool,
	feePips uint32,
) (Step, error) {
	if feePips >= FeeDenominator {
		return Step{}, ErrFeeTooLarge
	}
	fee := fixedpoint.From64(uint64(feePips))
	feeComplement := fixedpoint.From64(FeeDenominator - uint64(feePips))
	zeroForOne := sqrtPriceCurrent.Cmp(sqrtPriceTarget) >= 0

	var (
		step                   Step
		err                    error
		amountRemainingLessFee fixedpoint.U128
	)

	if exactIn {
		// --- Logic for an exact-input swap ---
		amountRemainingLessFee, err = fixedpoint.MulDiv(amountRemaining, feeComplement, feeDenominator)
		if err != nil {
			return Step{}, err
		}

		if zeroForOne {
			step.AmountIn, err = sqrtpricemath.GetAmount0Delta(sqrtPriceTarget, sqrtPriceCurrent, liquidity, true)
		} else {
			step.AmountIn, err = sqrtpricemath.GetAmount1Delta(sqrtPriceCurrent, sqrtPriceTarget, liquidity, true)
		}
		// an unrepresentable amount to reach the target means the target is out of reach
		if err == nil && amountRemainingLessFee.Cmp(step.AmountIn) >= 0 {
			step.SqrtPriceNext = sqrtPriceTarget
		} else {
			step.SqrtPriceNext, err = sqrtpricemath.GetNextSqrtPriceFromInput(sqrtPriceCurrent, liquidity, amountRemainingLessFee, zeroForOne)
			if err != nil {
				return Step{}, err
			}
		}
	} else {
		// --- Logic for an exact-output swap ---
		if zeroForOne {
			step.AmountOut, err = sqrtpricemath.GetAmount1Delta(sqrtPriceTarget, sqrtPriceCurrent, liquidity, false)
		} else {
			step.AmountOut, err = sqrtpricemath.GetAmount0Delta(sqrtPriceCurrent, sqrtPriceTarget, liquidity, false)
		}

		if err == nil && amountRemaining.Cmp(step.AmountOut) >= 0 {
			step.SqrtPriceNext = sqrtPriceTarget
		} else {
			step.SqrtPriceNext, err = sqrtpricemath.GetNextSqrtPriceFromOutput(sqrtPriceCurrent, liquidity, amountRemaining, zeroForOne)
			if err != nil {
				return Step{}, err
			}
		}
	}

	max := sqrtPriceTarget.Cmp(step.SqrtPriceNext) == 0

	// --- Recalculate amounts based on the actual price movement ---
	if zeroForOne {
		if !(max && exactIn) {
			if step.AmountIn, err = sqrtpricemath.GetAmount0Delta(step.SqrtPriceNext, sqrtPriceCurrent, liquidity, true); err != nil {
				return Step{}, err
			}
		}
		if !(max && !exactIn) {
			if step.AmountOut, err = sqrtpricemath.GetAmount1Delta(step.SqrtPriceNext, sqrtPriceCurrent, liquidity, false); err != nil {
				return Step{}, err
			}
		}
	} else {
		if !(max && exactIn) {
			if step.AmountIn, err = sqrtpricemath.GetAmount1Delta(sqrtPriceCurrent, step.SqrtPriceNext, liquidity, true); err != nil {
				return Step{}, err
			}
		}
		if !(max && !exactIn) {
			if step.AmountOut, err = sqrtpricemath.GetAmount0Delta(sqrtPriceCurrent, step.SqrtPriceNext, liquidity, false); err != nil {
				return Step{}, err
			}
		}
	}

	// --- Final Adjustments ---
	if !exactIn && step.AmountOut.Cmp(amountRemaining) > 0 {
		step.AmountOut = amountRemaining
	}

	if exactIn && !max {
		// If we didn't reach the target, the fee is the leftover input amount.
		if step.FeeAmount, err = amountRemaining.Sub(step.AmountIn); err != nil {
			return Step{}, err
		}
	} else {
		// Otherwise, calculate the fee based on the actual amountIn.
		if step.FeeAmount, err = fixedpoint.MulDivRoundingUp(step.AmountIn, fee, feeComplement); err != nil {
			return Step{}, err
		}
	}

	return step, nil
}
