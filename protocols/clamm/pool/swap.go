package pool

import (
	"fmt"

	"github.com/defistate/clamm-engine/protocols/clamm/calculator/fixedpoint"
	"github.com/defistate/clamm-engine/protocols/clamm/calculator/liquiditymath"
	"github.com/defistate/clamm-engine/protocols/clamm/calculator/swapmath"
	"github.com/defistate/clamm-engine/protocols/clamm/calculator/tickmath"
	"github.com/defistate/clamm-engine/protocols/clamm/clammerr"
)

// SwapParams describes a swap. Amount is the input when ExactInput is set
// and the desired output otherwise. A zero SqrtPriceLimit lets the price move
// as far as the tick domain allows.
type SwapParams struct {
	ZeroForOne     bool              `json:"zeroForOne"`
	ExactInput     bool              `json:"exactInput"`
	Amount         uint64            `json:"amount"`
	SqrtPriceLimit fixedpoint.Q64x64 `json:"sqrtPriceLimit"`
}

// SwapResult is the outcome of a swap. AmountIn includes FeeAmount.
type SwapResult struct {
	AmountIn  uint64            `json:"amountIn"`
	AmountOut uint64            `json:"amountOut"`
	FeeAmount uint64            `json:"feeAmount"`
	SqrtPrice fixedpoint.Q64x64 `json:"sqrtPrice"`
	Tick      int32             `json:"tick"`
	Liquidity fixedpoint.U128   `json:"liquidity"`
	Crossed   []int32           `json:"crossed"`
}

// swapState is the state of a swap as it progresses.
type swapState struct {
	amountSpecifiedRemaining fixedpoint.U128
	amountCalculated         fixedpoint.U128
	feeTotal                 fixedpoint.U128
	sqrtPrice                fixedpoint.Q64x64
	tick                     int32
	liquidity                fixedpoint.U128
	// growth of the input token
	feeGrowthGlobal fixedpoint.Q64x64
	crossed         []int32
}

// Swap trades against the pool, moving the price toward SqrtPriceLimit until
// the amount is filled or the limit is reached.
func (p *Pool) Swap(params SwapParams) (result SwapResult, err error) {
	if err := p.checkInitialized(); err != nil {
		return SwapResult{}, err
	}
	j := p.begin()
	defer func() {
		if err != nil {
			p.rollback(j)
		}
	}()
	return p.swap(j, params)
}

// Quote runs a swap and discards its effects.
func (p *Pool) Quote(params SwapParams) (SwapResult, error) {
	if err := p.checkInitialized(); err != nil {
		return SwapResult{}, err
	}
	j := p.begin()
	defer p.rollback(j)
	return p.swap(j, params)
}

// priceLimit resolves a zero limit and checks that the limit lies strictly
// between the current price and the end of the price domain in the trade
// direction.
func (p *Pool) priceLimit(params SwapParams) (fixedpoint.Q64x64, error) {
	minLimit := fixedpoint.NewQ64x64(tickmath.MinSqrtPrice.Value.WrappingAdd(fixedpoint.OneU128))
	maxLimit := fixedpoint.NewQ64x64(tickmath.MaxSqrtPrice.Value.WrappingSub(fixedpoint.OneU128))

	limit := params.SqrtPriceLimit
	if limit.IsZero() {
		if params.ZeroForOne {
			limit = minLimit
		} else {
			limit = maxLimit
		}
	}

	if params.ZeroForOne {
		if limit.Cmp(p.state.SqrtPrice) >= 0 || limit.Cmp(minLimit) < 0 {
			return limit, fmt.Errorf("%w: %s is not below the price %s", clammerr.ErrPriceLimitInvalid, limit.Value, p.state.SqrtPrice.Value)
		}
	} else {
		if limit.Cmp(p.state.SqrtPrice) <= 0 || limit.Cmp(maxLimit) > 0 {
			return limit, fmt.Errorf("%w: %s is not above the price %s", clammerr.ErrPriceLimitInvalid, limit.Value, p.state.SqrtPrice.Value)
		}
	}
	return limit, nil
}

func (p *Pool) swap(j *journal, params SwapParams) (SwapResult, error) {
	if params.Amount == 0 {
		return SwapResult{}, fmt.Errorf("%w: swap amount", clammerr.ErrZeroInput)
	}
	limit, err := p.priceLimit(params)
	if err != nil {
		return SwapResult{}, err
	}

	zeroForOne := params.ZeroForOne
	state := swapState{
		amountSpecifiedRemaining: fixedpoint.From64(params.Amount),
		sqrtPrice:                p.state.SqrtPrice,
		tick:                     p.state.Tick,
		liquidity:                p.state.Liquidity,
		feeGrowthGlobal:          p.state.FeeGrowthGlobal1,
	}
	if zeroForOne {
		state.feeGrowthGlobal = p.state.FeeGrowthGlobal0
	}

	for !state.amountSpecifiedRemaining.IsZero() && state.sqrtPrice.Cmp(limit) != 0 {
		sqrtPriceStart := state.sqrtPrice

		tickNext, initialized := p.bitmap.NextInitializedTick(state.tick, zeroForOne)
		if !initialized {
			// no liquidity can be left on this side of the price
			return SwapResult{}, fmt.Errorf("%w: no initialized tick beyond %d", clammerr.ErrInsufficientLiquidity, state.tick)
		}

		sqrtPriceNext, err := tickmath.SqrtPriceAtTick(tickNext)
		if err != nil {
			return SwapResult{}, err
		}

		target := sqrtPriceNext
		if (zeroForOne && sqrtPriceNext.Cmp(limit) < 0) || (!zeroForOne && sqrtPriceNext.Cmp(limit) > 0) {
			target = limit
		}

		step, err := swapmath.ComputeSwapStep(
			state.sqrtPrice,
			target,
			state.liquidity,
			state.amountSpecifiedRemaining,
			params.ExactInput,
			p.state.Fee,
		)
		if err != nil {
			return SwapResult{}, err
		}
		state.sqrtPrice = step.SqrtPriceNext

		if err := state.account(step, params.ExactInput); err != nil {
			return SwapResult{}, err
		}

		if !state.liquidity.IsZero() {
			growth, err := fixedpoint.MulDiv(step.FeeAmount, fixedpoint.Q64, state.liquidity)
			if err != nil {
				return SwapResult{}, err
			}
			state.feeGrowthGlobal = state.feeGrowthGlobal.WrappingAdd(fixedpoint.NewQ64x64(growth))
		}

		if state.sqrtPrice.Cmp(sqrtPriceNext) == 0 {
			if err := p.cross(j, &state, tickNext, zeroForOne); err != nil {
				return SwapResult{}, err
			}
			if zeroForOne {
				state.tick = tickNext - 1
			} else {
				state.tick = tickNext
			}
		} else if state.sqrtPrice.Cmp(sqrtPriceStart) != 0 {
			state.tick, err = tickmath.TickAtSqrtPrice(state.sqrtPrice)
			if err != nil {
				return SwapResult{}, err
			}
		}
	}

	result, err := state.result(params)
	if err != nil {
		return SwapResult{}, err
	}

	p.state.SqrtPrice = state.sqrtPrice
	p.state.Tick = state.tick
	p.state.Liquidity = state.liquidity
	if zeroForOne {
		p.state.FeeGrowthGlobal0 = state.feeGrowthGlobal
	} else {
		p.state.FeeGrowthGlobal1 = state.feeGrowthGlobal
	}
	return result, nil
}

// cross moves the price through an initialized tick and applies its net
// liquidity, negated when moving down.
func (p *Pool) cross(j *journal, state *swapState, tick int32, zeroForOne bool) error {
	fg0, fg1 := p.state.FeeGrowthGlobal0, state.feeGrowthGlobal
	if zeroForOne {
		fg0, fg1 = state.feeGrowthGlobal, p.state.FeeGrowthGlobal1
	}

	p.touchTick(j, tick)
	liquidityNet := p.ticks.Cross(tick, fg0, fg1)
	if zeroForOne {
		var err error
		if liquidityNet, err = liquidityNet.Neg(); err != nil {
			return err
		}
	}

	liquidity, err := liquiditymath.AddDelta(state.liquidity, liquidityNet)
	if err != nil {
		return fmt.Errorf("crossing tick %d: %w", tick, err)
	}
	state.liquidity = liquidity
	state.crossed = append(state.crossed, tick)
	return nil
}

// account moves one step's amounts from the remaining amount to the
// calculated one.
func (s *swapState) account(step swapmath.Step, exactInput bool) error {
	paid, err := step.AmountIn.Add(step.FeeAmount)
	if err != nil {
		return err
	}
	if s.feeTotal, err = s.feeTotal.Add(step.FeeAmount); err != nil {
		return err
	}

	if exactInput {
		if s.amountSpecifiedRemaining, err = s.amountSpecifiedRemaining.Sub(paid); err != nil {
			return err
		}
		s.amountCalculated, err = s.amountCalculated.Add(step.AmountOut)
		return err
	}
	if s.amountSpecifiedRemaining, err = s.amountSpecifiedRemaining.Sub(step.AmountOut); err != nil {
		return err
	}
	s.amountCalculated, err = s.amountCalculated.Add(paid)
	return err
}

func (s *swapState) result(params SwapParams) (SwapResult, error) {
	filled := params.Amount - s.amountSpecifiedRemaining.Lower
	calculated, err := s.amountCalculated.Uint64()
	if err != nil {
		return SwapResult{}, fmt.Errorf("%w: swap amount %s", clammerr.ErrOverflow, s.amountCalculated)
	}
	fee, err := s.feeTotal.Uint64()
	if err != nil {
		return SwapResult{}, fmt.Errorf("%w: swap fee %s", clammerr.ErrOverflow, s.feeTotal)
	}

	result := SwapResult{
		FeeAmount: fee,
		SqrtPrice: s.sqrtPrice,
		Tick:      s.tick,
		Liquidity: s.liquidity,
		Crossed:   s.crossed,
	}
	if params.ExactInput {
		result.AmountIn, result.AmountOut = filled, calculated
	} else {
		result.AmountIn, result.AmountOut = calculated, filled
	}
	return result, nil
}
