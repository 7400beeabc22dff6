package pool

import (
	"fmt"

	"github.com/defistate/clamm-engine/protocols/clamm"
	"github.com/defistate/clamm-engine/protocols/clamm/calculator/fixedpoint"
	"github.com/defistate/clamm-engine/protocols/clamm/calculator/liquiditymath"
	"github.com/defistate/clamm-engine/protocols/clamm/calculator/tickmath"
	"github.com/defistate/clamm-engine/protocols/clamm/clammerr"
	"github.com/defistate/clamm-engine/protocols/clamm/positions"
)

// Mint adds the most liquidity that amount0Desired and amount1Desired can
// back over [tickLower, tickUpper) to the position of recipient. It returns
// the liquidity minted and the token amounts it requires, rounded up.
func (p *Pool) Mint(
	tickLower, tickUpper int32,
	amount0Desired, amount1Desired uint64,
	recipient clamm.Identity,
) (liquidity fixedpoint.U128, amount0, amount1 uint64, err error) {
	if err := p.checkInitialized(); err != nil {
		return fixedpoint.U128{}, 0, 0, err
	}
	if err := positions.ValidateRange(tickLower, tickUpper, p.state.TickSpacing); err != nil {
		return fixedpoint.U128{}, 0, 0, err
	}

	sqrtLower, err := tickmath.SqrtPriceAtTick(tickLower)
	if err != nil {
		return fixedpoint.U128{}, 0, 0, err
	}
	sqrtUpper, err := tickmath.SqrtPriceAtTick(tickUpper)
	if err != nil {
		return fixedpoint.U128{}, 0, 0, err
	}
	liquidity, err = liquiditymath.GetLiquidityForAmounts(
		p.state.SqrtPrice, sqrtLower, sqrtUpper,
		fixedpoint.From64(amount0Desired), fixedpoint.From64(amount1Desired),
	)
	if err != nil {
		return fixedpoint.U128{}, 0, 0, err
	}

	amount0, amount1, err = p.MintLiquidity(tickLower, tickUpper, liquidity, recipient)
	if err != nil {
		return fixedpoint.U128{}, 0, 0, err
	}
	return liquidity, amount0, amount1, nil
}

// MintLiquidity adds exactly liquidity over [tickLower, tickUpper) to the
// position of recipient and returns the token amounts it requires, rounded
// up.
func (p *Pool) MintLiquidity(
	tickLower, tickUpper int32,
	liquidity fixedpoint.U128,
	recipient clamm.Identity,
) (amount0, amount1 uint64, err error) {
	if err := p.checkInitialized(); err != nil {
		return 0, 0, err
	}
	if err := positions.ValidateRange(tickLower, tickUpper, p.state.TickSpacing); err != nil {
		return 0, 0, err
	}
	if liquidity.IsZero() {
		return 0, 0, clammerr.ErrZeroLiquidity
	}
	delta, err := fixedpoint.I128FromU128(liquidity)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s", clammerr.ErrLiquidityOverflow, liquidity)
	}

	amount0, amount1, err = positions.RequiredAmounts(p.state.SqrtPrice, p.state.Tick, tickLower, tickUpper, liquidity)
	if err != nil {
		return 0, 0, err
	}

	j := p.begin()
	defer func() {
		if err != nil {
			p.rollback(j)
		}
	}()

	if err = p.updateTicks(j, tickLower, tickUpper, delta); err != nil {
		return 0, 0, err
	}

	// the position settles against growth that includes any baseline the
	// bounds just took
	inside0, inside1 := p.ticks.FeeGrowthInside(tickLower, tickUpper, p.state.Tick, p.state.FeeGrowthGlobal0, p.state.FeeGrowthGlobal1)
	key := clamm.PositionKey{Owner: recipient, TickLower: tickLower, TickUpper: tickUpper}
	p.touchPosition(j, key)
	if _, _, err = p.positions.Mint(key, liquidity, inside0, inside1); err != nil {
		return 0, 0, err
	}

	if err = p.applyActiveLiquidity(tickLower, tickUpper, delta); err != nil {
		return 0, 0, err
	}
	return amount0, amount1, nil
}

// Burn removes liquidity from the position of owner over [tickLower,
// tickUpper) and credits the released token amounts, rounded down, to its
// tokens owed. Burning zero liquidity only settles the fees the position has
// earned.
func (p *Pool) Burn(
	tickLower, tickUpper int32,
	liquidity fixedpoint.U128,
	owner clamm.Identity,
) (amount0, amount1 uint64, err error) {
	if err := p.checkInitialized(); err != nil {
		return 0, 0, err
	}
	if err := positions.ValidateRange(tickLower, tickUpper, p.state.TickSpacing); err != nil {
		return 0, 0, err
	}
	delta, err := fixedpoint.NegU128(liquidity)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s", clammerr.ErrInsufficientLiquidity, liquidity)
	}

	amount0, amount1, err = positions.WithdrawableAmounts(p.state.SqrtPrice, p.state.Tick, tickLower, tickUpper, liquidity)
	if err != nil {
		return 0, 0, err
	}

	j := p.begin()
	defer func() {
		if err != nil {
			p.rollback(j)
		}
	}()

	// computed before the bounds are updated, since a bound whose gross
	// liquidity drops to zero is removed along with its outside growth
	inside0, inside1 := p.ticks.FeeGrowthInside(tickLower, tickUpper, p.state.Tick, p.state.FeeGrowthGlobal0, p.state.FeeGrowthGlobal1)
	key := clamm.PositionKey{Owner: owner, TickLower: tickLower, TickUpper: tickUpper}
	p.touchPosition(j, key)
	if _, _, err = p.positions.Burn(key, liquidity, inside0, inside1); err != nil {
		return 0, 0, err
	}

	if !liquidity.IsZero() {
		if err = p.updateTicks(j, tickLower, tickUpper, delta); err != nil {
			return 0, 0, err
		}
		if err = p.applyActiveLiquidity(tickLower, tickUpper, delta); err != nil {
			return 0, 0, err
		}
	}

	if err = p.positions.Credit(key, amount0, amount1); err != nil {
		return 0, 0, err
	}
	return amount0, amount1, nil
}

// Collect withdraws up to max0 and max1 of the tokens owed to the position of
// owner over [tickLower, tickUpper).
func (p *Pool) Collect(
	tickLower, tickUpper int32,
	owner clamm.Identity,
	max0, max1 uint64,
) (amount0, amount1 uint64, err error) {
	if err := p.checkInitialized(); err != nil {
		return 0, 0, err
	}
	key := clamm.PositionKey{Owner: owner, TickLower: tickLower, TickUpper: tickUpper}
	return p.positions.Collect(key, max0, max1)
}

// updateTicks applies delta to both bounds of a range and flips the bitmap
// for every bound that changed initialization.
func (p *Pool) updateTicks(j *journal, tickLower, tickUpper int32, delta fixedpoint.I128) error {
	for _, bound := range []struct {
		index int32
		upper bool
	}{
		{tickLower, false},
		{tickUpper, true},
	} {
		p.touchTick(j, bound.index)
		flipped, err := p.ticks.Update(
			bound.index, p.state.Tick, delta, bound.upper,
			p.state.FeeGrowthGlobal0, p.state.FeeGrowthGlobal1,
			p.maxLiquidityPerTick,
		)
		if err != nil {
			return err
		}
		if flipped {
			if err := p.flipTick(j, bound.index); err != nil {
				return err
			}
		}
	}
	return nil
}

// applyActiveLiquidity adds delta to the in-range liquidity when the current
// tick lies inside [tickLower, tickUpper).
func (p *Pool) applyActiveLiquidity(tickLower, tickUpper int32, delta fixedpoint.I128) error {
	if p.state.Tick < tickLower || p.state.Tick >= tickUpper {
		return nil
	}
	liquidity, err := liquiditymath.AddDelta(p.state.Liquidity, delta)
	if err != nil {
		return fmt.Errorf("active liquidity: %w", err)
	}
	p.state.Liquidity = liquidity
	return nil
}
