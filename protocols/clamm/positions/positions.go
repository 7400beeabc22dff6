// Package positions is the position ledger: liquidity held by each owner over
// each tick range, with the fee-growth snapshots that settle earned fees into
// tokens owed.
package positions

import (
	"fmt"
	"maps"
	"slices"

	"github.com/defistate/clamm-engine/protocols/clamm"
	"github.com/defistate/clamm-engine/protocols/clamm/calculator/fixedpoint"
	"github.com/defistate/clamm-engine/protocols/clamm/calculator/sqrtpricemath"
	"github.com/defistate/clamm-engine/protocols/clamm/calculator/tickmath"
	"github.com/defistate/clamm-engine/protocols/clamm/clammerr"
)

// Position is the state kept for one key.
type Position struct {
	Liquidity            fixedpoint.U128
	FeeGrowthInside0Last fixedpoint.Q64x64
	FeeGrowthInside1Last fixedpoint.Q64x64
	TokensOwed0          uint64
	TokensOwed1          uint64
}

// Ledger maps position keys to positions. Records are never removed, so
// owed tokens stay collectable after the liquidity is gone.
type Ledger struct {
	positions map[clamm.PositionKey]*Position
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{positions: make(map[clamm.PositionKey]*Position)}
}

// ValidateRange checks that tickLower < tickUpper, that both are inside the
// tick domain and that both are multiples of tickSpacing.
func ValidateRange(tickLower, tickUpper int32, tickSpacing uint32) error {
	if tickLower >= tickUpper {
		return fmt.Errorf("%w: lower tick %d must be below upper tick %d", clammerr.ErrInvalidRange, tickLower, tickUpper)
	}
	if tickLower < tickmath.MinTick {
		return fmt.Errorf("%w: lower tick %d", clammerr.ErrTickOutOfRange, tickLower)
	}
	if tickUpper > tickmath.MaxTick {
		return fmt.Errorf("%w: upper tick %d", clammerr.ErrTickOutOfRange, tickUpper)
	}
	if tickSpacing == 0 {
		return clammerr.ErrInvalidTickSpacing
	}
	spacing := int32(tickSpacing)
	if tickLower%spacing != 0 || tickUpper%spacing != 0 {
		return fmt.Errorf("%w: ticks %d and %d must be multiples of %d", clammerr.ErrInvalidRange, tickLower, tickUpper, tickSpacing)
	}
	return nil
}

// Get returns a copy of the position at key.
func (l *Ledger) Get(key clamm.PositionKey) (Position, bool) {
	p, ok := l.positions[key]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Len is the number of positions.
func (l *Ledger) Len() int {
	return len(l.positions)
}

// feesOwed is the fee earned by liquidity since the last snapshot. The
// growth difference wraps; tokens owed are truncated to 64 bits and must be
// collected before they overflow.
func feesOwed(liquidity fixedpoint.U128, inside, last fixedpoint.Q64x64) (uint64, error) {
	delta := inside.WrappingSub(last)
	fees, err := fixedpoint.MulDiv(delta.Value, liquidity, fixedpoint.Q64)
	if err != nil {
		return 0, err
	}
	return fees.Lower, nil
}

// settle credits fees accrued since the last touch and refreshes the
// snapshots.
func (p *Position) settle(inside0, inside1 fixedpoint.Q64x64) (uint64, uint64, error) {
	fees0, err := feesOwed(p.Liquidity, inside0, p.FeeGrowthInside0Last)
	if err != nil {
		return 0, 0, err
	}
	fees1, err := feesOwed(p.Liquidity, inside1, p.FeeGrowthInside1Last)
	if err != nil {
		return 0, 0, err
	}
	p.FeeGrowthInside0Last = inside0
	p.FeeGrowthInside1Last = inside1
	p.TokensOwed0 += fees0
	p.TokensOwed1 += fees1
	return fees0, fees1, nil
}

// Mint settles the fees accrued by the position at key, then adds
// liquidityDelta to it, creating the record if needed. It returns the fees
// credited to tokens owed by the settlement. On error the ledger is unchanged.
func (l *Ledger) Mint(key clamm.PositionKey, liquidityDelta fixedpoint.U128, inside0, inside1 fixedpoint.Q64x64) (fees0, fees1 uint64, err error) {
	if liquidityDelta.IsZero() {
		return 0, 0, clammerr.ErrZeroLiquidity
	}

	next, _ := l.Get(key)
	liquidity, err := next.Liquidity.Add(liquidityDelta)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: position liquidity", clammerr.ErrLiquidityOverflow)
	}
	if fees0, fees1, err = next.settle(inside0, inside1); err != nil {
		return 0, 0, err
	}
	next.Liquidity = liquidity

	l.positions[key] = &next
	return fees0, fees1, nil
}

// Burn settles the fees accrued by the position at key, then removes
// liquidity from it. Burning zero only settles fees. The record is kept even
// when its liquidity reaches zero. On error the ledger is unchanged.
func (l *Ledger) Burn(key clamm.PositionKey, liquidity fixedpoint.U128, inside0, inside1 fixedpoint.Q64x64) (fees0, fees1 uint64, err error) {
	next, ok := l.Get(key)
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s [%d, %d)", clammerr.ErrPositionNotFound, key.Owner, key.TickLower, key.TickUpper)
	}
	if liquidity.IsZero() && next.Liquidity.IsZero() {
		return 0, 0, clammerr.ErrZeroLiquidity
	}

	remaining, err := next.Liquidity.Sub(liquidity)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: burning %s from a position holding %s", clammerr.ErrInsufficientLiquidity, liquidity, next.Liquidity)
	}
	if fees0, fees1, err = next.settle(inside0, inside1); err != nil {
		return 0, 0, err
	}
	next.Liquidity = remaining

	l.positions[key] = &next
	return fees0, fees1, nil
}

// Credit adds withdrawn principal to the tokens owed by the position at key.
func (l *Ledger) Credit(key clamm.PositionKey, amount0, amount1 uint64) error {
	p, ok := l.positions[key]
	if !ok {
		return clammerr.ErrPositionNotFound
	}
	owed0, err := fixedpoint.From64(p.TokensOwed0).Add(fixedpoint.From64(amount0))
	if err == nil && owed0.Upper != 0 {
		err = clammerr.ErrOverflow
	}
	if err != nil {
		return fmt.Errorf("%w: tokens owed 0", err)
	}
	owed1, err := fixedpoint.From64(p.TokensOwed1).Add(fixedpoint.From64(amount1))
	if err == nil && owed1.Upper != 0 {
		err = clammerr.ErrOverflow
	}
	if err != nil {
		return fmt.Errorf("%w: tokens owed 1", err)
	}
	p.TokensOwed0 = owed0.Lower
	p.TokensOwed1 = owed1.Lower
	return nil
}

// Collect withdraws up to max0 and max1 of the tokens owed to the position
// at key and returns the amounts withdrawn.
func (l *Ledger) Collect(key clamm.PositionKey, max0, max1 uint64) (uint64, uint64, error) {
	p, ok := l.positions[key]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s [%d, %d)", clammerr.ErrPositionNotFound, key.Owner, key.TickLower, key.TickUpper)
	}
	amount0 := min(max0, p.TokensOwed0)
	amount1 := min(max1, p.TokensOwed1)
	p.TokensOwed0 -= amount0
	p.TokensOwed1 -= amount1
	return amount0, amount1, nil
}

// Snapshot is the saved state of one key.
type Snapshot struct {
	Key      clamm.PositionKey
	Position Position
	Existed  bool
}

// Snapshot captures the position at key so that Restore can undo later
// mutations of it.
func (l *Ledger) Snapshot(key clamm.PositionKey) Snapshot {
	p, ok := l.Get(key)
	return Snapshot{Key: key, Position: p, Existed: ok}
}

// Restore puts back the position captured by s.
func (l *Ledger) Restore(s Snapshot) {
	if !s.Existed {
		delete(l.positions, s.Key)
		return
	}
	p := s.Position
	l.positions[s.Key] = &p
}

// Clone returns a deep copy of l.
func (l *Ledger) Clone() *Ledger {
	c := &Ledger{positions: make(map[clamm.PositionKey]*Position, len(l.positions))}
	for key, p := range l.positions {
		copied := *p
		c.positions[key] = &copied
	}
	return c
}

// Info renders the position at key as a view.
func (l *Ledger) Info(key clamm.PositionKey) (clamm.PositionInfo, bool) {
	p, ok := l.positions[key]
	if !ok {
		return clamm.PositionInfo{}, false
	}
	return toInfo(key, p), true
}

// Infos renders every position as a view, sorted by key.
func (l *Ledger) Infos() []clamm.PositionInfo {
	keys := slices.SortedFunc(maps.Keys(l.positions), clamm.ComparePositionKeys)
	infos := make([]clamm.PositionInfo, 0, len(keys))
	for _, key := range keys {
		infos = append(infos, toInfo(key, l.positions[key]))
	}
	return infos
}

func toInfo(key clamm.PositionKey, p *Position) clamm.PositionInfo {
	return clamm.PositionInfo{
		PositionKey:          key,
		Liquidity:            p.Liquidity,
		FeeGrowthInside0Last: p.FeeGrowthInside0Last,
		FeeGrowthInside1Last: p.FeeGrowthInside1Last,
		TokensOwed0:          p.TokensOwed0,
		TokensOwed1:          p.TokensOwed1,
	}
}

// RequiredAmounts returns the token amounts, rounded up, that back liquidity
// over [tickLower, tickUpper) at the current price. A range below the price
// needs only token1, a range above it only token0, and a range containing it
// both. It fails with ErrInsufficientPrecision when liquidity is too small for
// a token the range needs to be worth at least one unit of it.
func RequiredAmounts(sqrtPrice fixedpoint.Q64x64, tickCurrent, tickLower, tickUpper int32, liquidity fixedpoint.U128) (uint64, uint64, error) {
	up0, up1, err := amounts(sqrtPrice, tickCurrent, tickLower, tickUpper, liquidity, true)
	if err != nil {
		return 0, 0, err
	}
	down0, down1, err := amounts(sqrtPrice, tickCurrent, tickLower, tickUpper, liquidity, false)
	if err != nil {
		return 0, 0, err
	}

	needs0, needs1, err := requiredTokens(sqrtPrice, tickCurrent, tickLower, tickUpper)
	if err != nil {
		return 0, 0, err
	}
	if needs0 && down0 == 0 {
		return 0, 0, fmt.Errorf("%w: token0 for liquidity %s", clammerr.ErrInsufficientPrecision, liquidity)
	}
	if needs1 && down1 == 0 {
		return 0, 0, fmt.Errorf("%w: token1 for liquidity %s", clammerr.ErrInsufficientPrecision, liquidity)
	}
	return up0, up1, nil
}

// WithdrawableAmounts returns the token amounts, rounded down, released by
// removing liquidity from [tickLower, tickUpper) at the current price.
func WithdrawableAmounts(sqrtPrice fixedpoint.Q64x64, tickCurrent, tickLower, tickUpper int32, liquidity fixedpoint.U128) (uint64, uint64, error) {
	return amounts(sqrtPrice, tickCurrent, tickLower, tickUpper, liquidity, false)
}

func requiredTokens(sqrtPrice fixedpoint.Q64x64, tickCurrent, tickLower, tickUpper int32) (bool, bool, error) {
	switch {
	case tickCurrent < tickLower:
		return true, false, nil
	case tickCurrent >= tickUpper:
		return false, true, nil
	}
	sqrtLower, err := tickmath.SqrtPriceAtTick(tickLower)
	if err != nil {
		return false, false, err
	}
	// sitting exactly on the lower bound the range holds no token1 yet
	return true, sqrtPrice.Cmp(sqrtLower) > 0, nil
}

func amounts(sqrtPrice fixedpoint.Q64x64, tickCurrent, tickLower, tickUpper int32, liquidity fixedpoint.U128, roundUp bool) (uint64, uint64, error) {
	sqrtLower, err := tickmath.SqrtPriceAtTick(tickLower)
	if err != nil {
		return 0, 0, err
	}
	sqrtUpper, err := tickmath.SqrtPriceAtTick(tickUpper)
	if err != nil {
		return 0, 0, err
	}

	var amount0, amount1 fixedpoint.U128
	switch {
	case tickCurrent < tickLower:
		amount0, err = sqrtpricemath.GetAmount0Delta(sqrtLower, sqrtUpper, liquidity, roundUp)
	case tickCurrent < tickUpper:
		amount0, err = sqrtpricemath.GetAmount0Delta(sqrtPrice, sqrtUpper, liquidity, roundUp)
		if err == nil {
			amount1, err = sqrtpricemath.GetAmount1Delta(sqrtLower, sqrtPrice, liquidity, roundUp)
		}
	default:
		amount1, err = sqrtpricemath.GetAmount1Delta(sqrtLower, sqrtUpper, liquidity, roundUp)
	}
	if err != nil {
		return 0, 0, err
	}

	a0, err := amount0.Uint64()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: token0 amount %s", clammerr.ErrOverflow, amount0)
	}
	a1, err := amount1.Uint64()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: token1 amount %s", clammerr.ErrOverflow, amount1)
	}
	return a0, a1, nil
}
