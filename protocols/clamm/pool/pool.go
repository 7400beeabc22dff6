// Package pool is the concentrated-liquidity pool state machine. A pool
// starts uninitialized, becomes active on Init, and from then on accepts
// mints, burns, collects and swaps. Every operation is all-or-nothing.
//
// A Pool is not safe for concurrent use. The system package serializes every call.
package pool

import (
	"fmt"
	"slices"

	"github.com/defistate/clamm-engine/protocols/clamm"
	"github.com/defistate/clamm-engine/protocols/clamm/calculator/fixedpoint"
	"github.com/defistate/clamm-engine/protocols/clamm/calculator/tickbitmap"
	"github.com/defistate/clamm-engine/protocols/clamm/calculator/tickmath"
	"github.com/defistate/clamm-engine/protocols/clamm/clammerr"
	"github.com/defistate/clamm-engine/protocols/clamm/positions"
	"github.com/defistate/clamm-engine/protocols/clamm/ticks"
)

// FeeTiers are the supported swap fees in hundredths of a basis point.
var FeeTiers = []uint32{100, 500, 3000, 10000}

// InitParams configures a pool.
type InitParams struct {
	Token0      clamm.TokenID     `json:"token0"`
	Token1      clamm.TokenID     `json:"token1"`
	Fee         uint32            `json:"fee"`
	SqrtPrice   fixedpoint.Q64x64 `json:"sqrtPrice"`
	TickSpacing uint32            `json:"tickSpacing"`
}

// Pool holds the state of one pool.
type Pool struct {
	state               clamm.PoolViewMinimal
	maxLiquidityPerTick fixedpoint.U128

	ticks     *ticks.Registry
	bitmap    *tickbitmap.TickBitmap
	positions *positions.Ledger
}

// New returns an uninitialized pool.
func New() *Pool {
	return &Pool{
		ticks:     ticks.NewRegistry(),
		positions: positions.NewLedger(),
	}
}

// Init moves the pool to the active state at the given price.
func (p *Pool) Init(params InitParams) error {
	if p.state.Initialized {
		return clammerr.ErrAlreadyInitialized
	}
	if params.Token0 == params.Token1 {
		return fmt.Errorf("%w: token0 and token1 are both %s", clammerr.ErrInvalidTokenPair, params.Token0.Hex())
	}
	if !slices.Contains(FeeTiers, params.Fee) {
		return fmt.Errorf("%w: %d is not one of %v", clammerr.ErrInvalidFeeTier, params.Fee, FeeTiers)
	}
	maxLiquidity, err := tickmath.MaxLiquidityPerTick(params.TickSpacing)
	if err != nil {
		return fmt.Errorf("%w: %d", err, params.TickSpacing)
	}
	bitmap, err := tickbitmap.New(params.TickSpacing)
	if err != nil {
		return err
	}
	tick, err := tickmath.TickAtSqrtPrice(params.SqrtPrice)
	if err != nil {
		return fmt.Errorf("%w: %s", err, params.SqrtPrice.Value)
	}

	p.state = clamm.PoolViewMinimal{
		Initialized: true,
		Token0:      params.Token0,
		Token1:      params.Token1,
		Fee:         params.Fee,
		TickSpacing: params.TickSpacing,
		Tick:        tick,
		SqrtPrice:   params.SqrtPrice,
	}
	p.maxLiquidityPerTick = maxLiquidity
	p.bitmap = bitmap
	return nil
}

// State returns the scalar state of the pool.
func (p *Pool) State() clamm.PoolViewMinimal {
	return p.state
}

// MaxLiquidityPerTick is the cap on the gross liquidity of any tick.
func (p *Pool) MaxLiquidityPerTick() fixedpoint.U128 {
	return p.maxLiquidityPerTick
}

// Tick returns the initialized tick at index.
func (p *Pool) Tick(index int32) (clamm.TickInfo, bool) {
	return p.ticks.Info(index)
}

// Position returns the position at key.
func (p *Pool) Position(key clamm.PositionKey) (clamm.PositionInfo, bool) {
	return p.positions.Info(key)
}

// View returns the full state of the pool.
func (p *Pool) View() clamm.PoolView {
	return clamm.PoolView{
		PoolViewMinimal: p.state,
		Ticks:           p.ticks.Infos(),
		Positions:       p.positions.Infos(),
	}
}

// Clone returns a deep copy of p.
func (p *Pool) Clone() *Pool {
	c := &Pool{
		state:               p.state,
		maxLiquidityPerTick: p.maxLiquidityPerTick,
		ticks:               p.ticks.Clone(),
		positions:           p.positions.Clone(),
	}
	if p.bitmap != nil {
		c.bitmap = p.bitmap.Clone()
	}
	return c
}

func (p *Pool) checkInitialized() error {
	if !p.state.Initialized {
		return clammerr.ErrNotInitialized
	}
	return nil
}
