// Package ticks is the tick registry of a pool: per-tick gross and net
// liquidity plus the fee-growth-outside snapshots that make fee growth inside
// any range an O(1) query.
package ticks

import (
	"fmt"
	"maps"
	"slices"

	"github.com/defistate/clamm-engine/protocols/clamm"
	"github.com/defistate/clamm-engine/protocols/clamm/calculator/fixedpoint"
	"github.com/defistate/clamm-engine/protocols/clamm/calculator/liquiditymath"
	"github.com/defistate/clamm-engine/protocols/clamm/clammerr"
)

// Tick is the state kept for one tick index.
type Tick struct {
	LiquidityGross    fixedpoint.U128
	LiquidityNet      fixedpoint.I128
	FeeGrowthOutside0 fixedpoint.Q64x64
	FeeGrowthOutside1 fixedpoint.Q64x64
	Initialized       bool
}

// Registry maps tick indices to their state. It is not safe for concurrent
// use; the pool serializes every call.
type Registry struct {
	ticks map[int32]*Tick
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ticks: make(map[int32]*Tick)}
}

// GetOrInit returns the entry for index, inserting a zeroed uninitialized
// entry when there is none.
func (r *Registry) GetOrInit(index int32) *Tick {
	t, ok := r.ticks[index]
	if !ok {
		t = &Tick{}
		r.ticks[index] = t
	}
	return t
}

// Get returns a copy of the entry for index.
func (r *Registry) Get(index int32) (Tick, bool) {
	t, ok := r.ticks[index]
	if !ok {
		return Tick{}, false
	}
	return *t, true
}

// Len is the number of entries.
func (r *Registry) Len() int {
	return len(r.ticks)
}

// Update applies liquidityDelta to the tick at index as the lower (upper ==
// false) or upper bound of a position and reports whether the tick flipped
// between initialized and uninitialized.
//
// Net liquidity is added for a lower bound and subtracted for an upper bound,
// since crossing upward enters a range at its lower tick and leaves it at its
// upper tick. A tick that becomes initialized takes the global fee growth as
// its outside baseline when it is at or below tickCurrent. A tick whose gross
// liquidity returns to zero is removed. On error the registry is unchanged.
func (r *Registry) Update(
	index int32,
	tickCurrent int32,
	liquidityDelta fixedpoint.I128,
	upper bool,
	feeGrowthGlobal0 fixedpoint.Q64x64,
	feeGrowthGlobal1 fixedpoint.Q64x64,
	maxLiquidity fixedpoint.U128,
) (flipped bool, err error) {
	current, _ := r.Get(index)

	grossAfter, err := liquiditymath.AddDelta(current.LiquidityGross, liquidityDelta)
	if err != nil {
		return false, err
	}
	if grossAfter.Cmp(maxLiquidity) > 0 {
		return false, fmt.Errorf("%w: tick %d would hold %s, cap is %s", clammerr.ErrLiquidityOverflow, index, grossAfter, maxLiquidity)
	}

	var netAfter fixedpoint.I128
	if upper {
		netAfter, err = current.LiquidityNet.Sub(liquidityDelta)
	} else {
		netAfter, err = current.LiquidityNet.Add(liquidityDelta)
	}
	if err != nil {
		return false, fmt.Errorf("%w: net liquidity of tick %d: %v", clammerr.ErrLiquidityOverflow, index, err)
	}

	flipped = grossAfter.IsZero() != current.LiquidityGross.IsZero()

	if grossAfter.IsZero() {
		r.Clear(index)
		return flipped, nil
	}

	t := r.GetOrInit(index)
	if current.LiquidityGross.IsZero() {
		// by convention all growth before a tick was initialized happened below it
		if index <= tickCurrent {
			t.FeeGrowthOutside0 = feeGrowthGlobal0
			t.FeeGrowthOutside1 = feeGrowthGlobal1
		}
		t.Initialized = true
	}
	t.LiquidityGross = grossAfter
	t.LiquidityNet = netAfter
	return flipped, nil
}

// Clear removes the entry for index, leaving it uninitialized.
func (r *Registry) Clear(index int32) {
	delete(r.ticks, index)
}

// Cross transitions to the far side of the tick at index while the price
// moves through it, flipping its outside fee growth, and returns the net
// liquidity to apply when crossing from left to right.
func (r *Registry) Cross(index int32, feeGrowthGlobal0, feeGrowthGlobal1 fixedpoint.Q64x64) fixedpoint.I128 {
	t := r.GetOrInit(index)
	t.FeeGrowthOutside0 = feeGrowthGlobal0.WrappingSub(t.FeeGrowthOutside0)
	t.FeeGrowthOutside1 = feeGrowthGlobal1.WrappingSub(t.FeeGrowthOutside1)
	return t.LiquidityNet
}

// FeeGrowthInside returns the fee growth per unit of liquidity accrued
// between tickLower and tickUpper. All arithmetic wraps; only differences of
// the result are meaningful.
func (r *Registry) FeeGrowthInside(
	tickLower, tickUpper, tickCurrent int32,
	feeGrowthGlobal0, feeGrowthGlobal1 fixedpoint.Q64x64,
) (fixedpoint.Q64x64, fixedpoint.Q64x64) {
	lower, _ := r.Get(tickLower)
	upper, _ := r.Get(tickUpper)

	// calculate fee growth below
	var below0, below1 fixedpoint.Q64x64
	if tickCurrent >= tickLower {
		below0, below1 = lower.FeeGrowthOutside0, lower.FeeGrowthOutside1
	} else {
		below0 = feeGrowthGlobal0.WrappingSub(lower.FeeGrowthOutside0)
		below1 = feeGrowthGlobal1.WrappingSub(lower.FeeGrowthOutside1)
	}

	// calculate fee growth above
	var above0, above1 fixedpoint.Q64x64
	if tickCurrent < tickUpper {
		above0, above1 = upper.FeeGrowthOutside0, upper.FeeGrowthOutside1
	} else {
		above0 = feeGrowthGlobal0.WrappingSub(upper.FeeGrowthOutside0)
		above1 = feeGrowthGlobal1.WrappingSub(upper.FeeGrowthOutside1)
	}

	inside0 := feeGrowthGlobal0.WrappingSub(below0).WrappingSub(above0)
	inside1 := feeGrowthGlobal1.WrappingSub(below1).WrappingSub(above1)
	return inside0, inside1
}

// Snapshot captures the entry for index so that Restore can undo later
// mutations of it.
func (r *Registry) Snapshot(index int32) Snapshot {
	t, ok := r.Get(index)
	return Snapshot{Index: index, Tick: t, Existed: ok}
}

// Snapshot is the saved state of one tick index.
type Snapshot struct {
	Index   int32
	Tick    Tick
	Existed bool
}

// Restore puts back the entry captured by s.
func (r *Registry) Restore(s Snapshot) {
	if !s.Existed {
		r.Clear(s.Index)
		return
	}
	t := s.Tick
	r.ticks[s.Index] = &t
}

// Clone returns a deep copy of r.
func (r *Registry) Clone() *Registry {
	c := &Registry{ticks: make(map[int32]*Tick, len(r.ticks))}
	for index, t := range r.ticks {
		copied := *t
		c.ticks[index] = &copied
	}
	return c
}

// Info renders the entry for index as a view.
func (r *Registry) Info(index int32) (clamm.TickInfo, bool) {
	t, ok := r.ticks[index]
	if !ok {
		return clamm.TickInfo{}, false
	}
	return toInfo(index, t), true
}

// Infos renders every entry as a view, sorted by index.
func (r *Registry) Infos() []clamm.TickInfo {
	indices := slices.Sorted(maps.Keys(r.ticks))
	infos := make([]clamm.TickInfo, 0, len(indices))
	for _, index := range indices {
		infos = append(infos, toInfo(index, r.ticks[index]))
	}
	return infos
}

func toInfo(index int32, t *Tick) clamm.TickInfo {
	return clamm.TickInfo{
		Index:             index,
		LiquidityGross:    t.LiquidityGross,
		LiquidityNet:      t.LiquidityNet,
		FeeGrowthOutside0: t.FeeGrowthOutside0,
		FeeGrowthOutside1: t.FeeGrowthOutside1,
	}
}
