package engine

import (
	"slices"

	"github.com/defistate/clamm-engine/protocols/clamm"
)

// Op names the pool operation that produced a state.
type Op string

const (
	OpGenesis Op = "genesis"
	OpInit    Op = "init"
	OpMint    Op = "mint"
	OpBurn    Op = "burn"
	OpCollect Op = "collect"
	OpSwap    Op = "swap"
	OpQuote   Op = "quote"
)

// State is the main data structure broadcast to subscribers.
type State struct {
	// Seq counts the committed operations that led to this state. The empty
	// pool is sequence 0.
	Seq uint64 `json:"seq"`

	// Timestamp is the Unix nanosecond time the state was committed.
	Timestamp uint64 `json:"timestamp"`

	Op   Op             `json:"op"`
	Pool clamm.PoolView `json:"pool"`
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	c := *s
	c.Pool.Ticks = slices.Clone(s.Pool.Ticks)
	c.Pool.Positions = slices.Clone(s.Pool.Positions)
	return &c
}

// Tick returns the tick at index, if it is initialized.
func (s *State) Tick(index int32) (clamm.TickInfo, bool) {
	i, found := slices.BinarySearchFunc(s.Pool.Ticks, index, func(t clamm.TickInfo, index int32) int {
		switch {
		case t.Index < index:
			return -1
		case t.Index > index:
			return 1
		}
		return 0
	})
	if !found {
		return clamm.TickInfo{}, false
	}
	return s.Pool.Ticks[i], true
}

// Position returns the position at key, if it exists.
func (s *State) Position(key clamm.PositionKey) (clamm.PositionInfo, bool) {
	i, found := slices.BinarySearchFunc(s.Pool.Positions, key, func(p clamm.PositionInfo, key clamm.PositionKey) int {
		return clamm.ComparePositionKeys(p.PositionKey, key)
	})
	if !found {
		return clamm.PositionInfo{}, false
	}
	return s.Pool.Positions[i], true
}
