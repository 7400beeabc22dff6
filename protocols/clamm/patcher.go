package clamm

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

var (
	ErrUnknownTick     = errors.New("diff deletes a tick that is not in the view")
	ErrUnknownPosition = errors.New("diff deletes a position that is not in the view")
)

// Patcher constructs a new view by applying diff to prev. prev is not
// modified; the returned view shares no slices with it.
func Patcher(prev PoolView, diff PoolDiff) (PoolView, error) {
	next := PoolView{PoolViewMinimal: prev.PoolViewMinimal}
	if diff.State != nil {
		next.PoolViewMinimal = *diff.State
	}

	// 1. Ticks
	tickMap := make(map[int32]TickInfo, len(prev.Ticks))
	for _, t := range prev.Ticks {
		tickMap[t.Index] = t
	}
	for _, index := range diff.TickDeletions {
		if _, ok := tickMap[index]; !ok {
			return PoolView{}, fmt.Errorf("%w: %d", ErrUnknownTick, index)
		}
		delete(tickMap, index)
	}
	for _, t := range diff.TickUpserts {
		tickMap[t.Index] = t
	}
	next.Ticks = slices.AppendSeq(make([]TickInfo, 0, len(tickMap)), maps.Values(tickMap))
	slices.SortFunc(next.Ticks, compareTicks)

	// 2. Positions
	positionMap := make(map[PositionKey]PositionInfo, len(prev.Positions))
	for _, p := range prev.Positions {
		positionMap[p.PositionKey] = p
	}
	for _, key := range diff.PositionDeletions {
		if _, ok := positionMap[key]; !ok {
			return PoolView{}, fmt.Errorf("%w: %s [%d, %d)", ErrUnknownPosition, key.Owner, key.TickLower, key.TickUpper)
		}
		delete(positionMap, key)
	}
	for _, p := range diff.PositionUpserts {
		positionMap[p.PositionKey] = p
	}
	next.Positions = slices.AppendSeq(make([]PositionInfo, 0, len(positionMap)), maps.Values(positionMap))
	slices.SortFunc(next.Positions, comparePositions)

	return next, nil
}
