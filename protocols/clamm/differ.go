package clamm

import (
	"slices"
)

// PoolDiff is the change between two views of the same pool.
type PoolDiff struct {
	// State is set when any scalar field changed.
	State             *PoolViewMinimal `json:"state,omitempty"`
	TickUpserts       []TickInfo       `json:"tickUpserts,omitempty"`
	TickDeletions     []int32          `json:"tickDeletions,omitempty"`
	PositionUpserts   []PositionInfo   `json:"positionUpserts,omitempty"`
	PositionDeletions []PositionKey    `json:"positionDeletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d PoolDiff) IsEmpty() bool {
	return d.State == nil &&
		len(d.TickUpserts) == 0 && len(d.TickDeletions) == 0 &&
		len(d.PositionUpserts) == 0 && len(d.PositionDeletions) == 0
}

// Differ calculates the difference between two views of a pool. Entries are
// matched by tick index and by position key; the output is ordered the same
// way the views are.
func Differ(old, new PoolView) PoolDiff {
	var diff PoolDiff

	if old.PoolViewMinimal != new.PoolViewMinimal {
		state := new.PoolViewMinimal
		diff.State = &state
	}

	oldTicks := make(map[int32]TickInfo, len(old.Ticks))
	for _, t := range old.Ticks {
		oldTicks[t.Index] = t
	}
	newTicks := make(map[int32]TickInfo, len(new.Ticks))
	for _, t := range new.Ticks {
		newTicks[t.Index] = t
		if prev, exists := oldTicks[t.Index]; !exists || prev != t {
			diff.TickUpserts = append(diff.TickUpserts, t)
		}
	}
	for index := range oldTicks {
		if _, exists := newTicks[index]; !exists {
			diff.TickDeletions = append(diff.TickDeletions, index)
		}
	}
	slices.SortFunc(diff.TickUpserts, compareTicks)
	slices.Sort(diff.TickDeletions)

	oldPositions := make(map[PositionKey]PositionInfo, len(old.Positions))
	for _, p := range old.Positions {
		oldPositions[p.PositionKey] = p
	}
	newPositions := make(map[PositionKey]PositionInfo, len(new.Positions))
	for _, p := range new.Positions {
		newPositions[p.PositionKey] = p
		if prev, exists := oldPositions[p.PositionKey]; !exists || prev != p {
			diff.PositionUpserts = append(diff.PositionUpserts, p)
		}
	}
	for key := range oldPositions {
		if _, exists := newPositions[key]; !exists {
			diff.PositionDeletions = append(diff.PositionDeletions, key)
		}
	}
	slices.SortFunc(diff.PositionUpserts, comparePositions)
	slices.SortFunc(diff.PositionDeletions, ComparePositionKeys)

	return diff
}
