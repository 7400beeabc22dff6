package patcher

import (
	"errors"
	"testing"

	"github.com/defistate/clamm-engine/differ"
	"github.com/defistate/clamm-engine/engine"
	"github.com/defistate/clamm-engine/protocols/clamm"
	"github.com/defistate/clamm-engine/protocols/clamm/calculator/fixedpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeState(seq uint64, tick int32, ticks ...clamm.TickInfo) *engine.State {
	return &engine.State{
		Seq:       seq,
		Timestamp: seq * 1000,
		Op:        engine.OpMint,
		Pool: clamm.PoolView{
			PoolViewMinimal: clamm.PoolViewMinimal{
				Initialized: true,
				Fee:         500,
				TickSpacing: 10,
				Tick:        tick,
				SqrtPrice:   fixedpoint.Q64x64FromInt(1),
			},
			Ticks:     ticks,
			Positions: []clamm.PositionInfo{},
		},
	}
}

func TestStatePatcher_HappyPath(t *testing.T) {
	patcher := NewStatePatcher(&StatePatcherConfig{})

	tick := clamm.TickInfo{Index: -10, LiquidityGross: fixedpoint.From64(5), LiquidityNet: fixedpoint.I128From64(5)}
	oldState := makeState(7, 0)
	newState := makeState(8, -3, tick)
	newState.Op = engine.OpSwap

	diff := &differ.StateDiff{
		Timestamp: newState.Timestamp,
		FromSeq:   7,
		ToSeq:     8,
		Op:        engine.OpSwap,
		Pool:      clamm.Differ(oldState.Pool, newState.Pool),
	}

	patched, err := patcher.Patch(oldState, diff)
	require.NoError(t, err)
	assert.Equal(t, newState, patched)

	// the old state is untouched
	assert.Empty(t, oldState.Pool.Ticks)
	assert.Equal(t, uint64(7), oldState.Seq)
}

func TestStatePatcher_SeqMismatch(t *testing.T) {
	patcher := NewStatePatcher(&StatePatcherConfig{})

	_, err := patcher.Patch(makeState(100, 0), &differ.StateDiff{FromSeq: 99, ToSeq: 100})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch fromSeq")

	_, err = patcher.Patch(makeState(100, 0), &differ.StateDiff{FromSeq: 100, ToSeq: 100})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not advance")
}

func TestStatePatcher_PoolPatcherError(t *testing.T) {
	failure := errors.New("boom")
	patcher := NewStatePatcher(&StatePatcherConfig{
		Patcher: func(clamm.PoolView, clamm.PoolDiff) (clamm.PoolView, error) {
			return clamm.PoolView{}, failure
		},
	})

	_, err := patcher.Patch(makeState(1, 0), &differ.StateDiff{FromSeq: 1, ToSeq: 2})
	assert.ErrorIs(t, err, failure)

	// the default patcher rejects deletions of unknown ticks
	_, err = NewStatePatcher(&StatePatcherConfig{}).Patch(makeState(1, 0), &differ.StateDiff{
		FromSeq: 1,
		ToSeq:   2,
		Pool:    clamm.PoolDiff{TickDeletions: []int32{10}},
	})
	assert.ErrorIs(t, err, clamm.ErrUnknownTick)
}
