package patcher

import (
	"fmt"

	differ "github.com/defistate/clamm-engine/differ"
	engine "github.com/defistate/clamm-engine/engine"
	"github.com/defistate/clamm-engine/protocols/clamm"
)

// PatcherFunc applies a pool diff to a previous view to produce a new view.
//
// CONTRACT: implementations MUST NOT mutate prev. They must create a copy.
type PatcherFunc func(prev clamm.PoolView, diff clamm.PoolDiff) (clamm.PoolView, error)

type StatePatcherConfig struct {
	// Patcher defaults to clamm.Patcher.
	Patcher PatcherFunc
}

// StatePatcher applies state diffs received from a stream.
type StatePatcher struct {
	patcher PatcherFunc
}

// NewStatePatcher constructs a new patcher from a configuration.
func NewStatePatcher(cfg *StatePatcherConfig) *StatePatcher {
	patcher := cfg.Patcher
	if patcher == nil {
		patcher = clamm.Patcher
	}
	return &StatePatcher{patcher: patcher}
}

// Patch creates a new State by applying the diff to the old state. The diff
// must start at the old state's sequence number.
func (p *StatePatcher) Patch(oldState *engine.State, diff *differ.StateDiff) (*engine.State, error) {
	if oldState.Seq != diff.FromSeq {
		return nil, fmt.Errorf("patcher: mismatch fromSeq (state=%d, diff=%d)", oldState.Seq, diff.FromSeq)
	}
	if diff.ToSeq <= diff.FromSeq {
		return nil, fmt.Errorf("patcher: diff does not advance (from=%d, to=%d)", diff.FromSeq, diff.ToSeq)
	}

	pool, err := p.patcher(oldState.Pool, diff.Pool)
	if err != nil {
		return nil, fmt.Errorf("patcher: failed to patch seq %d: %w", diff.ToSeq, err)
	}

	return &engine.State{
		Seq:       diff.ToSeq,
		Timestamp: diff.Timestamp,
		Op:        diff.Op,
		Pool:      pool,
	}, nil
}
