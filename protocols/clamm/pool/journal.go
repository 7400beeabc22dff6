package pool

import (
	"github.com/defistate/clamm-engine/protocols/clamm"
	"github.com/defistate/clamm-engine/protocols/clamm/positions"
	"github.com/defistate/clamm-engine/protocols/clamm/ticks"
)

// journal records what an operation touched so that a failure can put the
// pool back exactly as it was.
type journal struct {
	state     clamm.PoolViewMinimal
	ticks     []ticks.Snapshot
	seen      map[int32]struct{}
	positions []positions.Snapshot
	flips     []int32
}

func (p *Pool) begin() *journal {
	return &journal{state: p.state}
}

// touchTick snapshots the tick at index the first time it is touched.
func (p *Pool) touchTick(j *journal, index int32) {
	if _, ok := j.seen[index]; ok {
		return
	}
	if j.seen == nil {
		j.seen = make(map[int32]struct{})
	}
	j.seen[index] = struct{}{}
	j.ticks = append(j.ticks, p.ticks.Snapshot(index))
}

func (p *Pool) touchPosition(j *journal, key clamm.PositionKey) {
	j.positions = append(j.positions, p.positions.Snapshot(key))
}

func (p *Pool) flipTick(j *journal, index int32) error {
	if _, err := p.bitmap.Flip(index); err != nil {
		return err
	}
	j.flips = append(j.flips, index)
	return nil
}

// rollback undoes every mutation recorded in j, newest first.
func (p *Pool) rollback(j *journal) {
	for i := len(j.flips) - 1; i >= 0; i-- {
		// flipping back an aligned in-range tick cannot fail
		_, _ = p.bitmap.Flip(j.flips[i])
	}
	for i := len(j.positions) - 1; i >= 0; i-- {
		p.positions.Restore(j.positions[i])
	}
	for i := len(j.ticks) - 1; i >= 0; i-- {
		p.ticks.Restore(j.ticks[i])
	}
	p.state = j.state
}
