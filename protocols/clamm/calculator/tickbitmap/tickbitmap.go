package tickbitmap

import (
	"fmt"

	"github.com/defistate/clamm-engine/bitset"
	"github.com/defistate/clamm-engine/protocols/clamm/calculator/tickmath"
	"github.com/defistate/clamm-engine/protocols/clamm/clammerr"
)

var (
	ErrTickNotSpaced = fmt.Errorf("%w: tick is not a multiple of the tick spacing", clammerr.ErrInvalidRange)
)

// TickBitmap records which usable ticks are initialized, one bit per tick.
// Bit i stands for the tick MinUsableTick(spacing) + i*spacing.
type TickBitmap struct {
	spacing int32
	minTick int32
	maxTick int32
	bits    bitset.BitSet
}

// New returns an empty bitmap covering every usable tick for tickSpacing.
func New(tickSpacing uint32) (*TickBitmap, error) {
	if tickSpacing == 0 || tickSpacing > uint32(tickmath.MaxTick) {
		return nil, clammerr.ErrInvalidTickSpacing
	}
	minTick := tickmath.MinUsableTick(tickSpacing)
	maxTick := tickmath.MaxUsableTick(tickSpacing)
	size := uint64((maxTick-minTick)/int32(tickSpacing)) + 1
	return &TickBitmap{
		spacing: int32(tickSpacing),
		minTick: minTick,
		maxTick: maxTick,
		bits:    bitset.NewBitSet(size),
	}, nil
}

// position maps a tick in [minTick, maxTick] to its bit, rounding down
// between spaced ticks.
func (tb *TickBitmap) position(tick int32) uint64 {
	return uint64((int64(tick) - int64(tb.minTick)) / int64(tb.spacing))
}

func (tb *TickBitmap) tick(position uint64) int32 {
	return tb.minTick + int32(position)*tb.spacing
}

func (tb *TickBitmap) checkTick(tick int32) error {
	if tick < tb.minTick || tick > tb.maxTick {
		return clammerr.ErrTickOutOfRange
	}
	if tick%tb.spacing != 0 {
		return ErrTickNotSpaced
	}
	return nil
}

// Flip toggles the initialized state of tick and reports the new state.
func (tb *TickBitmap) Flip(tick int32) (bool, error) {
	if err := tb.checkTick(tick); err != nil {
		return false, err
	}
	return tb.bits.Flip(tb.position(tick)), nil
}

// IsInitialized reports whether tick is marked initialized.
func (tb *TickBitmap) IsInitialized(tick int32) bool {
	if tb.checkTick(tick) != nil {
		return false
	}
	return tb.bits.IsSet(tb.position(tick))
}

// Clone returns an independent copy of tb.
func (tb *TickBitmap) Clone() *TickBitmap {
	c := *tb
	c.bits = tb.bits.Clone()
	return &c
}

// Count returns the number of initialized ticks.
func (tb *TickBitmap) Count() int {
	return tb.bits.Count()
}

// NextInitializedTick finds the next initialized tick in the trade direction.
//
//   - If lte is true, it finds the largest initialized tick that is less than or equal to tick.
//   - If lte is false, it finds the smallest initialized tick that is greater than tick.
//
// The search spans the whole bitmap one 64-bit word at a time.
func (tb *TickBitmap) NextInitializedTick(tick int32, lte bool) (next int32, initialized bool) {
	if lte {
		if tick < tb.minTick {
			return 0, false
		}
		position, ok := tb.bits.PrevSet(tb.position(min(tick, tb.maxTick)))
		if !ok {
			return 0, false
		}
		return tb.tick(position), true
	}

	if tick >= tb.maxTick {
		return 0, false
	}
	var from uint64
	if tick >= tb.minTick {
		from = tb.position(tick) + 1
	}
	position, ok := tb.bits.NextSet(from)
	if !ok {
		return 0, false
	}
	return tb.tick(position), true
}
