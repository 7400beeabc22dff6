package tickbitmap

import (
	"testing"

	"github.com/defistate/clamm-engine/protocols/clamm/calculator/tickmath"
	"github.com/defistate/clamm-engine/protocols/clamm/clammerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newBitmap is a helper that builds a bitmap with the given ticks initialized.
func newBitmap(t *testing.T, spacing uint32, ticks []int32) *TickBitmap {
	tb, err := New(spacing)
	require.NoError(t, err)
	for _, tick := range ticks {
		set, err := tb.Flip(tick)
		require.NoError(t, err)
		require.True(t, set)
	}
	return tb
}

func TestNextInitializedTick(t *testing.T) {
	// A sorted slice of example initialized tick INDICES.
	initializedTicks := []int32{-200, -100, -50, 0, 50, 100, 200}

	testCases := []struct {
		name                string
		ticks               []int32
		startTick           int32
		lte                 bool // Search direction
		expectedNext        int32
		expectedInitialized bool
	}{
		// --- Search Left (lte = true) ---
		{"LTE: Exact Match", initializedTicks, 50, true, 50, true},
		{"LTE: Between Ticks", initializedTicks, 40, true, 0, true},
		{"LTE: Just Above a Tick", initializedTicks, 51, true, 50, true},
		{"LTE: At First Tick", initializedTicks, -200, true, -200, true},
		{"LTE: Before First Tick", initializedTicks, -250, true, 0, false},
		{"LTE: At Last Tick", initializedTicks, 200, true, 200, true},
		{"LTE: Beyond Usable Range", initializedTicks, tickmath.MaxTick, true, 200, true},

		// --- Search Right (lte = false, implemented as >) ---
		{"GT: On an existing tick", initializedTicks, 50, false, 100, true},
		{"GT: Between Ticks", initializedTicks, 40, false, 50, true},
		{"GT: Just Below a Tick", initializedTicks, 49, false, 50, true},
		{"GT: Negative Between Ticks", initializedTicks, -51, false, -50, true},
		{"GT: At First Tick", initializedTicks, -200, false, -100, true},
		{"GT: At Last Tick", initializedTicks, 200, false, 0, false},
		{"GT: After Last Tick", initializedTicks, 250, false, 0, false},
		{"GT: Below Usable Range", initializedTicks, tickmath.MinTick, false, -200, true},

		// --- Edge Cases ---
		{"Edge: Empty Bitmap (LTE)", nil, 100, true, 0, false},
		{"Edge: Empty Bitmap (GT)", nil, 100, false, 0, false},
		{"Edge: Single Element Match (LTE)", []int32{100}, 100, true, 100, true},
		{"Edge: Single Element No Match (GT)", []int32{100}, 100, false, 0, false},
		{"Edge: Words Apart (LTE)", []int32{-400000, 400000}, 399990, true, -400000, true},
		{"Edge: Words Apart (GT)", []int32{-400000, 400000}, -399990, false, 400000, true},
		{"Edge: Lowest Usable Tick", []int32{-443630}, -443630, true, -443630, true},
		{"Edge: Highest Usable Tick", []int32{443630}, 443620, false, 443630, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tb := newBitmap(t, 10, tc.ticks)

			next, initialized := tb.NextInitializedTick(tc.startTick, tc.lte)

			assert.Equal(t, tc.expectedInitialized, initialized, "Initialized flag mismatch")
			if tc.expectedInitialized {
				assert.Equal(t, tc.expectedNext, next, "Next tick mismatch")
			}
		})
	}
}

func TestTickBitmap_Flip(t *testing.T) {
	tb := newBitmap(t, 60, []int32{-120, 60})
	assert.True(t, tb.IsInitialized(-120))
	assert.True(t, tb.IsInitialized(60))
	assert.False(t, tb.IsInitialized(0))
	assert.False(t, tb.IsInitialized(61))

	assert.Equal(t, 2, tb.Count())

	clone := tb.Clone()

	set, err := tb.Flip(60)
	require.NoError(t, err)
	assert.False(t, set)
	assert.False(t, tb.IsInitialized(60))
	assert.True(t, clone.IsInitialized(60), "clone must not share storage")
	assert.Equal(t, 1, tb.Count())
	assert.Equal(t, 2, clone.Count())

	_, err = tb.Flip(61)
	assert.ErrorIs(t, err, ErrTickNotSpaced)
	assert.ErrorIs(t, err, clammerr.ErrInvalidRange)

	_, err = tb.Flip(tickmath.MaxUsableTick(60) + 60)
	assert.ErrorIs(t, err, clammerr.ErrTickOutOfRange)

	_, err = New(0)
	assert.ErrorIs(t, err, clammerr.ErrInvalidTickSpacing)
}
