package fixedpoint

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQ64x64_Decimal(t *testing.T) {
	testCases := []struct {
		name  string
		q     Q64x64
		value string
		price string
	}{
		{"one", Q64x64FromInt(1), "1", "1"},
		{"three", Q64x64FromInt(3), "3", "9"},
		{"half", NewQ64x64(U128{Lower: 1 << 63}), "0.5", "0.25"},
		{"one and a quarter", NewQ64x64(U128{Upper: 1, Lower: 1 << 62}), "1.25", "1.5625"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, tc.q.Decimal().Equal(decimal.RequireFromString(tc.value)), tc.q.Decimal().String())
			assert.True(t, tc.q.Price().Equal(decimal.RequireFromString(tc.price)), tc.q.Price().String())
		})
	}
}

func TestQ64x64_Arithmetic(t *testing.T) {
	three := Q64x64FromInt(3)
	one := Q64x64FromInt(1)

	d, neg := AbsDiffQ64x64(one, three)
	assert.True(t, neg)
	assert.Equal(t, Q64x64FromInt(2), d)

	sum, err := one.Add(three)
	require.NoError(t, err)
	assert.Equal(t, Q64x64FromInt(4), sum)

	_, err = one.Sub(three)
	assert.Error(t, err)

	// fee-growth style wraparound: only differences are meaningful
	wrapped := one.WrappingSub(three)
	assert.Equal(t, one, wrapped.WrappingAdd(three))
}

func TestQ64x64_JSONBoundaryEncoding(t *testing.T) {
	data, err := json.Marshal(Q64x64FromInt(3))
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":{"upper":3,"lower":0}}`, string(data))
}
