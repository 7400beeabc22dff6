package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/defistate/clamm-engine/engine"
	"github.com/defistate/clamm-engine/protocols/clamm"
	"github.com/defistate/clamm-engine/protocols/clamm/calculator/fixedpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintTicks(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printTicks(&out, -1, 1, 1))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5, "header, rule and three ticks")

	zero := strings.Fields(lines[3])
	assert.Equal(t, []string{"0", "18446744073709551616", "1.000000000000000000", "1.000000000000000000"}, zero)

	assert.ErrorContains(t, printTicks(&out, 0, 1, 0), "step must be positive")
	assert.ErrorContains(t, printTicks(&out, 1, 0, 1), "is after")
	assert.Error(t, printTicks(&out, 443630, 443640, 10))
}

func TestPrintState(t *testing.T) {
	var out bytes.Buffer
	printState(&out, &engine.State{Seq: 0, Op: engine.OpGenesis})
	assert.Contains(t, out.String(), "uninitialized")

	out.Reset()
	printState(&out, &engine.State{Seq: 3, Op: engine.OpSwap, Pool: clamm.PoolView{
		PoolViewMinimal: clamm.PoolViewMinimal{
			Initialized: true,
			Tick:        -5,
			SqrtPrice:   fixedpoint.Q64x64FromInt(2),
			Liquidity:   fixedpoint.From64(77),
		},
	}})
	assert.Contains(t, out.String(), "#3")
	assert.Contains(t, out.String(), "price 4.00000000")
	assert.Contains(t, out.String(), "liquidity 77")
}
