package differ

import (
	"io"
	"log/slog"
	"testing"

	"github.com/defistate/clamm-engine/engine"
	"github.com/defistate/clamm-engine/protocols/clamm"
	"github.com/defistate/clamm-engine/protocols/clamm/calculator/fixedpoint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDiffer(t *testing.T) (*StateDiffer, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	d, err := NewStateDiffer(&StateDifferConfig{
		Registry: reg,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return d, reg
}

// counterValue reads the counter of family name carrying exactly labels.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metrics:
		for _, m := range family.GetMetric() {
			if len(m.GetLabel()) != len(labels) {
				continue
			}
			for _, l := range m.GetLabel() {
				if labels[l.GetName()] != l.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestNewStateDiffer_Validation(t *testing.T) {
	_, err := NewStateDiffer(&StateDifferConfig{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	assert.ErrorContains(t, err, "Registry")

	_, err = NewStateDiffer(&StateDifferConfig{Registry: prometheus.NewRegistry()})
	assert.ErrorContains(t, err, "Logger")
}

func TestStateDiffer_Diff(t *testing.T) {
	d, reg := newTestDiffer(t)

	old := &engine.State{Seq: 3, Op: engine.OpInit, Pool: clamm.PoolView{
		PoolViewMinimal: clamm.PoolViewMinimal{Initialized: true, Fee: 3000, TickSpacing: 60},
	}}
	tick := clamm.TickInfo{Index: 60, LiquidityGross: fixedpoint.From64(1), LiquidityNet: fixedpoint.I128From64(-1)}
	new := old.Clone()
	new.Seq = 4
	new.Op = engine.OpMint
	new.Timestamp = 42
	new.Pool.Ticks = []clamm.TickInfo{tick}

	diff, err := d.Diff(old, new)
	require.NoError(t, err)

	assert.Equal(t, uint64(3), diff.FromSeq)
	assert.Equal(t, uint64(4), diff.ToSeq)
	assert.Equal(t, engine.OpMint, diff.Op)
	assert.Equal(t, uint64(42), diff.Timestamp)
	assert.Nil(t, diff.Pool.State)
	assert.Equal(t, []clamm.TickInfo{tick}, diff.Pool.TickUpserts)

	assert.Equal(t, 1.0, counterValue(t, reg, "clamm_differ_entries_changed_total", map[string]string{"entry": "tick", "change": "upsert"}))
	assert.Equal(t, 0.0, counterValue(t, reg, "clamm_differ_entries_changed_total", map[string]string{"entry": "position", "change": "upsert"}))
}

func TestStateDiffer_RejectsStaleState(t *testing.T) {
	d, _ := newTestDiffer(t)

	_, err := d.Diff(&engine.State{Seq: 5}, &engine.State{Seq: 5})
	assert.ErrorContains(t, err, "does not follow")

	_, err = d.Diff(&engine.State{Seq: 5}, &engine.State{Seq: 4})
	assert.Error(t, err)
}

func TestStateDiffer_CustomPoolDiffer(t *testing.T) {
	called := false
	d, err := NewStateDiffer(&StateDifferConfig{
		PoolDiffer: func(old, new clamm.PoolView) clamm.PoolDiff {
			called = true
			return clamm.PoolDiff{TickDeletions: []int32{1}}
		},
		Registry: prometheus.NewRegistry(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	diff, err := d.Diff(&engine.State{Seq: 1}, &engine.State{Seq: 2})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, []int32{1}, diff.Pool.TickDeletions)
}
