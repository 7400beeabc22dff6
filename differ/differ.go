package differ

import (
	"errors"
	"fmt"

	"github.com/defistate/clamm-engine/engine"
	"github.com/defistate/clamm-engine/protocols/clamm"
	"github.com/prometheus/client_golang/prometheus"
)

// PoolDiffer computes the change between two views of a pool.
type PoolDiffer func(old, new clamm.PoolView) clamm.PoolDiff

// StateDifferConfig holds the pool differ and dependencies.
type StateDifferConfig struct {
	// PoolDiffer defaults to clamm.Differ.
	PoolDiffer PoolDiffer
	Registry   prometheus.Registerer
	Logger     Logger
}

// validate checks if the configuration is valid, ensuring required dependencies are present.
func (c *StateDifferConfig) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// StateDiffer turns consecutive states into the diffs broadcast to
// subscribers.
type StateDiffer struct {
	metrics    *Metrics
	logger     Logger
	poolDiffer PoolDiffer
}

// NewStateDiffer constructs a new differ from a configuration, returning an error if the config is invalid.
func NewStateDiffer(cfg *StateDifferConfig) (*StateDiffer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	poolDiffer := cfg.PoolDiffer
	if poolDiffer == nil {
		poolDiffer = clamm.Differ
	}

	return &StateDiffer{
		metrics:    NewMetrics(cfg.Registry),
		logger:     cfg.Logger,
		poolDiffer: poolDiffer,
	}, nil
}

// Diff computes the change from old to new. new must be a later state of
// the same pool.
func (d *StateDiffer) Diff(old, new *engine.State) (*StateDiff, error) {
	totalTimer := prometheus.NewTimer(d.metrics.diffDuration.WithLabelValues())
	defer totalTimer.ObserveDuration()

	if new.Seq <= old.Seq {
		return nil, fmt.Errorf("differ: state %d does not follow %d", new.Seq, old.Seq)
	}

	pool := d.poolDiffer(old.Pool, new.Pool)

	d.metrics.entriesChanged.WithLabelValues("tick", "upsert").Add(float64(len(pool.TickUpserts)))
	d.metrics.entriesChanged.WithLabelValues("tick", "delete").Add(float64(len(pool.TickDeletions)))
	d.metrics.entriesChanged.WithLabelValues("position", "upsert").Add(float64(len(pool.PositionUpserts)))
	d.metrics.entriesChanged.WithLabelValues("position", "delete").Add(float64(len(pool.PositionDeletions)))

	d.logger.Debug("state diffed",
		"fromSeq", old.Seq,
		"toSeq", new.Seq,
		"op", new.Op,
		"tickUpserts", len(pool.TickUpserts),
		"positionUpserts", len(pool.PositionUpserts),
	)

	return &StateDiff{
		Timestamp: new.Timestamp,
		FromSeq:   old.Seq,
		ToSeq:     new.Seq,
		Op:        new.Op,
		Pool:      pool,
	}, nil
}
