package differ

import (
	"github.com/defistate/clamm-engine/engine"
	"github.com/defistate/clamm-engine/protocols/clamm"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StateDiff represents a summary of changes FromSeq to ToSeq.
type StateDiff struct {
	Timestamp uint64 `json:"timestamp"`
	FromSeq   uint64 `json:"fromSeq"`
	ToSeq     uint64 `json:"toSeq"`

	// Op is the operation that produced the ToSeq state.
	Op   engine.Op      `json:"op"`
	Pool clamm.PoolDiff `json:"pool"`
}
