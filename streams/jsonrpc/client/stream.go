package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/clamm-engine/differ"
	"github.com/defistate/clamm-engine/engine"
	"github.com/defistate/clamm-engine/streams/jsonrpc"
)

// ErrOutOfSync is returned when a diff skips past the last known state. The
// stream has to be restarted to get a fresh full state.
var ErrOutOfSync = errors.New("stream out of sync")

// StatePatcherFunc applies a diff to the state it was computed from.
type StatePatcherFunc func(prevState *engine.State, diff *differ.StateDiff) (*engine.State, error)

// StreamProcessor turns subscription events into a sequence of states. It
// holds the last state so diffs can be patched onto it and does no I/O.
type StreamProcessor struct {
	logger  Logger
	patch   StatePatcherFunc
	current *engine.State
	out     chan *engine.State
}

// NewStreamProcessor returns a processor publishing states on a channel with
// the given buffer.
func NewStreamProcessor(logger Logger, bufferSize uint, patch StatePatcherFunc) *StreamProcessor {
	return &StreamProcessor{
		logger: logger,
		patch:  patch,
		out:    make(chan *engine.State, bufferSize),
	}
}

// State returns the channel new states are published on.
func (sp *StreamProcessor) State() <-chan *engine.State {
	return sp.out
}

// Reset forgets the current state. The next event must be a full state.
func (sp *StreamProcessor) Reset() {
	sp.current = nil
}

// ProcessMessage decodes one subscription event and publishes the state it
// produces, if any. It gives up waiting for a reader when ctx is done.
func (sp *StreamProcessor) ProcessMessage(ctx context.Context, raw json.RawMessage) error {
	received := time.Now()

	var event jsonrpc.SubscriptionEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return fmt.Errorf("failed to unmarshal subscription event: %w", err)
	}

	var (
		next *engine.State
		err  error
	)
	switch event.Type {
	case jsonrpc.EventFull:
		next, err = decode[engine.State](event.Payload, "full state")
	case jsonrpc.EventDiff:
		next, err = sp.applyDiff(event.Payload)
	default:
		return fmt.Errorf("received unknown event type: %s", event.Type)
	}
	if err != nil || next == nil {
		return err
	}

	select {
	case sp.out <- next:
	case <-ctx.Done():
		return ctx.Err()
	}
	sp.current = next
	sp.logger.Debug("State applied",
		"type", event.Type,
		"seq", next.Seq,
		"op", next.Op,
		"tick", next.Pool.Tick,
		"commit_to_send_ms", time.Unix(0, event.SentAt).Sub(time.Unix(0, int64(next.Timestamp))).Milliseconds(),
		"send_to_apply_ms", received.Sub(time.Unix(0, event.SentAt)).Milliseconds(),
		"apply_ms", time.Since(received).Milliseconds(),
	)
	return nil
}

func (sp *StreamProcessor) applyDiff(payload json.RawMessage) (*engine.State, error) {
	diff, err := decode[differ.StateDiff](payload, "diff")
	if err != nil {
		return nil, err
	}
	if sp.current == nil {
		return nil, fmt.Errorf("received diff before full state; from_seq: %d, to_seq: %d", diff.FromSeq, diff.ToSeq)
	}

	switch {
	case diff.ToSeq <= sp.current.Seq:
		sp.logger.Debug("Ignoring stale diff", "seq", sp.current.Seq, "to_seq", diff.ToSeq)
		return nil, nil
	case diff.FromSeq != sp.current.Seq:
		sp.logger.Warn("Diff does not follow the current state",
			"seq", sp.current.Seq,
			"from_seq", diff.FromSeq,
			"to_seq", diff.ToSeq,
		)
		return nil, fmt.Errorf("%w: have %d, diff from %d", ErrOutOfSync, sp.current.Seq, diff.FromSeq)
	}

	next, err := sp.patch(sp.current, diff)
	if err != nil {
		return nil, fmt.Errorf("failed to patch state: %w", err)
	}
	return next, nil
}

func decode[T any](payload json.RawMessage, what string) (*T, error) {
	v := new(T)
	if err := json.Unmarshal(payload, v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s payload: %w", what, err)
	}
	return v, nil
}
