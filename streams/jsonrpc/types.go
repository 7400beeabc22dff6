// Package jsonrpc holds the wire contract shared by the pool RPC server and
// its clients: the namespace, the argument and result shapes, the stream
// events and the mapping between engine errors and JSON-RPC errors.
package jsonrpc

import (
	"encoding/json"
	"errors"

	"github.com/defistate/clamm-engine/protocols/clamm"
	"github.com/defistate/clamm-engine/protocols/clamm/calculator/fixedpoint"
	"github.com/defistate/clamm-engine/protocols/clamm/clammerr"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	// Namespace is the namespace under which the pool service is registered.
	Namespace = "clamm"
	// DiffsSubscription is the subscription name of the state stream.
	DiffsSubscription = "diffs"

	// EventFull carries an engine.State, EventDiff a differ.StateDiff.
	EventFull = "full"
	EventDiff = "diff"
)

// SubscriptionEvent is the wrapper object pushed on the state stream.
type SubscriptionEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  int64           `json:"sentAt"`
}

// MintArgs are the arguments of clamm_mint. When Liquidity is set the exact
// amount of liquidity is minted and the desired amounts are ignored.
type MintArgs struct {
	TickLower      clamm.I24        `json:"tickLower"`
	TickUpper      clamm.I24        `json:"tickUpper"`
	Amount0Desired uint64           `json:"amount0Desired"`
	Amount1Desired uint64           `json:"amount1Desired"`
	Liquidity      *fixedpoint.U128 `json:"liquidity,omitempty"`
	Recipient      clamm.Identity   `json:"recipient"`
}

// MintResult is the result of clamm_mint.
type MintResult struct {
	Liquidity fixedpoint.U128 `json:"liquidity"`
	Amount0   uint64          `json:"amount0"`
	Amount1   uint64          `json:"amount1"`
}

// BurnArgs are the arguments of clamm_burn.
type BurnArgs struct {
	TickLower clamm.I24       `json:"tickLower"`
	TickUpper clamm.I24       `json:"tickUpper"`
	Liquidity fixedpoint.U128 `json:"liquidity"`
	Owner     clamm.Identity  `json:"owner"`
}

// CollectArgs are the arguments of clamm_collect.
type CollectArgs struct {
	TickLower  clamm.I24      `json:"tickLower"`
	TickUpper  clamm.I24      `json:"tickUpper"`
	Owner      clamm.Identity `json:"owner"`
	Amount0Max uint64         `json:"amount0Max"`
	Amount1Max uint64         `json:"amount1Max"`
}

// Amounts is the result of clamm_burn and clamm_collect.
type Amounts struct {
	Amount0 uint64 `json:"amount0"`
	Amount1 uint64 `json:"amount1"`
}

// Ticks decodes a pair of wire ticks.
func Ticks(lower, upper clamm.I24) (int32, int32, error) {
	tickLower, err := lower.Tick()
	if err != nil {
		return 0, 0, err
	}
	tickUpper, err := upper.Tick()
	if err != nil {
		return 0, 0, err
	}
	return tickLower, tickUpper, nil
}

// JSON-RPC error codes of the engine's error classes.
const (
	CodeArithmetic = 3001
	CodeDomain     = 3002
	CodeState      = 3003
)

// Error is an engine error as returned over JSON-RPC. The class name travels
// as the error data.
type Error struct {
	err error
}

// NewError wraps an engine error for the RPC server. Errors of no known
// class are returned unchanged.
func NewError(err error) error {
	if err == nil || clammerr.Class(err) == nil {
		return err
	}
	return &Error{err: err}
}

func (e *Error) Error() string { return e.err.Error() }
func (e *Error) Unwrap() error { return e.err }

func (e *Error) ErrorCode() int {
	switch clammerr.Class(e.err) {
	case clammerr.ErrArithmetic:
		return CodeArithmetic
	case clammerr.ErrDomain:
		return CodeDomain
	}
	return CodeState
}

func (e *Error) ErrorData() interface{} { return clammerr.ClassName(e.err) }

// FromRPCError restores the error class of an error returned by the server,
// so that callers can keep using errors.Is with the clammerr class
// sentinels.
func FromRPCError(err error) error {
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return err
	}
	var class error
	switch rpcErr.ErrorCode() {
	case CodeArithmetic:
		class = clammerr.ErrArithmetic
	case CodeDomain:
		class = clammerr.ErrDomain
	case CodeState:
		class = clammerr.ErrState
	default:
		return err
	}
	return &remoteError{class: class, err: err}
}

// remoteError keeps the server's message and matches its class sentinel.
type remoteError struct {
	class error
	err   error
}

func (e *remoteError) Error() string   { return e.err.Error() }
func (e *remoteError) Unwrap() []error { return []error{e.class, e.err} }
