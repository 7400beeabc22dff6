// Package clammerr holds the error taxonomy shared by every layer of the engine.
//
// Each concrete error wraps exactly one class sentinel, so callers can branch on
// the class with errors.Is(err, clammerr.ErrState) or on the precise failure
// with errors.Is(err, clammerr.ErrLiquidityOverflow).
package clammerr

import (
	"errors"
	"fmt"
)

// Class sentinels.
var (
	// ErrArithmetic is the class of fixed-point and bit-math failures.
	ErrArithmetic = errors.New("arithmetic error")
	// ErrDomain is the class of caller-input validation failures.
	ErrDomain = errors.New("domain error")
	// ErrState is the class of failures that depend on pool state.
	ErrState = errors.New("state error")
)

// Arithmetic errors.
var (
	ErrOverflow  = fmt.Errorf("%w: overflow", ErrArithmetic)
	ErrUnderflow = fmt.Errorf("%w: underflow", ErrArithmetic)
	ErrZeroInput = fmt.Errorf("%w: input must be greater than zero", ErrArithmetic)
)

// Domain errors.
var (
	ErrTickOutOfRange        = fmt.Errorf("%w: tick out of range", ErrDomain)
	ErrPriceOutOfRange       = fmt.Errorf("%w: sqrt price out of range", ErrDomain)
	ErrInvalidRange          = fmt.Errorf("%w: invalid tick range", ErrDomain)
	ErrInvalidTickSpacing    = fmt.Errorf("%w: invalid tick spacing", ErrDomain)
	ErrInvalidFeeTier        = fmt.Errorf("%w: invalid fee tier", ErrDomain)
	ErrInvalidTokenPair      = fmt.Errorf("%w: invalid token pair", ErrDomain)
	ErrZeroLiquidity         = fmt.Errorf("%w: liquidity must be greater than zero", ErrDomain)
	ErrInsufficientPrecision = fmt.Errorf("%w: required amount rounds to zero", ErrDomain)
)

// State errors.
var (
	ErrAlreadyInitialized    = fmt.Errorf("%w: pool already initialized", ErrState)
	ErrNotInitialized        = fmt.Errorf("%w: pool not initialized", ErrState)
	ErrInsufficientLiquidity = fmt.Errorf("%w: insufficient liquidity", ErrState)
	ErrLiquidityOverflow     = fmt.Errorf("%w: liquidity overflow", ErrState)
	ErrPriceLimitInvalid     = fmt.Errorf("%w: sqrt price limit invalid", ErrState)
	ErrPositionNotFound      = fmt.Errorf("%w: position not found", ErrState)
)

// Class returns the class sentinel err belongs to, or nil for foreign errors.
func Class(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrArithmetic):
		return ErrArithmetic
	case errors.Is(err, ErrDomain):
		return ErrDomain
	case errors.Is(err, ErrState):
		return ErrState
	}
	return nil
}

// ClassName is Class rendered as a short label for logs and metrics.
func ClassName(err error) string {
	switch Class(err) {
	case ErrArithmetic:
		return "arithmetic"
	case ErrDomain:
		return "domain"
	case ErrState:
		return "state"
	}
	if err == nil {
		return "ok"
	}
	return "unknown"
}
