package sqrtpricemath

import (
	"fmt"
	"sync"

	"github.com/defistate/clamm-engine/protocols/clamm/calculator/fixedpoint"
	"github.com/defistate/clamm-engine/protocols/clamm/clammerr"
	"github.com/holiman/uint256"
)

var (
	// q64 is 1.0 in Q64.64.
	q64 = fixedpoint.Q64.Uint256()

	ErrLiquidityZero = fmt.Errorf("%w: liquidity", clammerr.ErrZeroInput)
	ErrSqrtPriceZero = fmt.Errorf("%w: sqrt price", clammerr.ErrZeroInput)
	// ErrReservesExceeded is returned when an output amount is larger than the
	// virtual reserves available at the given liquidity.
	ErrReservesExceeded = fmt.Errorf("%w: output exceeds virtual reserves", clammerr.ErrInsufficientLiquidity)
)

// SqrtPriceMath holds reusable uint256 objects to avoid memory allocations.
// Instances are managed by a sync.Pool for safe concurrent use.
type SqrtPriceMath struct {
	numerator1  *uint256.Int
	numerator2  *uint256.Int
	denominator *uint256.Int
	product     *uint256.Int
	term        *uint256.Int
	result      *uint256.Int
	rem         *uint256.Int
}

// pool manages a pool of SqrtPriceMath objects.
var pool = sync.Pool{
	New: func() any {
		return &SqrtPriceMath{
			numerator1:  new(uint256.Int),
			numerator2:  new(uint256.Int),
			denominator: new(uint256.Int),
			product:     new(uint256.Int),
			term:        new(uint256.Int),
			result:      new(uint256.Int),
			rem:         new(uint256.Int),
		}
	},
}

// --- Helper Methods (Internal) ---

// mulDiv writes floor(a * b / c) into dest using a 512-bit product.
// dest must not alias a, b or c.
func (s *SqrtPriceMath) mulDiv(dest, a, b, c *uint256.Int) error {
	if c.IsZero() {
		return clammerr.ErrZeroInput
	}
	if _, overflow := dest.MulDivOverflow(a, b, c); overflow {
		return clammerr.ErrOverflow
	}
	return nil
}

// mulDivRoundingUp writes ceil(a * b / c) into dest. dest must not alias a, b or c.
func (s *SqrtPriceMath) mulDivRoundingUp(dest, a, b, c *uint256.Int) error {
	if err := s.mulDiv(dest, a, b, c); err != nil {
		return err
	}
	if !s.rem.MulMod(a, b, c).IsZero() {
		if _, overflow := dest.AddOverflow(dest, uint256.NewInt(1)); overflow {
			return clammerr.ErrOverflow
		}
	}
	return nil
}

// divRoundingUp writes ceil(a / b) into dest. dest must not alias a or b.
func (s *SqrtPriceMath) divRoundingUp(dest, a, b *uint256.Int) {
	dest.DivMod(a, b, s.rem)
	if !s.rem.IsZero() {
		dest.AddUint64(dest, 1)
	}
}

func narrow(x *uint256.Int) (fixedpoint.U128, error) {
	return fixedpoint.FromUint256(x)
}

// --- Public API ---

// GetNextSqrtPriceFromAmount0RoundingUp returns the sqrt price after adding
// (add) or removing amount of token0 at the given liquidity. The result is
// rounded up so the price never moves further than the amount pays for.
func GetNextSqrtPriceFromAmount0RoundingUp(sqrtP fixedpoint.Q64x64, liquidity, amount fixedpoint.U128, add bool) (fixedpoint.Q64x64, error) {
	s := pool.Get().(*SqrtPriceMath)
	defer pool.Put(s)
	return s.getNextSqrtPriceFromAmount0RoundingUp(sqrtP, liquidity, amount, add)
}

// GetNextSqrtPriceFromAmount1RoundingDown returns the sqrt price after adding
// (add) or removing amount of token1 at the given liquidity, rounded down.
func GetNextSqrtPriceFromAmount1RoundingDown(sqrtP fixedpoint.Q64x64, liquidity, amount fixedpoint.U128, add bool) (fixedpoint.Q64x64, error) {
	s := pool.Get().(*SqrtPriceMath)
	defer pool.Put(s)
	return s.getNextSqrtPriceFromAmount1RoundingDown(sqrtP, liquidity, amount, add)
}

// GetNextSqrtPriceFromInput calculates the next sqrt price given an input amount.
func GetNextSqrtPriceFromInput(sqrtP fixedpoint.Q64x64, liquidity, amountIn fixedpoint.U128, zeroForOne bool) (fixedpoint.Q64x64, error) {
	if sqrtP.IsZero() {
		return fixedpoint.Q64x64{}, ErrSqrtPriceZero
	}
	if liquidity.IsZero() {
		return fixedpoint.Q64x64{}, ErrLiquidityZero
	}

	if zeroForOne {
		return GetNextSqrtPriceFromAmount0RoundingUp(sqrtP, liquidity, amountIn, true)
	}
	return GetNextSqrtPriceFromAmount1RoundingDown(sqrtP, liquidity, amountIn, true)
}

// GetNextSqrtPriceFromOutput calculates the next sqrt price given an output amount.
func GetNextSqrtPriceFromOutput(sqrtP fixedpoint.Q64x64, liquidity, amountOut fixedpoint.U128, zeroForOne bool) (fixedpoint.Q64x64, error) {
	if sqrtP.IsZero() {
		return fixedpoint.Q64x64{}, ErrSqrtPriceZero
	}
	if liquidity.IsZero() {
		return fixedpoint.Q64x64{}, ErrLiquidityZero
	}

	if zeroForOne {
		return GetNextSqrtPriceFromAmount1RoundingDown(sqrtP, liquidity, amountOut, false)
	}
	return GetNextSqrtPriceFromAmount0RoundingUp(sqrtP, liquidity, amountOut, false)
}

// GetAmount0Delta calculates liquidity * (1/sqrtA - 1/sqrtB), the token0
// amount between two prices.
func GetAmount0Delta(sqrtA, sqrtB fixedpoint.Q64x64, liquidity fixedpoint.U128, roundUp bool) (fixedpoint.U128, error) {
	s := pool.Get().(*SqrtPriceMath)
	defer pool.Put(s)
	return s.getAmount0Delta(sqrtA, sqrtB, liquidity, roundUp)
}

// GetAmount1Delta calculates liquidity * (sqrtB - sqrtA), the token1 amount
// between two prices.
func GetAmount1Delta(sqrtA, sqrtB fixedpoint.Q64x64, liquidity fixedpoint.U128, roundUp bool) (fixedpoint.U128, error) {
	s := pool.Get().(*SqrtPriceMath)
	defer pool.Put(s)
	return s.getAmount1Delta(sqrtA, sqrtB, liquidity, roundUp)
}

// --- Internal Implementations ---

func (s *SqrtPriceMath) getNextSqrtPriceFromAmount0RoundingUp(sqrtP fixedpoint.Q64x64, liquidity, amount fixedpoint.U128, add bool) (fixedpoint.Q64x64, error) {
	if amount.IsZero() {
		return sqrtP, nil
	}

	price := sqrtP.Value.Uint256()
	s.numerator1.Lsh(liquidity.Uint256(), fixedpoint.Resolution)
	s.product.Mul(amount.Uint256(), price)

	if add {
		if _, overflow := s.denominator.AddOverflow(s.numerator1, s.product); !overflow {
			if err := s.mulDivRoundingUp(s.result, s.numerator1, price, s.denominator); err != nil {
				return fixedpoint.Q64x64{}, err
			}
		} else {
			s.denominator.Div(s.numerator1, price)
			s.denominator.Add(s.denominator, amount.Uint256())
			s.divRoundingUp(s.result, s.numerator1, s.denominator)
		}
	} else {
		if !s.numerator1.Gt(s.product) {
			return fixedpoint.Q64x64{}, ErrReservesExceeded
		}
		s.denominator.Sub(s.numerator1, s.product)
		if err := s.mulDivRoundingUp(s.result, s.numerator1, price, s.denominator); err != nil {
			return fixedpoint.Q64x64{}, err
		}
	}

	v, err := narrow(s.result)
	if err != nil {
		return fixedpoint.Q64x64{}, err
	}
	return fixedpoint.NewQ64x64(v), nil
}

func (s *SqrtPriceMath) getNextSqrtPriceFromAmount1RoundingDown(sqrtP fixedpoint.Q64x64, liquidity, amount fixedpoint.U128, add bool) (fixedpoint.Q64x64, error) {
	if liquidity.IsZero() {
		return fixedpoint.Q64x64{}, ErrLiquidityZero
	}

	s.numerator1.Lsh(amount.Uint256(), fixedpoint.Resolution)
	s.denominator.Set(liquidity.Uint256())
	price := sqrtP.Value.Uint256()

	if add {
		s.term.Div(s.numerator1, s.denominator)
		s.result.Add(price, s.term)
	} else {
		s.divRoundingUp(s.term, s.numerator1, s.denominator)
		if !price.Gt(s.term) {
			return fixedpoint.Q64x64{}, ErrReservesExceeded
		}
		s.result.Sub(price, s.term)
	}

	v, err := narrow(s.result)
	if err != nil {
		return fixedpoint.Q64x64{}, err
	}
	return fixedpoint.NewQ64x64(v), nil
}

func (s *SqrtPriceMath) getAmount0Delta(sqrtA, sqrtB fixedpoint.Q64x64, liquidity fixedpoint.U128, roundUp bool) (fixedpoint.U128, error) {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	if sqrtA.IsZero() {
		return fixedpoint.U128{}, ErrSqrtPriceZero
	}

	a := sqrtA.Value.Uint256()
	b := sqrtB.Value.Uint256()
	s.numerator1.Lsh(liquidity.Uint256(), fixedpoint.Resolution)
	s.numerator2.Sub(b, a)

	if roundUp {
		if err := s.mulDivRoundingUp(s.term, s.numerator1, s.numerator2, b); err != nil {
			return fixedpoint.U128{}, err
		}
		s.divRoundingUp(s.result, s.term, a)
	} else {
		if err := s.mulDiv(s.term, s.numerator1, s.numerator2, b); err != nil {
			return fixedpoint.U128{}, err
		}
		s.result.Div(s.term, a)
	}
	return narrow(s.result)
}

func (s *SqrtPriceMath) getAmount1Delta(sqrtA, sqrtB fixedpoint.Q64x64, liquidity fixedpoint.U128, roundUp bool) (fixedpoint.U128, error) {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}

	s.numerator1.Sub(sqrtB.Value.Uint256(), sqrtA.Value.Uint256())
	s.product.Mul(liquidity.Uint256(), s.numerator1)
	if roundUp {
		s.divRoundingUp(s.result, s.product, q64)
	} else {
		s.result.Div(s.product, q64)
	}
	return narrow(s.result)
}
