package fixedpoint

import (
	"errors"
	"math/big"
)

var (
	// ErrArithmeticOverflow is returned when an operation would exceed the
	// representable signed range instead of wrapping.
	ErrArithmeticOverflow = errors.New("fixedpoint: arithmetic overflow")
	// ErrArithmeticUnderflow is returned when an operation would fall below
	// the representable signed range.
	ErrArithmeticUnderflow = errors.New("fixedpoint: arithmetic underflow")
	// ErrDivisionByZero is returned by Div when the divisor is zero.
	ErrDivisionByZero = errors.New("fixedpoint: division by zero")
	// ErrInvalidScale is returned when constructing math with a zero scale.
	ErrInvalidScale = errors.New("fixedpoint: scale must be a positive power of ten")
)

// DefaultDecimals is the mantissa scale used across the pool for rates and
// fractions. Legacy ledgers used 1e24 for balances; one configurable scale
// replaces the historical split.
const DefaultDecimals = 18

var (
	one = big.NewInt(1)
	// Bounds of a 256-bit signed integer, matching on-chain word width.
	maxInt256 = new(big.Int).Sub(new(big.Int).Lsh(one, 255), one)
	minInt256 = new(big.Int).Neg(new(big.Int).Lsh(one, 255))
)

// Math performs deterministic fixed-point arithmetic at a fixed decimal scale.
// All results are truncated toward zero, never rounded, so repeated
// application cannot drift in either party's favour.
type Math struct {
	scale *big.Int
}

// New constructs fixed-point math scaled by 10^decimals.
func New(decimals uint) (*Math, error) {
	if decimals == 0 {
		return nil, ErrInvalidScale
	}
	scale := new(big.Int).Exp(big.NewInt(10), new(big.Int).SetUint64(uint64(decimals)), nil)
	return &Math{scale: scale}, nil
}

// MustNew is New for package-level defaults where the scale is a constant.
func MustNew(decimals uint) *Math {
	m, err := New(decimals)
	if err != nil {
		panic(err)
	}
	return m
}

// Scale returns a copy of the scaling factor 10^decimals.
func (m *Math) Scale() *big.Int {
	return new(big.Int).Set(m.scale)
}

// ToFixed converts an integer quantity into its fixed-point representation.
func (m *Math) ToFixed(x *big.Int) (*big.Int, error) {
	if x == nil {
		return big.NewInt(0), nil
	}
	scaled := new(big.Int).Mul(x, m.scale)
	return m.checked(scaled)
}

// FromFixed converts a fixed-point value back to an integer quantity using
// truncating division toward zero. Truncation (not rounding) is load-bearing:
// round-trip tests depend on bit-exact behaviour.
func (m *Math) FromFixed(f *big.Int) *big.Int {
	if f == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Quo(f, m.scale)
}

// Add returns a+b with overflow detection.
func (m *Math) Add(a, b *big.Int) (*big.Int, error) {
	return m.checked(new(big.Int).Add(nz(a), nz(b)))
}

// Sub returns a-b with underflow detection.
func (m *Math) Sub(a, b *big.Int) (*big.Int, error) {
	return m.checked(new(big.Int).Sub(nz(a), nz(b)))
}

// Mul multiplies two fixed-point values and scales the product back down by
// one factor, truncating toward zero.
func (m *Math) Mul(a, b *big.Int) (*big.Int, error) {
	product := new(big.Int).Mul(nz(a), nz(b))
	product.Quo(product, m.scale)
	return m.checked(product)
}

// Div scales the dividend up by one factor before integer division so the
// quotient stays in fixed-point representation.
func (m *Math) Div(a, b *big.Int) (*big.Int, error) {
	if b == nil || b.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	scaled := new(big.Int).Mul(nz(a), m.scale)
	scaled.Quo(scaled, b)
	return m.checked(scaled)
}

// MulTruncate applies a mantissa fraction to an integer amount, rounding
// down. Used for fee fractions and rate application so compounding never
// systematically favours the pool or the participant.
func (m *Math) MulTruncate(amount, mantissa *big.Int) (*big.Int, error) {
	product := new(big.Int).Mul(nz(amount), nz(mantissa))
	product.Quo(product, m.scale)
	return m.checked(product)
}

// DivTruncate divides an integer amount by a mantissa fraction, rounding down.
func (m *Math) DivTruncate(amount, mantissa *big.Int) (*big.Int, error) {
	if mantissa == nil || mantissa.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	scaled := new(big.Int).Mul(nz(amount), m.scale)
	scaled.Quo(scaled, mantissa)
	return m.checked(scaled)
}

func (m *Math) checked(v *big.Int) (*big.Int, error) {
	if v.Cmp(maxInt256) > 0 {
		return nil, ErrArithmeticOverflow
	}
	if v.Cmp(minInt256) < 0 {
		return nil, ErrArithmeticUnderflow
	}
	return v, nil
}

func nz(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

// MustBigInt parses a decimal constant, panicking on malformed input. Reserved
// for package-level constants.
func MustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}
