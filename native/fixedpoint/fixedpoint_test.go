package fixedpoint

import (
	"errors"
	"math/big"
	"testing"
)

func TestToFromFixedRoundTrip(t *testing.T) {
	m := MustNew(DefaultDecimals)
	cases := []int64{0, 1, -1, 7, 1_000_000, -42_000_000_000}
	for _, c := range cases {
		fixed, err := m.ToFixed(big.NewInt(c))
		if err != nil {
			t.Fatalf("ToFixed(%d): %v", c, err)
		}
		back := m.FromFixed(fixed)
		if back.Int64() != c {
			t.Fatalf("round trip of %d produced %s", c, back)
		}
	}
}

func TestFromFixedTruncatesTowardZero(t *testing.T) {
	m := MustNew(DefaultDecimals)
	half := new(big.Int).Quo(m.Scale(), big.NewInt(2))
	if got := m.FromFixed(half); got.Sign() != 0 {
		t.Fatalf("expected 0.5 to truncate to 0, got %s", got)
	}
	negHalf := new(big.Int).Neg(half)
	if got := m.FromFixed(negHalf); got.Sign() != 0 {
		t.Fatalf("expected -0.5 to truncate to 0, got %s", got)
	}
	almostTwo := new(big.Int).Sub(new(big.Int).Mul(m.Scale(), big.NewInt(2)), big.NewInt(1))
	if got := m.FromFixed(almostTwo); got.Int64() != 1 {
		t.Fatalf("expected 1.999.. to truncate to 1, got %s", got)
	}
}

func TestMulDivInverseWithinTruncation(t *testing.T) {
	m := MustNew(DefaultDecimals)
	value, err := m.ToFixed(big.NewInt(12_345))
	if err != nil {
		t.Fatal(err)
	}
	factor, err := m.ToFixed(big.NewInt(7))
	if err != nil {
		t.Fatal(err)
	}

	product, err := m.Mul(value, factor)
	if err != nil {
		t.Fatal(err)
	}
	quotient, err := m.Div(product, factor)
	if err != nil {
		t.Fatal(err)
	}

	diff := new(big.Int).Sub(value, quotient)
	if diff.CmpAbs(big.NewInt(1)) > 0 {
		t.Fatalf("mul/div inverse drifted by %s (> 1 truncation unit)", diff)
	}
}

func TestOverflowDetection(t *testing.T) {
	m := MustNew(DefaultDecimals)
	nearMax := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))

	if _, err := m.Add(nearMax, big.NewInt(1)); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	nearMin := new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 255))
	if _, err := m.Sub(nearMin, big.NewInt(1)); !errors.Is(err, ErrArithmeticUnderflow) {
		t.Fatalf("expected underflow, got %v", err)
	}
	if _, err := m.ToFixed(nearMax); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected ToFixed overflow, got %v", err)
	}
}

func TestDivByZero(t *testing.T) {
	m := MustNew(DefaultDecimals)
	if _, err := m.Div(big.NewInt(1), big.NewInt(0)); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected division by zero, got %v", err)
	}
	if _, err := m.DivTruncate(big.NewInt(1), nil); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected division by zero, got %v", err)
	}
}

func TestMulTruncateRoundsDown(t *testing.T) {
	m := MustNew(DefaultDecimals)
	// 1/3 as a mantissa fraction.
	third := new(big.Int).Quo(m.Scale(), big.NewInt(3))
	got, err := m.MulTruncate(big.NewInt(100), third)
	if err != nil {
		t.Fatal(err)
	}
	if got.Int64() != 33 {
		t.Fatalf("expected 100 * (1/3) to truncate to 33, got %s", got)
	}
}

func TestNewRejectsZeroScale(t *testing.T) {
	if _, err := New(0); !errors.Is(err, ErrInvalidScale) {
		t.Fatalf("expected invalid scale, got %v", err)
	}
}
