package yield

import (
	"errors"
	"math/big"

	"prizevault/native/fixedpoint"
)

var errNilVenue = errors.New("yield accounting: venue not configured")

// Accounting wraps a Venue with deterministic share/value conversion and
// interest computation. Share prices are tracked as a 1e18 mantissa exchange
// rate: exchangeRate = underlyingValue / shareSupply, defined as 1.0 when no
// shares have been minted so conversions never divide by zero.
type Accounting struct {
	venue  Venue
	math   *fixedpoint.Math
	holder [20]byte

	shareSupply     *big.Int
	underlyingValue *big.Int
}

// NewAccounting wires the accounting layer to a venue. The holder address is
// the pool's module account at the venue.
func NewAccounting(venue Venue, holder [20]byte) *Accounting {
	return &Accounting{
		venue:           venue,
		math:            fixedpoint.MustNew(fixedpoint.DefaultDecimals),
		holder:          holder,
		shareSupply:     big.NewInt(0),
		underlyingValue: big.NewInt(0),
	}
}

// ExchangeRate returns the current underlying-per-share mantissa. With no
// shares outstanding the rate is 1.0 to keep conversions total.
func (a *Accounting) ExchangeRate() *big.Int {
	if a.shareSupply.Sign() == 0 {
		return a.math.Scale()
	}
	// underlying * 1e18 / shares, truncated: the mantissa rate directly.
	rate, err := a.math.DivTruncate(a.underlyingValue, a.shareSupply)
	if err != nil {
		return a.math.Scale()
	}
	return rate
}

// ValueOfShares converts a share amount to its underlying value at the
// current exchange rate, rounding down.
func (a *Accounting) ValueOfShares(shares *big.Int) (*big.Int, error) {
	return a.math.MulTruncate(shares, a.ExchangeRate())
}

// SharesForValue converts an underlying amount to shares at the current
// exchange rate, rounding down.
func (a *Accounting) SharesForValue(value *big.Int) (*big.Int, error) {
	return a.math.DivTruncate(value, a.ExchangeRate())
}

// Supply forwards underlying into the venue and mints shares at the current
// exchange rate. The minted share count is returned.
func (a *Accounting) Supply(amount *big.Int) (*big.Int, error) {
	if a.venue == nil {
		return nil, errNilVenue
	}
	shares, err := a.SharesForValue(amount)
	if err != nil {
		return nil, err
	}
	if err := a.venue.Supply(amount); err != nil {
		return nil, err
	}
	a.shareSupply = new(big.Int).Add(a.shareSupply, shares)
	a.underlyingValue = new(big.Int).Add(a.underlyingValue, amount)
	return shares, nil
}

// Redeem withdraws the given underlying amount from the venue and burns the
// corresponding shares.
func (a *Accounting) Redeem(amount *big.Int) error {
	if a.venue == nil {
		return errNilVenue
	}
	shares, err := a.SharesForValue(amount)
	if err != nil {
		return err
	}
	if err := a.venue.RedeemUnderlying(amount); err != nil {
		return err
	}
	if shares.Cmp(a.shareSupply) > 0 {
		shares = new(big.Int).Set(a.shareSupply)
	}
	a.shareSupply = new(big.Int).Sub(a.shareSupply, shares)
	a.underlyingValue = new(big.Int).Sub(a.underlyingValue, amount)
	if a.underlyingValue.Sign() < 0 {
		a.underlyingValue = big.NewInt(0)
	}
	return nil
}

// Balance reports the venue's view of principal plus accrued interest and
// refreshes the tracked underlying value.
func (a *Accounting) Balance() (*big.Int, error) {
	if a.venue == nil {
		return nil, errNilVenue
	}
	balance, err := a.venue.BalanceOfUnderlying(a.holder)
	if err != nil {
		return nil, err
	}
	a.underlyingValue = new(big.Int).Set(balance)
	return new(big.Int).Set(balance), nil
}

// CurrentInterest reports the interest accrued on top of the deposited
// principal: deposited x exchangeRate - deposited, floored at zero.
func (a *Accounting) CurrentInterest(deposited *big.Int) (*big.Int, error) {
	if deposited == nil || deposited.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	grown, err := a.math.MulTruncate(deposited, a.ExchangeRate())
	if err != nil {
		return nil, err
	}
	interest := new(big.Int).Sub(grown, deposited)
	if interest.Sign() < 0 {
		return big.NewInt(0), nil
	}
	return interest, nil
}

// EstimateRemainingInterest extrapolates the venue's current per-block rate
// linearly over the given number of blocks. It is an estimate only: the venue
// may change its rate at any block, so callers must not treat the result as a
// guarantee.
func (a *Accounting) EstimateRemainingInterest(principal *big.Int, blocks uint64) (*big.Int, error) {
	if a.venue == nil {
		return nil, errNilVenue
	}
	if principal == nil || principal.Sign() <= 0 || blocks == 0 {
		return big.NewInt(0), nil
	}
	rate, err := a.venue.SupplyRatePerBlock()
	if err != nil {
		return nil, err
	}
	accrual := new(big.Int).Mul(rate, new(big.Int).SetUint64(blocks))
	return a.math.MulTruncate(principal, accrual)
}

// RatePerBlock surfaces the venue's current rate for callers sizing deposit
// ceilings.
func (a *Accounting) RatePerBlock() (*big.Int, error) {
	if a.venue == nil {
		return nil, errNilVenue
	}
	return a.venue.SupplyRatePerBlock()
}

// ShareSupply returns the tracked share supply.
func (a *Accounting) ShareSupply() *big.Int {
	return new(big.Int).Set(a.shareSupply)
}
