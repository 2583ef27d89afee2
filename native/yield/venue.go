package yield

import (
	"errors"
	"math/big"
	"sync"
)

var (
	// ErrSupplyFailed is returned when the venue rejects a supply call.
	ErrSupplyFailed = errors.New("yield: venue supply failed")
	// ErrRedeemFailed is returned when the venue rejects a redemption.
	ErrRedeemFailed = errors.New("yield: venue redeem failed")
)

// Venue abstracts the external money market the pool supplies into. Live
// deployments bind an on-chain client; tests and local runs use MockVenue.
// Implementations are selected at construction time, never swapped mid-flight.
type Venue interface {
	// Supply deposits underlying into the venue on behalf of the holder.
	Supply(amount *big.Int) error
	// RedeemUnderlying withdraws the given underlying amount.
	RedeemUnderlying(amount *big.Int) error
	// BalanceOfUnderlying reports principal plus accrued interest.
	BalanceOfUnderlying(holder [20]byte) (*big.Int, error)
	// SupplyRatePerBlock returns the venue's current per-block rate as a
	// 1e18 mantissa fraction.
	SupplyRatePerBlock() (*big.Int, error)
}

// MockVenue is an in-memory venue with settable rate, manual interest accrual
// and failure injection. It backs engine tests and the local daemon mode.
type MockVenue struct {
	mu sync.Mutex

	supplied     *big.Int
	ratePerBlock *big.Int

	// FailSupply and FailRedeem force the next matching call to fail.
	FailSupply bool
	FailRedeem bool
}

// NewMockVenue constructs an empty mock venue with a zero rate.
func NewMockVenue() *MockVenue {
	return &MockVenue{
		supplied:     big.NewInt(0),
		ratePerBlock: big.NewInt(0),
	}
}

func (v *MockVenue) Supply(amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.FailSupply {
		return ErrSupplyFailed
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrSupplyFailed
	}
	v.supplied.Add(v.supplied, amount)
	return nil
}

func (v *MockVenue) RedeemUnderlying(amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.FailRedeem {
		return ErrRedeemFailed
	}
	if amount == nil || amount.Sign() < 0 || v.supplied.Cmp(amount) < 0 {
		return ErrRedeemFailed
	}
	v.supplied.Sub(v.supplied, amount)
	return nil
}

func (v *MockVenue) BalanceOfUnderlying([20]byte) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.supplied), nil
}

func (v *MockVenue) SupplyRatePerBlock() (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.ratePerBlock), nil
}

// SetRatePerBlock overrides the reported per-block rate mantissa.
func (v *MockVenue) SetRatePerBlock(rate *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if rate == nil {
		v.ratePerBlock = big.NewInt(0)
		return
	}
	v.ratePerBlock = new(big.Int).Set(rate)
}

// AccrueInterest credits the supplied balance directly, simulating venue
// yield between pool operations.
func (v *MockVenue) AccrueInterest(amount *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	v.supplied.Add(v.supplied, amount)
}
