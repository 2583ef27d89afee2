package prizepool

import "errors"

var (
	errNilState  = errors.New("prizepool engine: state not configured")
	errNilParams = errors.New("prizepool engine: params not configured")
	errNilVenue  = errors.New("prizepool engine: yield venue not configured")

	// ErrInvalidState rejects an operation that is illegal in the pool's
	// current lifecycle state.
	ErrInvalidState = errors.New("prizepool engine: operation invalid in current state")
	// ErrUnauthorized rejects a non-owner calling an owner-only operation.
	ErrUnauthorized = errors.New("prizepool engine: caller is not the pool owner")
	// ErrInvalidAmount rejects non-positive deposits and ticket counts.
	ErrInvalidAmount = errors.New("prizepool engine: amount must be positive")
	// ErrInsufficientBalance rejects a deposit exceeding the buyer's balance.
	ErrInsufficientBalance = errors.New("prizepool engine: insufficient balance")
	// ErrPoolSizeExceeded rejects a deposit that would push the pool above
	// the interest-adjusted safe ceiling.
	ErrPoolSizeExceeded = errors.New("prizepool engine: pool size exceeded")
	// ErrSecretMismatch rejects an unlock whose revealed secret does not hash
	// to the committed value.
	ErrSecretMismatch = errors.New("prizepool engine: revealed secret does not match commitment")
	// ErrSecretNotCommitted rejects a lock before any secret hash was
	// committed.
	ErrSecretNotCommitted = errors.New("prizepool engine: no secret hash committed")
	// ErrLockBoundaryNotReached rejects a lock before the configured boundary.
	ErrLockBoundaryNotReached = errors.New("prizepool engine: lock boundary not reached")
	// ErrUnlockBoundaryNotReached rejects an unlock before the boundary.
	ErrUnlockBoundaryNotReached = errors.New("prizepool engine: unlock boundary not reached")
	// ErrSupplyFailed marks a fatal venue supply failure during lock.
	ErrSupplyFailed = errors.New("prizepool engine: venue supply failed")
	// ErrRedeemFailed marks a fatal venue redemption failure during unlock.
	ErrRedeemFailed = errors.New("prizepool engine: venue redeem failed")
	// ErrRandomnessNotReady rejects completing an award whose randomness
	// request is still outstanding.
	ErrRandomnessNotReady = errors.New("prizepool engine: randomness not ready")
	// ErrRandomnessAlreadyRequested enforces the single-slot randomness
	// request: a new award cannot start while one is in flight.
	ErrRandomnessAlreadyRequested = errors.New("prizepool engine: randomness already requested")
	// ErrReentrantCall rejects a nested mutating call against the same pool.
	ErrReentrantCall = errors.New("prizepool engine: reentrant call")
	// ErrNoEntry rejects a withdrawal by an address that never deposited.
	ErrNoEntry = errors.New("prizepool engine: no entry for caller")
	// ErrAlreadyWithdrawn rejects a second withdrawal by the same entry.
	ErrAlreadyWithdrawn = errors.New("prizepool engine: entry already withdrawn")
)
