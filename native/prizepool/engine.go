package prizepool

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"prizevault/core/events"
	"prizevault/core/types"
	"prizevault/crypto"
	nativecommon "prizevault/native/common"
	"prizevault/native/fixedpoint"
	"prizevault/native/sortition"
	"prizevault/native/yield"
)

const moduleName = "prizepool"

// safetyMargin doubles the estimated interest fraction when sizing the pool
// ceiling so that rate increases during the lock period cannot push the
// settled balance past the global overflow ceiling.
const safetyMargin = 2

type engineState interface {
	GetPool() (*Pool, error)
	PutPool(*Pool) error
	GetEntry(addr crypto.Address) (*Entry, error)
	PutEntry(*Entry) error
	ListEntries() ([]*Entry, error)
	GetDraw() (*Draw, error)
	PutDraw(*Draw) error
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, account *types.Account) error
}

// Engine orchestrates the prize pool lifecycle: deposits, locking, the
// commit-reveal draw and withdrawals. It owns the sortition tree exclusively;
// no other component mutates weights.
type Engine struct {
	state         engineState
	owner         crypto.Address
	moduleAddress crypto.Address
	params        *Params

	accounting *yield.Accounting
	randomness RandomnessSource
	tree       *sortition.Tree
	math       *fixedpoint.Math
	emitter    events.Emitter
	pauses     nativecommon.PauseView

	blockHeight uint64
	blockHashFn func(uint64) [32]byte

	// entered guards every mutating entry point against nested calls while a
	// mutation is in progress. Execution is single-threaded by construction,
	// so a plain flag suffices; it is released on every exit path.
	entered bool
}

// NewEngine constructs a pool engine owned by the given operator address. The
// module address is the ledger account holding pooled funds.
func NewEngine(owner, moduleAddr crypto.Address, params *Params) (*Engine, error) {
	if params == nil {
		return nil, errNilParams
	}
	branching := params.Branching
	if branching < 2 {
		branching = 2
	}
	tree, err := sortition.New(branching)
	if err != nil {
		return nil, err
	}
	return &Engine{
		owner:         owner,
		moduleAddress: moduleAddr,
		params:        params.Clone(),
		tree:          tree,
		math:          fixedpoint.MustNew(fixedpoint.DefaultDecimals),
		emitter:       events.NoopEmitter{},
		blockHashFn:   defaultBlockHash,
	}, nil
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetYield wires the yield accounting layer (venue selected at construction).
func (e *Engine) SetYield(accounting *yield.Accounting) { e.accounting = accounting }

// SetRandomness wires the randomness source used by periodic awards.
func (e *Engine) SetRandomness(source RandomnessSource) { e.randomness = source }

// SetPauses wires the operator pause switchboard.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetBlockHeight records the block height used for boundary checks.
func (e *Engine) SetBlockHeight(height uint64) {
	if e == nil {
		return
	}
	e.blockHeight = height
}

// SetBlockHashFn overrides the block hash source. Primarily for tests and
// the local daemon, which have no real chain behind them.
func (e *Engine) SetBlockHashFn(fn func(uint64) [32]byte) {
	if fn == nil {
		e.blockHashFn = defaultBlockHash
		return
	}
	e.blockHashFn = fn
}

// Params returns a copy of the engine's configured parameters.
func (e *Engine) Params() *Params { return e.params.Clone() }

// Owner returns the pool operator address.
func (e *Engine) Owner() crypto.Address { return e.owner }

// Rehydrate rebuilds the in-memory sortition tree from persisted entries.
// Called once at startup before the engine serves traffic.
func (e *Engine) Rehydrate() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	entries, err := e.state.ListEntries()
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry == nil || entry.Withdrawn {
			continue
		}
		if entry.Deposit == nil || entry.Deposit.Sign() <= 0 {
			continue
		}
		if err := e.tree.Set(leafKey(entry.Address), entry.Deposit); err != nil {
			return err
		}
	}
	return nil
}

// --- deposits ---

// BuyTickets purchases count tickets at the configured ticket price and
// deposits the total.
func (e *Engine) BuyTickets(buyer crypto.Address, count uint64) (*big.Int, error) {
	if count == 0 {
		return nil, ErrInvalidAmount
	}
	if e == nil || e.params == nil || e.params.TicketPrice == nil {
		return nil, errNilParams
	}
	total := new(big.Int).Mul(e.params.TicketPrice, new(big.Int).SetUint64(count))
	if err := e.deposit(buyer, total, count); err != nil {
		return nil, err
	}
	return total, nil
}

// Deposit adds the given underlying amount to the buyer's entry.
func (e *Engine) Deposit(buyer crypto.Address, amount *big.Int) error {
	return e.deposit(buyer, amount, 0)
}

func (e *Engine) deposit(buyer crypto.Address, amount *big.Int, tickets uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	if pool.State != StateOpen {
		return ErrInvalidState
	}

	newTotal := new(big.Int).Add(pool.TotalDeposited, amount)
	maxSize, err := e.maxPoolSize()
	if err != nil {
		return err
	}
	if newTotal.Cmp(maxSize) > 0 {
		return ErrPoolSizeExceeded
	}

	buyerAcc, err := e.loadAccount(buyer)
	if err != nil {
		return err
	}
	if buyerAcc.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	moduleAcc, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return err
	}

	// Periodic pools supply every deposit straight to the venue; single-draw
	// pools hold funds in the module account until Lock.
	if e.params.Mode == ModePeriodic {
		if e.accounting == nil {
			return errNilVenue
		}
		if _, err := e.accounting.Supply(amount); err != nil {
			return fmt.Errorf("%w: %v", ErrSupplyFailed, err)
		}
	}

	entry, err := e.loadEntry(buyer)
	if err != nil {
		return err
	}
	entry.Deposit = new(big.Int).Add(entry.Deposit, amount)
	entry.Withdrawn = false

	buyerAcc.Balance = new(big.Int).Sub(buyerAcc.Balance, amount)
	moduleAcc.Balance = new(big.Int).Add(moduleAcc.Balance, amount)
	pool.TotalDeposited = newTotal

	if err := e.persistAccount(buyer, buyerAcc); err != nil {
		return err
	}
	if err := e.persistAccount(e.moduleAddress, moduleAcc); err != nil {
		return err
	}
	if err := e.state.PutEntry(entry); err != nil {
		return err
	}
	if err := e.state.PutPool(pool); err != nil {
		return err
	}
	if err := e.tree.Set(leafKey(buyer), entry.Deposit); err != nil {
		return err
	}

	e.emitter.Emit(events.PoolTicketsPurchased{
		Buyer:      leafKey(buyer),
		Count:      tickets,
		TotalPrice: new(big.Int).Set(amount),
	})
	return nil
}

// maxPoolSize applies the interest-adjusted ceiling:
// ceiling / (1 + safetyMargin * estimatedInterestFraction). The doubled
// margin absorbs rate increases while the pool is locked.
func (e *Engine) maxPoolSize() (*big.Int, error) {
	ceiling := e.params.GlobalCeiling
	if ceiling == nil || ceiling.Sign() <= 0 {
		// No ceiling configured: effectively unbounded.
		return fixedpoint.MustBigInt("57896044618658097711785492504343953926634992332820282019728792003956564819967"), nil
	}
	fraction := big.NewInt(0)
	if e.accounting != nil {
		rate, err := e.accounting.RatePerBlock()
		if err != nil {
			return nil, err
		}
		duration := e.params.LockDurationBlocks
		if e.params.Mode == ModePeriodic {
			duration = e.params.PrizePeriodBlocks
		}
		fraction = new(big.Int).Mul(rate, new(big.Int).SetUint64(duration))
	}
	denom := new(big.Int).Add(e.math.Scale(), new(big.Int).Mul(fraction, big.NewInt(safetyMargin)))
	return e.math.DivTruncate(ceiling, denom)
}

// --- commit / lock / unlock (single-draw lifecycle) ---

// CommitSecret records the hash of the operator's draw secret. Legal only
// while the pool is open; the commitment may be replaced until Lock.
func (e *Engine) CommitSecret(caller crypto.Address, hash [32]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if !e.isOwner(caller) {
		return ErrUnauthorized
	}
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	if pool.State != StateOpen {
		return ErrInvalidState
	}
	if hash == ([32]byte{}) {
		return ErrSecretNotCommitted
	}
	pool.SecretHash = hash
	return e.state.PutPool(pool)
}

// Lock supplies the entire pooled balance to the yield venue and closes the
// pool to deposits. A venue supply failure is fatal and rolls the transition
// back.
func (e *Engine) Lock(caller crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if !e.isOwner(caller) {
		return ErrUnauthorized
	}
	if e.accounting == nil {
		return errNilVenue
	}

	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	if pool.State != StateOpen {
		return ErrInvalidState
	}
	if pool.SecretHash == ([32]byte{}) {
		return ErrSecretNotCommitted
	}
	if e.params.LockAfterBlock > 0 && e.blockHeight < e.params.LockAfterBlock {
		return ErrLockBoundaryNotReached
	}

	// Supply before touching state so a venue failure leaves the pool Open.
	if pool.TotalDeposited.Sign() > 0 {
		if _, err := e.accounting.Supply(pool.TotalDeposited); err != nil {
			return fmt.Errorf("%w: %v", ErrSupplyFailed, err)
		}
	}

	pool.State = StateLocked
	pool.LockedAtBlock = e.blockHeight
	pool.UnlockAtBlock = e.blockHeight + e.params.LockDurationBlocks
	pool.LockBlockHash = e.blockHashFn(e.blockHeight)

	if err := e.state.PutPool(pool); err != nil {
		return err
	}
	e.emitter.Emit(events.PoolLocked{
		Owner:         leafKey(e.owner),
		TotalDeposits: new(big.Int).Set(pool.TotalDeposited),
		UnlockBlock:   pool.UnlockAtBlock,
	})
	return nil
}

// Unlock redeems the pooled balance plus interest, verifies the revealed
// secret against the commitment, settles the fee and draws the winner.
func (e *Engine) Unlock(caller crypto.Address, secret [32]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if !e.isOwner(caller) {
		return ErrUnauthorized
	}
	if e.accounting == nil {
		return errNilVenue
	}

	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	if pool.State != StateLocked {
		return ErrInvalidState
	}
	if e.blockHeight < pool.UnlockAtBlock {
		return ErrUnlockBoundaryNotReached
	}
	if !bytes.Equal(ethcrypto.Keccak256(secret[:]), pool.SecretHash[:]) {
		return ErrSecretMismatch
	}

	balance, err := e.accounting.Balance()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedeemFailed, err)
	}
	if balance.Sign() > 0 {
		if err := e.accounting.Redeem(balance); err != nil {
			return fmt.Errorf("%w: %v", ErrRedeemFailed, err)
		}
	}

	gross := new(big.Int).Sub(balance, pool.TotalDeposited)
	if gross.Sign() < 0 {
		gross = big.NewInt(0)
	}
	fee, err := e.feeFor(gross)
	if err != nil {
		return err
	}
	prize := new(big.Int).Sub(gross, fee)

	moduleAcc, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return err
	}
	// Redeemed interest lands in the module account; principal was already
	// there before Lock supplied it out.
	moduleAcc.Balance = new(big.Int).Add(moduleAcc.Balance, gross)

	if fee.Sign() > 0 {
		ownerAcc, err := e.loadAccount(e.owner)
		if err != nil {
			return err
		}
		moduleAcc.Balance = new(big.Int).Sub(moduleAcc.Balance, fee)
		ownerAcc.Balance = new(big.Int).Add(ownerAcc.Balance, fee)
		if err := e.persistAccount(e.owner, ownerAcc); err != nil {
			return err
		}
	}
	if err := e.persistAccount(e.moduleAddress, moduleAcc); err != nil {
		return err
	}

	pool.Secret = secret
	pool.FinalSettledAmount = new(big.Int).Sub(balance, fee)
	pool.Prize = prize
	pool.State = StateComplete

	entropy := sortition.CombineEntropy(pool.LockBlockHash, secret)
	total := e.tree.TotalWeight()
	if total.Sign() > 0 {
		value, err := sortition.ReduceEntropy(entropy, total)
		if err != nil {
			return err
		}
		winner, err := e.tree.Draw(value)
		if err != nil {
			return err
		}
		pool.Winner = winner
		pool.HasWinner = true
	}

	if err := e.state.PutPool(pool); err != nil {
		return err
	}

	e.emitter.Emit(events.PoolUnlocked{
		Owner:         leafKey(e.owner),
		SettledAmount: new(big.Int).Set(pool.FinalSettledAmount),
		GrossWinnings: gross,
		Fee:           fee,
	})
	if pool.HasWinner {
		e.emitter.Emit(events.PoolPrizeAwarded{
			Winner:  pool.Winner,
			Prize:   new(big.Int).Set(prize),
			Fee:     fee,
			Entropy: entropy,
		})
	}
	return nil
}

// --- withdrawal ---

// Withdraw pays out the caller's entitlement: their deposit plus the prize if
// they won. The entry is zeroed before any transfer so a nested call cannot
// withdraw twice.
func (e *Engine) Withdraw(caller crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()

	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	// Single-draw pools pay out only after settlement; periodic pools allow
	// withdrawal in any state.
	if e.params.Mode == ModeSingle && pool.State != StateComplete {
		return nil, ErrInvalidState
	}

	entry, err := e.state.GetEntry(caller)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrNoEntry
	}
	if entry.Withdrawn {
		return nil, ErrAlreadyWithdrawn
	}
	entry = ensureEntry(entry, caller)

	entitlement := new(big.Int).Set(entry.Deposit)
	if pool.HasWinner && pool.Winner == leafKey(caller) && pool.Prize.Sign() > 0 {
		entitlement.Add(entitlement, pool.Prize)
		pool.Prize = big.NewInt(0)
	}

	// Zero the entry before moving funds.
	withdrawn := new(big.Int).Set(entry.Deposit)
	entry.Deposit = big.NewInt(0)
	entry.Withdrawn = true
	if err := e.tree.Set(leafKey(caller), big.NewInt(0)); err != nil {
		return nil, err
	}
	if err := e.state.PutEntry(entry); err != nil {
		return nil, err
	}

	if e.params.Mode == ModePeriodic && entitlement.Sign() > 0 {
		if e.accounting == nil {
			return nil, errNilVenue
		}
		if err := e.accounting.Redeem(entitlement); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedeemFailed, err)
		}
	}

	moduleAcc, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return nil, err
	}
	callerAcc, err := e.loadAccount(caller)
	if err != nil {
		return nil, err
	}
	moduleAcc.Balance = new(big.Int).Sub(moduleAcc.Balance, entitlement)
	callerAcc.Balance = new(big.Int).Add(callerAcc.Balance, entitlement)

	if err := e.persistAccount(e.moduleAddress, moduleAcc); err != nil {
		return nil, err
	}
	if err := e.persistAccount(caller, callerAcc); err != nil {
		return nil, err
	}

	pool.TotalDeposited = new(big.Int).Sub(pool.TotalDeposited, withdrawn)
	if pool.TotalDeposited.Sign() < 0 {
		pool.TotalDeposited = big.NewInt(0)
	}
	if err := e.state.PutPool(pool); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.PoolWithdrawn{
		Participant: leafKey(caller),
		Amount:      new(big.Int).Set(entitlement),
	})
	return entitlement, nil
}

// --- queries ---

// PoolRecord returns a copy of the persisted pool state.
func (e *Engine) PoolRecord() (*Pool, error) {
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	clone := *pool
	clone.TotalDeposited = new(big.Int).Set(pool.TotalDeposited)
	clone.FinalSettledAmount = new(big.Int).Set(pool.FinalSettledAmount)
	clone.Prize = new(big.Int).Set(pool.Prize)
	return &clone, nil
}

// EntryOf returns a copy of the caller's entry, or ErrNoEntry.
func (e *Engine) EntryOf(addr crypto.Address) (*Entry, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	entry, err := e.state.GetEntry(addr)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrNoEntry
	}
	entry = ensureEntry(entry, addr)
	return &Entry{
		Address:   addr,
		Deposit:   new(big.Int).Set(entry.Deposit),
		Withdrawn: entry.Withdrawn,
	}, nil
}

// TotalWeight exposes the sortition tree's root sum.
func (e *Engine) TotalWeight() *big.Int { return e.tree.TotalWeight() }

// CurrentInterest reports the interest accrued on the pooled deposit so far.
func (e *Engine) CurrentInterest() (*big.Int, error) {
	if e.accounting == nil {
		return nil, errNilVenue
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	if pool.State == StateOpen && e.params.Mode == ModeSingle {
		// Nothing supplied yet; no interest can have accrued.
		return big.NewInt(0), nil
	}
	balance, err := e.accounting.Balance()
	if err != nil {
		return nil, err
	}
	interest := new(big.Int).Sub(balance, pool.TotalDeposited)
	if interest.Sign() < 0 {
		return big.NewInt(0), nil
	}
	return interest, nil
}

// --- helpers ---

func (e *Engine) enter() error {
	if e.entered {
		return ErrReentrantCall
	}
	e.entered = true
	return nil
}

func (e *Engine) exit() { e.entered = false }

func (e *Engine) isOwner(caller crypto.Address) bool {
	return bytes.Equal(caller.Bytes(), e.owner.Bytes())
}

func (e *Engine) feeFor(gross *big.Int) (*big.Int, error) {
	if e.params.FeeFraction == nil || e.params.FeeFraction.Sign() == 0 || gross.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	return e.math.MulTruncate(gross, e.params.FeeFraction)
}

func (e *Engine) loadPool() (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pool, err := e.state.GetPool()
	if err != nil {
		return nil, err
	}
	return ensurePool(pool), nil
}

func (e *Engine) loadEntry(addr crypto.Address) (*Entry, error) {
	entry, err := e.state.GetEntry(addr)
	if err != nil {
		return nil, err
	}
	return ensureEntry(entry, addr), nil
}

func (e *Engine) loadAccount(addr crypto.Address) (*types.Account, error) {
	acc, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return types.EnsureAccount(acc), nil
}

func (e *Engine) persistAccount(addr crypto.Address, acc *types.Account) error {
	return e.state.PutAccount(addr, acc)
}

func (e *Engine) addressFor(key [20]byte) crypto.Address {
	return crypto.NewAddress(crypto.PoolPrefix, append([]byte(nil), key[:]...))
}

func leafKey(addr crypto.Address) [20]byte {
	var key [20]byte
	copy(key[:], addr.Bytes())
	return key
}

func defaultBlockHash(height uint64) [32]byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], height)
	var hash [32]byte
	copy(hash[:], ethcrypto.Keccak256(buf[:]))
	return hash
}
