package prizepool

import (
	"math/big"

	"prizevault/crypto"
)

// State is the pool lifecycle state.
type State uint8

const (
	// StateOpen accepts deposits and ticket purchases.
	StateOpen State = iota
	// StateLocked holds the pooled balance at the yield venue until the
	// unlock boundary passes and the committed secret is revealed.
	StateLocked
	// StateComplete is terminal for single-draw pools: the prize has been
	// settled and entries may withdraw.
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateLocked:
		return "locked"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Mode selects the lifecycle shape. The two historical cores (single-shot
// Pool and rolling PeriodicPrizePool) share one engine; the mode only decides
// whether settlement terminates the pool or rolls into the next epoch.
type Mode uint8

const (
	// ModeSingle runs one Open -> Locked -> Complete cycle.
	ModeSingle Mode = iota
	// ModePeriodic awards the accrued interest every prize period and keeps
	// the pool open.
	ModePeriodic
)

// Entry records one participant's position. An entry persists after its
// deposit is zeroed; the Withdrawn flag distinguishes a settled entry from a
// never-seen address.
type Entry struct {
	Address   crypto.Address
	Deposit   *big.Int
	Withdrawn bool
}

// Pool is the singleton lifecycle record for a deployed pool.
type Pool struct {
	State State
	// TotalDeposited must equal the sum of all live entry deposits at all
	// times; the state layer's invariant test recomputes it.
	TotalDeposited *big.Int

	// LockedAtBlock and UnlockAtBlock bound the locked phase.
	LockedAtBlock uint64
	UnlockAtBlock uint64
	// LockBlockHash is the historical block hash captured at the lock
	// boundary, one of the two entropy contributions.
	LockBlockHash [32]byte

	// SecretHash is the commit half of the commit-reveal scheme; Secret is
	// populated at reveal time.
	SecretHash [32]byte
	Secret     [32]byte

	// FinalSettledAmount is set exactly once, at settlement.
	FinalSettledAmount *big.Int

	// Winner and Prize are populated when a draw selects a winner.
	Winner    [20]byte
	HasWinner bool
	Prize     *big.Int
}

// Draw represents one prize epoch in periodic mode. It is reset in place when
// an award completes, never destroyed.
type Draw struct {
	ID            uint64
	OpenedAtBlock uint64
	// CarriedPrize accumulates interest from epochs that ended with zero
	// total weight.
	CarriedPrize *big.Int
	// RequestID correlates an outstanding randomness request; empty means no
	// request is in flight. At most one request may be outstanding.
	RequestID string
}

// Params groups the operator-configured pool parameters.
type Params struct {
	// TicketPrice is the underlying cost of one ticket.
	TicketPrice *big.Int
	// FeeFraction is the 1e18 mantissa share of gross winnings routed to the
	// pool owner.
	FeeFraction *big.Int
	// GlobalCeiling bounds the pool before interest-rate adjustment.
	GlobalCeiling *big.Int
	// LockAfterBlock is the earliest block at which locking is legal. Zero
	// configures anytime-locking: Lock succeeds immediately and records the
	// current block as the boundary.
	LockAfterBlock uint64
	// LockDurationBlocks is the distance from lock to the unlock boundary.
	LockDurationBlocks uint64
	// PrizePeriodBlocks is the epoch length in periodic mode.
	PrizePeriodBlocks uint64
	// Branching is the sortition tree fan-out, minimum 2.
	Branching int
	Mode      Mode
}

// Clone returns a deep copy of the params.
func (p *Params) Clone() *Params {
	if p == nil {
		return nil
	}
	clone := *p
	if p.TicketPrice != nil {
		clone.TicketPrice = new(big.Int).Set(p.TicketPrice)
	}
	if p.FeeFraction != nil {
		clone.FeeFraction = new(big.Int).Set(p.FeeFraction)
	}
	if p.GlobalCeiling != nil {
		clone.GlobalCeiling = new(big.Int).Set(p.GlobalCeiling)
	}
	return &clone
}

func ensurePool(pool *Pool) *Pool {
	if pool == nil {
		pool = &Pool{State: StateOpen}
	}
	if pool.TotalDeposited == nil {
		pool.TotalDeposited = big.NewInt(0)
	}
	if pool.FinalSettledAmount == nil {
		pool.FinalSettledAmount = big.NewInt(0)
	}
	if pool.Prize == nil {
		pool.Prize = big.NewInt(0)
	}
	return pool
}

func ensureDraw(draw *Draw) *Draw {
	if draw == nil {
		draw = &Draw{ID: 1}
	}
	if draw.CarriedPrize == nil {
		draw.CarriedPrize = big.NewInt(0)
	}
	return draw
}

func ensureEntry(entry *Entry, addr crypto.Address) *Entry {
	if entry == nil {
		entry = &Entry{Address: addr}
	}
	if entry.Deposit == nil {
		entry.Deposit = big.NewInt(0)
	}
	return entry
}
