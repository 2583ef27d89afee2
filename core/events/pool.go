package events

import (
	"encoding/hex"
	"math/big"

	"prizevault/core/types"
	"prizevault/crypto"
)

const (
	TypePoolTicketsPurchased = "pool.ticketsPurchased"
	TypePoolLocked           = "pool.locked"
	TypePoolUnlocked         = "pool.unlocked"
	TypePoolPrizeAwarded     = "pool.prizeAwarded"
	TypePoolWithdrawn        = "pool.withdrawn"
	TypePoolAwardStarted     = "pool.awardStarted"
	TypePoolAwardCompleted   = "pool.awardCompleted"
)

type PoolTicketsPurchased struct {
	Buyer      [20]byte
	Count      uint64
	TotalPrice *big.Int
}

func (PoolTicketsPurchased) EventType() string { return TypePoolTicketsPurchased }

func (e PoolTicketsPurchased) Event() *types.Event {
	return &types.Event{
		Type: TypePoolTicketsPurchased,
		Attributes: map[string]string{
			"buyer":      crypto.NewAddress(crypto.PoolPrefix, e.Buyer[:]).String(),
			"count":      uintToString(e.Count),
			"totalPrice": formatAmount(e.TotalPrice),
		},
	}
}

type PoolLocked struct {
	Owner         [20]byte
	TotalDeposits *big.Int
	UnlockBlock   uint64
}

func (PoolLocked) EventType() string { return TypePoolLocked }

func (e PoolLocked) Event() *types.Event {
	return &types.Event{
		Type: TypePoolLocked,
		Attributes: map[string]string{
			"owner":         crypto.NewAddress(crypto.PoolPrefix, e.Owner[:]).String(),
			"totalDeposits": formatAmount(e.TotalDeposits),
			"unlockBlock":   uintToString(e.UnlockBlock),
		},
	}
}

type PoolUnlocked struct {
	Owner         [20]byte
	SettledAmount *big.Int
	GrossWinnings *big.Int
	Fee           *big.Int
}

func (PoolUnlocked) EventType() string { return TypePoolUnlocked }

func (e PoolUnlocked) Event() *types.Event {
	return &types.Event{
		Type: TypePoolUnlocked,
		Attributes: map[string]string{
			"owner":         crypto.NewAddress(crypto.PoolPrefix, e.Owner[:]).String(),
			"settledAmount": formatAmount(e.SettledAmount),
			"grossWinnings": formatAmount(e.GrossWinnings),
			"fee":           formatAmount(e.Fee),
		},
	}
}

type PoolPrizeAwarded struct {
	Winner  [20]byte
	Prize   *big.Int
	Fee     *big.Int
	Entropy []byte
}

func (PoolPrizeAwarded) EventType() string { return TypePoolPrizeAwarded }

func (e PoolPrizeAwarded) Event() *types.Event {
	return &types.Event{
		Type: TypePoolPrizeAwarded,
		Attributes: map[string]string{
			"winner":  crypto.NewAddress(crypto.PoolPrefix, e.Winner[:]).String(),
			"prize":   formatAmount(e.Prize),
			"fee":     formatAmount(e.Fee),
			"entropy": hex.EncodeToString(e.Entropy),
		},
	}
}

type PoolWithdrawn struct {
	Participant [20]byte
	Amount      *big.Int
}

func (PoolWithdrawn) EventType() string { return TypePoolWithdrawn }

func (e PoolWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypePoolWithdrawn,
		Attributes: map[string]string{
			"participant": crypto.NewAddress(crypto.PoolPrefix, e.Participant[:]).String(),
			"amount":      formatAmount(e.Amount),
		},
	}
}

type PoolAwardStarted struct {
	DrawID    uint64
	RequestID string
}

func (PoolAwardStarted) EventType() string { return TypePoolAwardStarted }

func (e PoolAwardStarted) Event() *types.Event {
	return &types.Event{
		Type: TypePoolAwardStarted,
		Attributes: map[string]string{
			"drawId":    uintToString(e.DrawID),
			"requestId": e.RequestID,
		},
	}
}

type PoolAwardCompleted struct {
	DrawID uint64
	Winner [20]byte
	Prize  *big.Int
}

func (PoolAwardCompleted) EventType() string { return TypePoolAwardCompleted }

func (e PoolAwardCompleted) Event() *types.Event {
	return &types.Event{
		Type: TypePoolAwardCompleted,
		Attributes: map[string]string{
			"drawId": uintToString(e.DrawID),
			"winner": crypto.NewAddress(crypto.PoolPrefix, e.Winner[:]).String(),
			"prize":  formatAmount(e.Prize),
		},
	}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func uintToString(v uint64) string {
	return new(big.Int).SetUint64(v).String()
}
