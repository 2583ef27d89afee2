package prizepool

import (
	"fmt"
	"math/big"

	"prizevault/core/events"
	nativecommon "prizevault/native/common"
	"prizevault/native/sortition"
)

// Periodic award cycle. Each epoch runs
// Open -> (period elapsed) -> randomness requested -> randomness ready ->
// awarded, then the draw record rolls into the next epoch. "Waiting" is
// externalised: callers poll CanStartAward / CanCompleteAward and re-invoke.

// IsPrizePeriodOver reports whether the current epoch's period has elapsed.
func (e *Engine) IsPrizePeriodOver() (bool, error) {
	draw, err := e.loadDraw()
	if err != nil {
		return false, err
	}
	return e.blockHeight >= draw.OpenedAtBlock+e.params.PrizePeriodBlocks, nil
}

// CanStartAward reports whether StartAward would succeed: the prize period
// has elapsed and no randomness request is outstanding.
func (e *Engine) CanStartAward() (bool, error) {
	if e.params.Mode != ModePeriodic {
		return false, nil
	}
	draw, err := e.loadDraw()
	if err != nil {
		return false, err
	}
	if draw.RequestID != "" {
		return false, nil
	}
	return e.blockHeight >= draw.OpenedAtBlock+e.params.PrizePeriodBlocks, nil
}

// CanCompleteAward reports whether CompleteAward would succeed: a randomness
// request is outstanding and the source has produced its value.
func (e *Engine) CanCompleteAward() (bool, error) {
	if e.params.Mode != ModePeriodic {
		return false, nil
	}
	draw, err := e.loadDraw()
	if err != nil {
		return false, err
	}
	if draw.RequestID == "" {
		return false, nil
	}
	if e.randomness == nil {
		return false, errNilVenue
	}
	return e.randomness.IsRequestComplete(draw.RequestID)
}

// StartAward requests randomness for the current epoch's draw. The request
// slot is single-occupancy: starting a second award while one is in flight
// fails with ErrRandomnessAlreadyRequested.
func (e *Engine) StartAward() error {
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
	if e.params.Mode != ModePeriodic {
		return ErrInvalidState
	}
	if e.randomness == nil {
		return errNilVenue
	}

	draw, err := e.loadDraw()
	if err != nil {
		return err
	}
	if draw.RequestID != "" {
		return ErrRandomnessAlreadyRequested
	}
	if e.blockHeight < draw.OpenedAtBlock+e.params.PrizePeriodBlocks {
		return ErrInvalidState
	}

	seed := e.blockHashFn(e.blockHeight)
	requestID, err := e.randomness.RequestRandomNumber(seed[:])
	if err != nil {
		return fmt.Errorf("prizepool engine: randomness request: %w", err)
	}
	draw.RequestID = requestID
	if err := e.state.PutDraw(draw); err != nil {
		return err
	}

	e.emitter.Emit(events.PoolAwardStarted{
		DrawID:    draw.ID,
		RequestID: requestID,
	})
	return nil
}

// CompleteAward consumes the outstanding randomness request, awards the
// accrued interest to the drawn winner as additional deposit, settles the
// owner fee and rolls the draw into the next epoch. With zero total weight
// the interest carries forward and no winner is drawn.
func (e *Engine) CompleteAward() error {
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
	if e.params.Mode != ModePeriodic {
		return ErrInvalidState
	}
	if e.randomness == nil || e.accounting == nil {
		return errNilVenue
	}

	draw, err := e.loadDraw()
	if err != nil {
		return err
	}
	if draw.RequestID == "" {
		return ErrRandomnessNotReady
	}
	ready, err := e.randomness.IsRequestComplete(draw.RequestID)
	if err != nil {
		return err
	}
	if !ready {
		return ErrRandomnessNotReady
	}
	randomValue, err := e.randomness.RandomNumber(draw.RequestID)
	if err != nil {
		return err
	}

	pool, err := e.loadPool()
	if err != nil {
		return err
	}

	balance, err := e.accounting.Balance()
	if err != nil {
		return err
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

	if fee.Sign() > 0 {
		// Fees leave the venue immediately; the prize stays supplied and
		// compounds as the winner's deposit.
		if err := e.accounting.Redeem(fee); err != nil {
			return fmt.Errorf("%w: %v", ErrRedeemFailed, err)
		}
		ownerAcc, err := e.loadAccount(e.owner)
		if err != nil {
			return err
		}
		ownerAcc.Balance = new(big.Int).Add(ownerAcc.Balance, fee)
		if err := e.persistAccount(e.owner, ownerAcc); err != nil {
			return err
		}
	}

	total := e.tree.TotalWeight()
	if total.Sign() == 0 || prize.Sign() == 0 {
		// No eligible entries or nothing accrued: the prize carries forward.
		draw.CarriedPrize = new(big.Int).Add(draw.CarriedPrize, prize)
		e.rollDraw(draw)
		return e.state.PutDraw(draw)
	}

	seed := make([]byte, 32)
	randomValue.FillBytes(seed)
	value, err := sortition.ReduceEntropy(seed, total)
	if err != nil {
		return err
	}
	winner, err := e.tree.Draw(value)
	if err != nil {
		return err
	}

	winnings := new(big.Int).Add(prize, draw.CarriedPrize)
	winnerAddr := e.addressFor(winner)
	entry, err := e.loadEntry(winnerAddr)
	if err != nil {
		return err
	}
	entry.Deposit = new(big.Int).Add(entry.Deposit, winnings)
	pool.TotalDeposited = new(big.Int).Add(pool.TotalDeposited, winnings)
	pool.Winner = winner
	pool.HasWinner = true

	moduleAcc, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return err
	}
	moduleAcc.Balance = new(big.Int).Add(moduleAcc.Balance, winnings)

	if err := e.state.PutEntry(entry); err != nil {
		return err
	}
	if err := e.persistAccount(e.moduleAddress, moduleAcc); err != nil {
		return err
	}
	if err := e.state.PutPool(pool); err != nil {
		return err
	}
	if err := e.tree.Set(winner, entry.Deposit); err != nil {
		return err
	}

	completedID := draw.ID
	draw.CarriedPrize = big.NewInt(0)
	e.rollDraw(draw)
	if err := e.state.PutDraw(draw); err != nil {
		return err
	}

	e.emitter.Emit(events.PoolAwardCompleted{
		DrawID: completedID,
		Winner: winner,
		Prize:  winnings,
	})
	return nil
}

// CurrentDraw returns a copy of the current epoch's draw record.
func (e *Engine) CurrentDraw() (*Draw, error) {
	draw, err := e.loadDraw()
	if err != nil {
		return nil, err
	}
	return &Draw{
		ID:            draw.ID,
		OpenedAtBlock: draw.OpenedAtBlock,
		CarriedPrize:  new(big.Int).Set(draw.CarriedPrize),
		RequestID:     draw.RequestID,
	}, nil
}

// rollDraw supersedes the finished epoch in place.
func (e *Engine) rollDraw(draw *Draw) {
	draw.ID++
	draw.OpenedAtBlock = e.blockHeight
	draw.RequestID = ""
}

func (e *Engine) loadDraw() (*Draw, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	draw, err := e.state.GetDraw()
	if err != nil {
		return nil, err
	}
	return ensureDraw(draw), nil
}
