package prizepool

import (
	"errors"
	"math/big"
	"testing"

	nativecommon "prizevault/native/common"
	"prizevault/native/yield"
)

func newPeriodicFixture(t *testing.T) (*fixture, *MockRandomness) {
	t.Helper()
	owner := makeAddress(0xAA)
	module := makeAddress(0xFF)
	params := &Params{
		TicketPrice:       big.NewInt(ticketPrice),
		FeeFraction:       big.NewInt(0),
		PrizePeriodBlocks: 20,
		Branching:         4,
		Mode:              ModePeriodic,
	}
	engine, err := NewEngine(owner, module, params)
	if err != nil {
		t.Fatal(err)
	}
	state := newMockEngineState()
	venue := yield.NewMockVenue()
	randomness := NewMockRandomness()
	engine.SetState(state)
	engine.SetYield(yield.NewAccounting(venue, leafKey(module)))
	engine.SetRandomness(randomness)
	engine.SetBlockHeight(1)
	return &fixture{engine: engine, state: state, venue: venue, owner: owner, module: module}, randomness
}

func TestPeriodicDepositSuppliesVenue(t *testing.T) {
	f, _ := newPeriodicFixture(t)
	alice := makeAddress(1)
	f.state.fund(alice, 10*ticketPrice)

	if _, err := f.engine.BuyTickets(alice, 2); err != nil {
		t.Fatal(err)
	}
	balance, err := f.venue.BalanceOfUnderlying(leafKey(f.module))
	if err != nil {
		t.Fatal(err)
	}
	if balance.Int64() != 2*ticketPrice {
		t.Fatalf("deposit not supplied to venue: %s", balance)
	}
}

func TestAwardCycle(t *testing.T) {
	f, randomness := newPeriodicFixture(t)
	alice := makeAddress(1)
	bob := makeAddress(2)
	f.state.fund(alice, 10*ticketPrice)
	f.state.fund(bob, 10*ticketPrice)
	if _, err := f.engine.BuyTickets(alice, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.BuyTickets(bob, 3); err != nil {
		t.Fatal(err)
	}

	// Period not yet elapsed: the epoch opened at construction (block 0).
	if ok, err := f.engine.CanStartAward(); err != nil || ok {
		t.Fatalf("award should not be startable at height 1 (ok=%v err=%v)", ok, err)
	}
	if err := f.engine.StartAward(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state before period, got %v", err)
	}

	f.venue.AccrueInterest(big.NewInt(400_000))
	f.engine.SetBlockHeight(25)
	if ok, err := f.engine.IsPrizePeriodOver(); err != nil || !ok {
		t.Fatalf("period should be over at height 25 (ok=%v err=%v)", ok, err)
	}
	if err := f.engine.StartAward(); err != nil {
		t.Fatal(err)
	}
	// The request slot is single-occupancy.
	if err := f.engine.StartAward(); !errors.Is(err, ErrRandomnessAlreadyRequested) {
		t.Fatalf("expected already requested, got %v", err)
	}
	if err := f.engine.CompleteAward(); !errors.Is(err, ErrRandomnessNotReady) {
		t.Fatalf("expected not ready before fulfilment, got %v", err)
	}
	if ok, err := f.engine.CanCompleteAward(); err != nil || ok {
		t.Fatalf("completion should not be possible yet (ok=%v err=%v)", ok, err)
	}

	draw, err := f.engine.CurrentDraw()
	if err != nil {
		t.Fatal(err)
	}
	if draw.RequestID == "" {
		t.Fatal("start did not record a request id")
	}
	if err := randomness.Fulfill(draw.RequestID, big.NewInt(12345)); err != nil {
		t.Fatal(err)
	}
	if ok, err := f.engine.CanCompleteAward(); err != nil || !ok {
		t.Fatalf("completion should be possible after fulfilment (ok=%v err=%v)", ok, err)
	}
	if err := f.engine.CompleteAward(); err != nil {
		t.Fatal(err)
	}

	pool, err := f.engine.PoolRecord()
	if err != nil {
		t.Fatal(err)
	}
	if !pool.HasWinner {
		t.Fatal("expected a winner")
	}
	// The prize compounds into the winner's deposit and the pooled total.
	if pool.TotalDeposited.Int64() != 4*ticketPrice+400_000 {
		t.Fatalf("total deposited %s, expected prize compounded in", pool.TotalDeposited)
	}
	winnerAddr := f.engine.addressFor(pool.Winner)
	entry, err := f.engine.EntryOf(winnerAddr)
	if err != nil {
		t.Fatal(err)
	}
	base := int64(ticketPrice)
	if pool.Winner[19] == 2 {
		base = 3 * ticketPrice
	}
	if entry.Deposit.Int64() != base+400_000 {
		t.Fatalf("winner deposit %s, expected %d", entry.Deposit, base+400_000)
	}
	if f.engine.TotalWeight().Cmp(pool.TotalDeposited) != 0 {
		t.Fatalf("tree weight %s out of step with deposits %s",
			f.engine.TotalWeight(), pool.TotalDeposited)
	}

	// The draw rolled into the next epoch.
	next, err := f.engine.CurrentDraw()
	if err != nil {
		t.Fatal(err)
	}
	if next.ID != draw.ID+1 || next.RequestID != "" || next.OpenedAtBlock != 25 {
		t.Fatalf("draw did not roll: %+v", next)
	}

	// The winner can withdraw the compounded balance at any time.
	got, err := f.engine.Withdraw(winnerAddr)
	if err != nil {
		t.Fatal(err)
	}
	if got.Int64() != base+400_000 {
		t.Fatalf("withdrew %s, expected %d", got, base+400_000)
	}
}

func TestPausedModuleRejectsAwards(t *testing.T) {
	f, randomness := newPeriodicFixture(t)
	alice := makeAddress(1)
	f.state.fund(alice, 10*ticketPrice)
	if _, err := f.engine.BuyTickets(alice, 1); err != nil {
		t.Fatal(err)
	}
	f.venue.AccrueInterest(big.NewInt(100_000))
	f.engine.SetBlockHeight(25)

	f.engine.SetPauses(pauseAll{})
	if err := f.engine.StartAward(); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected paused start rejection, got %v", err)
	}
	draw, err := f.engine.CurrentDraw()
	if err != nil {
		t.Fatal(err)
	}
	if draw.RequestID != "" {
		t.Fatal("paused start recorded a randomness request")
	}

	f.engine.SetPauses(nil)
	if err := f.engine.StartAward(); err != nil {
		t.Fatal(err)
	}
	draw, err = f.engine.CurrentDraw()
	if err != nil {
		t.Fatal(err)
	}
	if err := randomness.Fulfill(draw.RequestID, big.NewInt(1)); err != nil {
		t.Fatal(err)
	}

	f.engine.SetPauses(pauseAll{})
	if err := f.engine.CompleteAward(); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected paused complete rejection, got %v", err)
	}

	f.engine.SetPauses(nil)
	if err := f.engine.CompleteAward(); err != nil {
		t.Fatalf("unpaused award failed: %v", err)
	}
}

func TestAwardCarriesPrizeWithNoEntries(t *testing.T) {
	f, randomness := newPeriodicFixture(t)
	alice := makeAddress(1)
	f.state.fund(alice, 10*ticketPrice)
	if _, err := f.engine.BuyTickets(alice, 1); err != nil {
		t.Fatal(err)
	}

	f.venue.AccrueInterest(big.NewInt(100_000))
	if _, err := f.engine.Withdraw(alice); err != nil {
		t.Fatal(err)
	}
	if f.engine.TotalWeight().Sign() != 0 {
		t.Fatal("tree should be empty after full withdrawal")
	}

	f.engine.SetBlockHeight(25)
	if err := f.engine.StartAward(); err != nil {
		t.Fatal(err)
	}
	draw, err := f.engine.CurrentDraw()
	if err != nil {
		t.Fatal(err)
	}
	if err := randomness.Fulfill(draw.RequestID, big.NewInt(7)); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.CompleteAward(); err != nil {
		t.Fatal(err)
	}

	next, err := f.engine.CurrentDraw()
	if err != nil {
		t.Fatal(err)
	}
	if next.CarriedPrize.Int64() != 100_000 {
		t.Fatalf("expected interest carried forward, got %s", next.CarriedPrize)
	}
	if next.ID != draw.ID+1 {
		t.Fatal("draw did not roll after carrying")
	}

	pool, err := f.engine.PoolRecord()
	if err != nil {
		t.Fatal(err)
	}
	if pool.HasWinner {
		t.Fatal("no winner should be recorded on an empty tree")
	}
}

func TestAwardFeeSettlement(t *testing.T) {
	f, randomness := newPeriodicFixture(t)
	// 10% fee.
	params := f.engine.Params()
	params.FeeFraction = new(big.Int).Quo(
		big.NewInt(1_000_000_000_000_000_000), big.NewInt(10))
	engine, err := NewEngine(f.owner, f.module, params)
	if err != nil {
		t.Fatal(err)
	}
	engine.SetState(f.state)
	engine.SetYield(yield.NewAccounting(f.venue, leafKey(f.module)))
	engine.SetRandomness(randomness)
	engine.SetBlockHeight(1)

	alice := makeAddress(1)
	f.state.fund(alice, 10*ticketPrice)
	if _, err := engine.BuyTickets(alice, 1); err != nil {
		t.Fatal(err)
	}

	f.venue.AccrueInterest(big.NewInt(100_000))
	engine.SetBlockHeight(25)
	if err := engine.StartAward(); err != nil {
		t.Fatal(err)
	}
	draw, err := engine.CurrentDraw()
	if err != nil {
		t.Fatal(err)
	}
	if err := randomness.Fulfill(draw.RequestID, big.NewInt(99)); err != nil {
		t.Fatal(err)
	}
	if err := engine.CompleteAward(); err != nil {
		t.Fatal(err)
	}

	// 10% of the gross leaves the venue for the owner; 90% compounds.
	if f.state.balance(f.owner).Int64() != 10_000 {
		t.Fatalf("owner fee balance %s, expected 10000", f.state.balance(f.owner))
	}
	entry, err := engine.EntryOf(alice)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Deposit.Int64() != ticketPrice+90_000 {
		t.Fatalf("winner deposit %s, expected %d", entry.Deposit, ticketPrice+90_000)
	}
}
