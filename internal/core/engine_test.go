package core_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"MarginCore/internal/core"
	"MarginCore/internal/fp"
	"MarginCore/internal/state"
)

const (
	assetUSDC state.AssetIndex = 0
	assetETH  state.AssetIndex = 1
)

var (
	ownerA = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	ownerB = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000002")
)

// fixture wires an engine over two banks: USDC at price 1 and ETH at price 8,
// all risk weights neutral. Tests tighten weights and fees as needed.
type fixture struct {
	engine *core.Engine
	oracle *state.StubOracle
	hc     *core.HealthContext
	usdc   *state.Bank
	eth    *state.Bank
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	usdc := state.NewBank(assetUSDC, 0, "USDC", 6)
	usdc.OracleID = "USDC"
	eth := state.NewBank(assetETH, 0, "ETH", 6)
	eth.OracleID = "ETH"

	oracle := state.NewStubOracle()
	oracle.SetPrice("USDC", fp.FromInt64(1), fp.Zero)
	oracle.SetPrice("ETH", fp.FromInt64(8), fp.Zero)

	hc := &core.HealthContext{
		Banks:   map[state.AssetIndex]*state.Bank{assetUSDC: usdc, assetETH: eth},
		Markets: map[state.PerpMarketIndex]*state.PerpMarket{},
		Oracle:  oracle,
	}

	return &fixture{
		engine: core.NewEngine(hc, zerolog.Nop(), nil),
		oracle: oracle,
		hc:     hc,
		usdc:   usdc,
		eth:    eth,
	}
}

func (f *fixture) addMarket(t *testing.T, m *state.PerpMarket) {
	t.Helper()
	m.OracleID = "ETH"
	f.hc.Markets[m.Market] = m
}

// ============================================================
// Deposits and withdrawals
// ============================================================

func TestEngineDeposit(t *testing.T) {
	f := newFixture(t)
	acct := state.NewAccount(ownerA, 0)

	if err := f.engine.Deposit(acct, f.usdc, fp.FromInt64(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	tp, err := acct.TokenPosition(assetUSDC)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if got := tp.Native(f.usdc); !got.Equal(fp.FromInt64(100)) {
		t.Errorf("native = %s, want 100", got)
	}
	if acct.Version != 1 {
		t.Errorf("version = %d, want 1", acct.Version)
	}
}

func TestEngineDeposit_NonPositive(t *testing.T) {
	f := newFixture(t)
	acct := state.NewAccount(ownerA, 0)

	if err := f.engine.Deposit(acct, f.usdc, fp.Zero); !errors.Is(err, state.ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
	if acct.Version != 0 {
		t.Error("failed deposit must not bump version")
	}
}

func TestEngineWithdraw(t *testing.T) {
	f := newFixture(t)
	acct := state.NewAccount(ownerA, 0)
	if err := f.engine.Deposit(acct, f.usdc, fp.FromInt64(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if err := f.engine.Withdraw(acct, f.usdc, fp.FromInt64(40), false); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	tp, err := acct.TokenPosition(assetUSDC)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if got := tp.Native(f.usdc); !got.Equal(fp.FromInt64(60)) {
		t.Errorf("native = %s, want 60", got)
	}
	if acct.Version != 2 {
		t.Errorf("version = %d, want 2", acct.Version)
	}
}

func TestEngineWithdraw_FullBalanceClosesSlot(t *testing.T) {
	f := newFixture(t)
	acct := state.NewAccount(ownerA, 0)
	if err := f.engine.Deposit(acct, f.usdc, fp.FromInt64(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if err := f.engine.Withdraw(acct, f.usdc, fp.FromInt64(100), false); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if len(acct.ActiveTokenPositions()) != 0 {
		t.Error("zero balance should recycle the slot")
	}
}

func TestEngineWithdraw_BorrowGatedByInitHealth(t *testing.T) {
	f := newFixture(t)
	f.usdc.InitLiabWeight = fp.FromMicros(1_500_000) // 1.5

	acct := state.NewAccount(ownerA, 0)
	if err := f.engine.Deposit(acct, f.usdc, fp.FromInt64(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// Borrowing 50 would leave init health at -75.
	err := f.engine.Withdraw(acct, f.usdc, fp.FromInt64(150), true)
	if !errors.Is(err, state.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	tp, err := acct.TokenPosition(assetUSDC)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if !tp.Native(f.usdc).Equal(fp.FromInt64(100)) {
		t.Error("failed withdraw must not mutate the position")
	}

	// With 10 ETH of collateral (worth 80) the same borrow passes.
	if err := f.engine.Deposit(acct, f.eth, fp.FromInt64(10)); err != nil {
		t.Fatalf("deposit eth: %v", err)
	}
	if err := f.engine.Withdraw(acct, f.usdc, fp.FromInt64(150), true); err != nil {
		t.Fatalf("withdraw with collateral: %v", err)
	}
	tp, err = acct.TokenPosition(assetUSDC)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if !tp.Native(f.usdc).Equal(fp.FromInt64(-50)) {
		t.Errorf("native = %s, want -50", tp.Native(f.usdc))
	}
}

// ============================================================
// Perp market registration
// ============================================================

func TestRegisterPerpMarket_PinsQuotePosition(t *testing.T) {
	f := newFixture(t)
	m := state.NewPerpMarket(0, "ETH-PERP", assetETH, assetUSDC, 100, 10)
	f.addMarket(t, m)

	acct := state.NewAccount(ownerA, 0)
	if err := f.engine.RegisterPerpMarket(acct, m); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := acct.PerpPosition(m.Market); err != nil {
		t.Errorf("perp position not active: %v", err)
	}
	quote, err := acct.TokenPosition(assetUSDC)
	if err != nil {
		t.Fatalf("quote position: %v", err)
	}
	if quote.InUseCount != 1 {
		t.Errorf("in-use count = %d, want 1", quote.InUseCount)
	}
	// The pin keeps the zero-balance quote slot from closing.
	if err := acct.DeactivateTokenPosition(assetUSDC); !errors.Is(err, state.ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}

	if err := f.engine.DeregisterPerpMarket(acct, m); err != nil {
		t.Fatalf("deregister: %v", err)
	}
	if len(acct.ActiveTokenPositions()) != 0 || len(acct.ActivePerpPositions()) != 0 {
		t.Error("deregister should release the pin and recycle both slots")
	}
}

// ============================================================
// Fills and funding
// ============================================================

func TestExecuteTakerFill_Bid(t *testing.T) {
	f := newFixture(t)
	m := state.NewPerpMarket(0, "ETH-PERP", assetETH, assetUSDC, 100, 10)
	m.TakerFee = fp.FromMicros(250_000) // 0.25
	f.addMarket(t, m)

	acct := state.NewAccount(ownerA, 0)
	if err := f.engine.RegisterPerpMarket(acct, m); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.engine.ProcessMatchedTrade(acct, m, state.SideBid, 5, 100); err != nil {
		t.Fatalf("match: %v", err)
	}

	if err := f.engine.ExecuteTakerFill(acct, m, state.SideBid, 5, 100); err != nil {
		t.Fatalf("fill: %v", err)
	}

	pp, err := acct.PerpPosition(m.Market)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if pp.BasePositionLots != 5 {
		t.Errorf("base = %d, want 5", pp.BasePositionLots)
	}
	// Quote leg -1000 native, fee 1000 * 0.25 = 250.
	if !pp.QuotePositionNative.Equal(fp.FromInt64(-1250)) {
		t.Errorf("quote = %s, want -1250", pp.QuotePositionNative)
	}
	if pp.TakerBaseLots != 0 || pp.TakerQuoteLots != 0 {
		t.Errorf("taker fields not released: (%d, %d)", pp.TakerBaseLots, pp.TakerQuoteLots)
	}
	if !m.FeesAccrued.Equal(fp.FromInt64(250)) {
		t.Errorf("fees accrued = %s, want 250", m.FeesAccrued)
	}
	if m.OpenInterest != 5 {
		t.Errorf("open interest = %d, want 5", m.OpenInterest)
	}
}

func TestExecuteTakerFill_AskClosesLong(t *testing.T) {
	f := newFixture(t)
	m := state.NewPerpMarket(0, "ETH-PERP", assetETH, assetUSDC, 100, 10)
	f.addMarket(t, m)

	acct := state.NewAccount(ownerA, 0)
	if err := f.engine.RegisterPerpMarket(acct, m); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := f.engine.ProcessMatchedTrade(acct, m, state.SideBid, 5, 100); err != nil {
		t.Fatalf("match: %v", err)
	}
	if err := f.engine.ExecuteTakerFill(acct, m, state.SideBid, 5, 100); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if err := f.engine.ProcessMatchedTrade(acct, m, state.SideAsk, 5, 120); err != nil {
		t.Fatalf("match: %v", err)
	}
	if err := f.engine.ExecuteTakerFill(acct, m, state.SideAsk, 5, 120); err != nil {
		t.Fatalf("sell: %v", err)
	}

	pp, err := acct.PerpPosition(m.Market)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if pp.BasePositionLots != 0 {
		t.Errorf("base = %d, want 0", pp.BasePositionLots)
	}
	// Bought for 1000 native, sold for 1200: profit stays in the quote leg.
	if !pp.QuotePositionNative.Equal(fp.FromInt64(200)) {
		t.Errorf("quote = %s, want 200", pp.QuotePositionNative)
	}
	if pp.BaseEntryLots != 0 || pp.QuoteEntryNative != 0 || pp.QuoteExitNative != 0 {
		t.Error("exact close should reset entry/exit tracking")
	}
	if m.OpenInterest != 0 {
		t.Errorf("open interest = %d, want 0", m.OpenInterest)
	}
}

func TestExecuteTakerFill_NegativeLots(t *testing.T) {
	f := newFixture(t)
	m := state.NewPerpMarket(0, "ETH-PERP", assetETH, assetUSDC, 100, 10)
	f.addMarket(t, m)

	acct := state.NewAccount(ownerA, 0)
	if err := f.engine.RegisterPerpMarket(acct, m); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.engine.ExecuteTakerFill(acct, m, state.SideBid, -5, 100); !errors.Is(err, state.ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}

func TestSettlePerpFunding(t *testing.T) {
	f := newFixture(t)
	m := state.NewPerpMarket(0, "ETH-PERP", assetETH, assetUSDC, 100, 10)
	f.addMarket(t, m)

	acct := state.NewAccount(ownerA, 0)
	if err := f.engine.RegisterPerpMarket(acct, m); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.engine.ProcessMatchedTrade(acct, m, state.SideBid, 10, 1000); err != nil {
		t.Fatalf("match: %v", err)
	}
	if err := f.engine.ExecuteTakerFill(acct, m, state.SideBid, 10, 1000); err != nil {
		t.Fatalf("fill: %v", err)
	}

	if err := m.AccrueFunding(fp.FromInt64(2), fp.FromInt64(2)); err != nil {
		t.Fatalf("accrue: %v", err)
	}

	versionBefore := acct.Version
	if err := f.engine.SettlePerpFunding(acct, m); err != nil {
		t.Fatalf("settle: %v", err)
	}

	pp, err := acct.PerpPosition(m.Market)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	// Long 10 lots pays 2 per lot on top of the -10000 quote leg.
	if !pp.QuotePositionNative.Equal(fp.FromInt64(-10_020)) {
		t.Errorf("quote = %s, want -10020", pp.QuotePositionNative)
	}
	if !pp.UnsettledFunding(m).IsZero() {
		t.Error("unsettled funding should be zero after settle")
	}
	if acct.Version != versionBefore+1 {
		t.Errorf("version = %d, want %d", acct.Version, versionBefore+1)
	}
}
