package ledger_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"MarginCore/internal/fp"
	"MarginCore/internal/ledger"
	"MarginCore/internal/state"
)

var (
	ownerA = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	ownerB = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000002")
)

func newRegistry(t *testing.T) *ledger.Registry {
	t.Helper()
	oracle := state.NewStubOracle()
	insurance := state.NewInsuranceFund(0, fp.FromInt64(1000))
	return ledger.NewRegistry(oracle, insurance)
}

// ============================================================
// Registry
// ============================================================

func TestRegistryAccounts(t *testing.T) {
	r := newRegistry(t)
	acct := state.NewAccount(ownerA, 0)

	if err := r.AddAccount(acct); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.AddAccount(acct); !errors.Is(err, state.ErrInvalidState) {
		t.Errorf("duplicate add err = %v, want ErrInvalidState", err)
	}

	got, err := r.Account(acct.AccountID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != acct {
		t.Error("registry returned a different account")
	}
	if _, err := r.Account(ownerB); !errors.Is(err, state.ErrInvalidState) {
		t.Errorf("unknown account err = %v, want ErrInvalidState", err)
	}
}

func TestRegistryBankGroups(t *testing.T) {
	r := newRegistry(t)
	primary := state.NewBank(0, 0, "USDC", 6)
	secondary := state.NewBank(0, 1, "USDC-2", 6)
	g, err := state.NewBankGroup(primary, secondary)
	if err != nil {
		t.Fatalf("group: %v", err)
	}

	if err := r.AddBankGroup(g); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.AddBankGroup(g); !errors.Is(err, state.ErrInvalidState) {
		t.Errorf("duplicate add err = %v, want ErrInvalidState", err)
	}

	bank, err := r.Bank(0)
	if err != nil {
		t.Fatalf("bank: %v", err)
	}
	if bank != primary {
		t.Error("Bank should return the group's primary bank")
	}
	banks := r.PrimaryBanks()
	if len(banks) != 1 || banks[0] != primary {
		t.Error("PrimaryBanks should map asset to primary bank")
	}
	if len(r.BankGroups()) != 1 {
		t.Error("BankGroups should list the registered group")
	}
}

func TestRegistryMarkets(t *testing.T) {
	r := newRegistry(t)
	m := state.NewPerpMarket(0, "BTC-PERP", 2, 0, 100, 10)

	if err := r.AddMarket(m); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.AddMarket(m); !errors.Is(err, state.ErrInvalidState) {
		t.Errorf("duplicate add err = %v, want ErrInvalidState", err)
	}
	got, err := r.Market(0)
	if err != nil || got != m {
		t.Errorf("Market(0) = %v, %v", got, err)
	}
	if _, err := r.Market(9); !errors.Is(err, state.ErrInvalidState) {
		t.Errorf("unknown market err = %v, want ErrInvalidState", err)
	}
}

// ============================================================
// Journal validation
// ============================================================

func TestJournalValidate(t *testing.T) {
	j := ledger.NewJournal(ledger.JournalTypeDeposit, "evt-1", 1, ownerA, 1000)
	if err := j.Validate(); err != nil {
		t.Errorf("valid journal rejected: %v", err)
	}

	j.EventRef = ""
	if err := j.Validate(); err == nil {
		t.Error("empty event ref should be rejected")
	}

	j = ledger.NewJournal(ledger.JournalTypeDeposit, "evt-2", 2, uuid.Nil, 1000)
	if err := j.Validate(); err == nil {
		t.Error("deposit journal without account should be rejected")
	}

	// Market-wide entries carry no account.
	j = ledger.NewJournal(ledger.JournalTypeFundingAccrual, "evt-3", 3, uuid.Nil, 1000)
	if err := j.Validate(); err != nil {
		t.Errorf("funding journal without account rejected: %v", err)
	}
}

func TestJournalTypeString(t *testing.T) {
	cases := map[ledger.JournalType]string{
		ledger.JournalTypeDeposit:             "deposit",
		ledger.JournalTypeWithdrawal:          "withdrawal",
		ledger.JournalTypeLiquidationTransfer: "liquidation_transfer",
		ledger.JournalTypeBankruptcySettle:    "bankruptcy_settle",
		ledger.JournalTypeFundingSettle:       "funding_settle",
		ledger.JournalType(99):                "unknown",
	}
	for jt, want := range cases {
		if got := jt.String(); got != want {
			t.Errorf("String(%d) = %q, want %q", jt, got, want)
		}
	}
}

// ============================================================
// Asset symbols
// ============================================================

func TestAssetSymbols(t *testing.T) {
	idx, ok := ledger.ParseAsset("ETH")
	if !ok || idx != 3 {
		t.Errorf("ParseAsset(ETH) = %d, %v", idx, ok)
	}
	if _, ok := ledger.ParseAsset("DOGE"); ok {
		t.Error("unknown symbol should not parse")
	}
	sym, ok := ledger.AssetSymbol(0)
	if !ok || sym != "USDC" {
		t.Errorf("AssetSymbol(0) = %q, %v", sym, ok)
	}
}

// ============================================================
// Invariant validation
// ============================================================

func TestValidateBankTotals(t *testing.T) {
	r := newRegistry(t)
	bank := state.NewBank(0, 0, "USDC", 6)
	g, err := state.NewBankGroup(bank)
	if err != nil {
		t.Fatalf("group: %v", err)
	}
	if err := r.AddBankGroup(g); err != nil {
		t.Fatalf("add group: %v", err)
	}

	acct := state.NewAccount(ownerA, 0)
	tp, _, err := acct.EnsureTokenPosition(0)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if _, err := bank.Deposit(tp, fp.FromInt64(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := r.AddAccount(acct); err != nil {
		t.Fatalf("add account: %v", err)
	}

	v := ledger.NewInvariantValidator(r)
	if err := v.ValidateBankTotals(0); err != nil {
		t.Errorf("consistent totals rejected: %v", err)
	}

	// Drift the bank total away from the account sum.
	bank.IndexedTotalDeposits = bank.IndexedTotalDeposits.Add(fp.FromInt64(1))
	if err := v.ValidateBankTotals(0); err == nil {
		t.Error("drifted totals should fail validation")
	}
}

func TestValidateGroupIndexes(t *testing.T) {
	r := newRegistry(t)
	a := state.NewBank(0, 0, "USDC", 6)
	b := state.NewBank(0, 1, "USDC-2", 6)
	g, err := state.NewBankGroup(a, b)
	if err != nil {
		t.Fatalf("group: %v", err)
	}
	if err := r.AddBankGroup(g); err != nil {
		t.Fatalf("add group: %v", err)
	}

	v := ledger.NewInvariantValidator(r)
	if err := v.ValidateGroupIndexes(0); err != nil {
		t.Errorf("equal indexes rejected: %v", err)
	}

	b.DepositIndex = fp.FromMicros(1_100_000)
	err = v.ValidateGroupIndexes(0)
	if err == nil {
		t.Fatal("diverged indexes should fail validation")
	}
	if !strings.Contains(err.Error(), "deposit index") {
		t.Errorf("err = %v, want deposit index divergence", err)
	}
}

func TestValidateOpenInterest(t *testing.T) {
	r := newRegistry(t)
	m := state.NewPerpMarket(0, "BTC-PERP", 2, 0, 100, 10)
	if err := r.AddMarket(m); err != nil {
		t.Fatalf("add market: %v", err)
	}

	long := state.NewAccount(ownerA, 0)
	pp, _, err := long.EnsurePerpPosition(0)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	pp.BasePositionLots = 10
	short := state.NewAccount(ownerB, 0)
	pp, _, err = short.EnsurePerpPosition(0)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	pp.BasePositionLots = -10
	if err := r.AddAccount(long); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.AddAccount(short); err != nil {
		t.Fatalf("add: %v", err)
	}
	m.OpenInterest = 20

	v := ledger.NewInvariantValidator(r)
	if err := v.ValidateOpenInterest(0); err != nil {
		t.Errorf("consistent open interest rejected: %v", err)
	}

	m.OpenInterest = 15
	if err := v.ValidateOpenInterest(0); err == nil {
		t.Error("inconsistent open interest should fail validation")
	}
}

func TestValidateStatusFlags(t *testing.T) {
	r := newRegistry(t)
	acct := state.NewAccount(ownerA, 0)
	acct.IsBankrupt = true
	if err := r.AddAccount(acct); err != nil {
		t.Fatalf("add: %v", err)
	}

	v := ledger.NewInvariantValidator(r)
	if err := v.ValidateStatusFlags(); err == nil {
		t.Error("bankrupt without being-liquidated should fail validation")
	}

	acct.BeingLiquidated = true
	if err := v.ValidateStatusFlags(); err != nil {
		t.Errorf("consistent flags rejected: %v", err)
	}
}

func TestValidateAll(t *testing.T) {
	r := newRegistry(t)
	bank := state.NewBank(0, 0, "USDC", 6)
	g, err := state.NewBankGroup(bank)
	if err != nil {
		t.Fatalf("group: %v", err)
	}
	if err := r.AddBankGroup(g); err != nil {
		t.Fatalf("add group: %v", err)
	}
	m := state.NewPerpMarket(0, "BTC-PERP", 2, 0, 100, 10)
	if err := r.AddMarket(m); err != nil {
		t.Fatalf("add market: %v", err)
	}

	v := ledger.NewInvariantValidator(r)
	if err := v.ValidateAll(); err != nil {
		t.Errorf("empty consistent registry rejected: %v", err)
	}
}
