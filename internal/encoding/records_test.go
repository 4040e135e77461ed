package encoding_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"MarginCore/internal/encoding"
	"MarginCore/internal/fp"
	"MarginCore/internal/state"
)

func sampleAccount() *state.Account {
	a := state.NewAccount(uuid.MustParse("11111111-2222-3333-4444-555555555555"), 7)
	a.AccountID = uuid.MustParse("99999999-8888-7777-6666-555555555555")
	a.BeingLiquidated = true
	a.Version = 42

	a.Tokens[0].Asset = 3
	a.Tokens[0].Indexed = fp.FromMicros(-1_234_567) // negative fixed-point survives
	a.Tokens[0].InUseCount = 2
	a.Tokens[0].Reserved[0] = 0xAB

	a.Perps[1].Market = 5
	a.Perps[1].BasePositionLots = -100
	a.Perps[1].QuotePositionNative = fp.FromMicros(987_654_321)
	a.Perps[1].BaseEntryLots = -100
	a.Perps[1].QuoteEntryNative = 123456
	a.Perps[1].QuoteExitNative = -789
	a.Perps[1].LongSettledFunding = fp.FromMicros(-42)
	a.Perps[1].ShortSettledFunding = fp.FromInt64(17)
	a.Perps[1].BidsBaseLots = 4
	a.Perps[1].AsksBaseLots = 5
	a.Perps[1].TakerBaseLots = -6
	a.Perps[1].TakerQuoteLots = 7
	a.Perps[1].Reserved[63] = 0xCD

	a.Reserved[10] = 0xEF
	return a
}

func TestAccountRecordRoundTrip(t *testing.T) {
	a := sampleAccount()

	data, err := encoding.EncodeAccount(a)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(data) != encoding.AccountRecordSize {
		t.Fatalf("record size = %d, want %d", len(data), encoding.AccountRecordSize)
	}

	got, err := encoding.DecodeAccount(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.AccountID != a.AccountID || got.Owner != a.Owner || got.AccountNum != a.AccountNum {
		t.Error("identity fields did not round-trip")
	}
	if got.BeingLiquidated != true || got.IsBankrupt != false {
		t.Errorf("flags = (%v, %v), want (true, false)", got.BeingLiquidated, got.IsBankrupt)
	}
	if got.Version != 42 {
		t.Errorf("version = %d, want 42", got.Version)
	}

	if got.Tokens[0].Asset != 3 || got.Tokens[0].InUseCount != 2 {
		t.Error("token slot fields did not round-trip")
	}
	if !got.Tokens[0].Indexed.Equal(a.Tokens[0].Indexed) {
		t.Errorf("token indexed = %s, want %s", got.Tokens[0].Indexed, a.Tokens[0].Indexed)
	}
	if got.Tokens[0].Reserved != a.Tokens[0].Reserved {
		t.Error("token reserved bytes did not round-trip")
	}
	if got.Tokens[1].Asset != state.AssetIndexInactive {
		t.Error("inactive token slot should decode as inactive")
	}

	p, q := &got.Perps[1], &a.Perps[1]
	if p.Market != q.Market || p.BasePositionLots != q.BasePositionLots ||
		p.BaseEntryLots != q.BaseEntryLots || p.QuoteEntryNative != q.QuoteEntryNative ||
		p.QuoteExitNative != q.QuoteExitNative ||
		p.BidsBaseLots != q.BidsBaseLots || p.AsksBaseLots != q.AsksBaseLots ||
		p.TakerBaseLots != q.TakerBaseLots || p.TakerQuoteLots != q.TakerQuoteLots {
		t.Error("perp slot integers did not round-trip")
	}
	if !p.QuotePositionNative.Equal(q.QuotePositionNative) {
		t.Errorf("perp quote = %s, want %s", p.QuotePositionNative, q.QuotePositionNative)
	}
	if !p.LongSettledFunding.Equal(q.LongSettledFunding) || !p.ShortSettledFunding.Equal(q.ShortSettledFunding) {
		t.Error("settled funding did not round-trip")
	}
	if p.Reserved != q.Reserved {
		t.Error("perp reserved bytes did not round-trip")
	}
	if got.Perps[0].Market != state.PerpMarketIndexInactive {
		t.Error("inactive perp slot should decode as inactive")
	}

	if got.Reserved != a.Reserved {
		t.Error("account reserved bytes did not round-trip")
	}
}

func TestBankRecordRoundTrip(t *testing.T) {
	b := state.NewBank(9, 1, "WETH", 18)
	b.OracleID = "pyth:Crypto.ETH/USD"
	b.DepositIndex = fp.FromMicros(1_000_123)
	b.BorrowIndex = fp.FromMicros(1_001_456)
	b.IndexedTotalDeposits = fp.FromInt64(123_456)
	b.IndexedTotalBorrows = fp.FromInt64(98_765)
	b.MaintAssetWeight = fp.FromMicros(900_000)
	b.InitAssetWeight = fp.FromMicros(800_000)
	b.MaintLiabWeight = fp.FromMicros(1_100_000)
	b.InitLiabWeight = fp.FromMicros(1_200_000)
	b.LiquidationFee = fp.FromMicros(20_000)
	b.Reserved[5] = 0x55

	data, err := encoding.EncodeBank(b)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(data) != encoding.BankRecordSize {
		t.Fatalf("record size = %d, want %d", len(data), encoding.BankRecordSize)
	}

	got, err := encoding.DecodeBank(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.Asset != 9 || got.BankNum != 1 || got.MintDecimals != 18 || got.Name != "WETH" {
		t.Error("bank identity fields did not round-trip")
	}
	if got.OracleID != b.OracleID {
		t.Errorf("oracle = %q, want %q", got.OracleID, b.OracleID)
	}
	pairs := []struct {
		name string
		got  fp.Fixed
		want fp.Fixed
	}{
		{"deposit index", got.DepositIndex, b.DepositIndex},
		{"borrow index", got.BorrowIndex, b.BorrowIndex},
		{"total deposits", got.IndexedTotalDeposits, b.IndexedTotalDeposits},
		{"total borrows", got.IndexedTotalBorrows, b.IndexedTotalBorrows},
		{"maint asset weight", got.MaintAssetWeight, b.MaintAssetWeight},
		{"init asset weight", got.InitAssetWeight, b.InitAssetWeight},
		{"maint liab weight", got.MaintLiabWeight, b.MaintLiabWeight},
		{"init liab weight", got.InitLiabWeight, b.InitLiabWeight},
		{"liquidation fee", got.LiquidationFee, b.LiquidationFee},
	}
	for _, p := range pairs {
		if !p.got.Equal(p.want) {
			t.Errorf("%s = %s, want %s", p.name, p.got, p.want)
		}
	}
	if got.Reserved != b.Reserved {
		t.Error("reserved bytes did not round-trip")
	}
}

func TestMarketRecordRoundTrip(t *testing.T) {
	m := state.NewPerpMarket(3, "SOL-PERP", 4, 0, 100, 10)
	m.OracleID = "pyth:Crypto.SOL/USD"
	m.OpenInterest = 5000
	m.LongFunding = fp.FromMicros(-3_500_000)
	m.ShortFunding = fp.FromMicros(2_250_000)
	m.MakerFee = fp.FromMicros(-200)
	m.TakerFee = fp.FromMicros(400)
	m.LiquidationFee = fp.FromMicros(12_500)
	m.SeqNum = 987654321
	m.FeesAccrued = fp.FromMicros(55_555)
	m.Reserved[0] = 0x01

	data, err := encoding.EncodePerpMarket(m)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(data) != encoding.MarketRecordSize {
		t.Fatalf("record size = %d, want %d", len(data), encoding.MarketRecordSize)
	}

	got, err := encoding.DecodePerpMarket(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.Market != 3 || got.BaseAsset != 4 || got.QuoteAsset != 0 || got.Name != "SOL-PERP" {
		t.Error("market identity fields did not round-trip")
	}
	if got.BaseLotSize != 100 || got.QuoteLotSize != 10 || got.OpenInterest != 5000 {
		t.Error("lot sizes / open interest did not round-trip")
	}
	if !got.LongFunding.Equal(m.LongFunding) || !got.ShortFunding.Equal(m.ShortFunding) {
		t.Error("funding accumulators did not round-trip")
	}
	if !got.MakerFee.Equal(m.MakerFee) || !got.TakerFee.Equal(m.TakerFee) {
		t.Error("fees did not round-trip")
	}
	if got.SeqNum != m.SeqNum || !got.FeesAccrued.Equal(m.FeesAccrued) {
		t.Error("seq num / fees accrued did not round-trip")
	}
	if got.OracleID != m.OracleID {
		t.Errorf("oracle = %q, want %q", got.OracleID, m.OracleID)
	}
	if got.Reserved != m.Reserved {
		t.Error("reserved bytes did not round-trip")
	}
}

func TestDecode_DiscriminatorMismatch(t *testing.T) {
	b := state.NewBank(1, 0, "USDC", 6)
	data, err := encoding.EncodeBank(b)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	// A bank record is not an account record.
	if _, err := encoding.DecodeAccount(data); !errors.Is(err, state.ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}

func TestDecode_Truncated(t *testing.T) {
	data, err := encoding.EncodeBank(state.NewBank(1, 0, "USDC", 6))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := encoding.DecodeBank(data[:len(data)/2]); !errors.Is(err, state.ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}

func TestDecode_TrailingBytes(t *testing.T) {
	data, err := encoding.EncodePerpMarket(state.NewPerpMarket(0, "BTC-PERP", 1, 0, 100, 10))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := encoding.DecodePerpMarket(append(data, 0x00)); !errors.Is(err, state.ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}
