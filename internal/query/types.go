package query

import "github.com/google/uuid"

// BalanceResponse is one asset balance for an account. Amounts are decimal
// strings of native units to preserve the fractional interest component.
type BalanceResponse struct {
	AccountID uuid.UUID `json:"account_id"`
	Asset     uint16    `json:"asset"`
	AssetName string    `json:"asset_name"`

	// Native is the interest-adjusted balance; negative means a borrow.
	Native  string `json:"native"`
	Indexed string `json:"indexed"`

	AsOfSequence int64 `json:"as_of_sequence"`
}

// PositionResponse is one perp position for an account.
type PositionResponse struct {
	AccountID        uuid.UUID `json:"account_id"`
	Market           uint16    `json:"market"`
	MarketName       string    `json:"market_name"`
	BaseLots         int64     `json:"base_lots"`
	QuoteNative      string    `json:"quote_native"`
	AvgEntryPrice    string    `json:"avg_entry_price"`
	BreakEvenPrice   string    `json:"break_even_price"`
	UnsettledFunding string    `json:"unsettled_funding"`
	AsOfSequence     int64     `json:"as_of_sequence"`
}

// MarginInfo is the derived margin view of an account.
type MarginInfo struct {
	AccountID uuid.UUID `json:"account_id"`

	MaintHealth string `json:"maint_health"`
	InitHealth  string `json:"init_health"`

	BeingLiquidated bool `json:"being_liquidated"`
	IsBankrupt      bool `json:"is_bankrupt"`
	// Liquidatable mirrors the engine's entry gate: maint health below zero.
	Liquidatable bool `json:"liquidatable"`

	AsOfSequence int64 `json:"as_of_sequence"`
}

// JournalHistoryEntry is one persisted journal row for API consumption.
type JournalHistoryEntry struct {
	JournalID      string `json:"journal_id"`
	EventRef       string `json:"event_ref"`
	Sequence       int64  `json:"sequence"`
	JournalType    string `json:"journal_type"`
	AccountID      string `json:"account_id,omitempty"`
	CounterpartyID string `json:"counterparty_id,omitempty"`
	Asset          int16  `json:"asset"`
	Market         int16  `json:"market"`
	Amount         string `json:"amount"`
	Secondary      string `json:"secondary"`
	TimestampUs    int64  `json:"timestamp_us"`
}

// LiquidationHistoryEntry is one row from the liquidation read model.
type LiquidationHistoryEntry struct {
	JournalID    string `json:"journal_id"`
	LiqeeID      string `json:"liqee_id"`
	LiqorID      string `json:"liqor_id"`
	JournalType  string `json:"journal_type"`
	Asset        int16  `json:"asset"`
	LiabTransfer string `json:"liab_transfer"`
	Secondary    string `json:"secondary"`
	Sequence     int64  `json:"sequence"`
	TimestampUs  int64  `json:"timestamp_us"`
}

// IntegrityReport is the result of an invariant verification pass.
type IntegrityReport struct {
	IsHealthy     bool     `json:"is_healthy"`
	Violations    []string `json:"violations,omitempty"`
	SequenceGaps  []int64  `json:"sequence_gaps,omitempty"`
	AsOfSequence  int64    `json:"as_of_sequence"`
}
