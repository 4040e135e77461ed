package ledger

import (
	"fmt"

	"github.com/google/uuid"

	"MarginCore/internal/fp"
	"MarginCore/internal/state"
)

// JournalType classifies a settlement journal entry.
type JournalType int32

const (
	JournalTypeDeposit JournalType = iota
	JournalTypeWithdrawal
	JournalTypeTradeMatched
	JournalTypeFillExecuted
	JournalTypeFundingAccrual
	JournalTypeFundingSettle
	JournalTypeLiquidationTransfer
	JournalTypeBankruptcySettle
	JournalTypeRiskParamChange
)

func (jt JournalType) String() string {
	switch jt {
	case JournalTypeDeposit:
		return "deposit"
	case JournalTypeWithdrawal:
		return "withdrawal"
	case JournalTypeTradeMatched:
		return "trade_matched"
	case JournalTypeFillExecuted:
		return "fill_executed"
	case JournalTypeFundingAccrual:
		return "funding_accrual"
	case JournalTypeFundingSettle:
		return "funding_settle"
	case JournalTypeLiquidationTransfer:
		return "liquidation_transfer"
	case JournalTypeBankruptcySettle:
		return "bankruptcy_settle"
	case JournalTypeRiskParamChange:
		return "risk_param_change"
	default:
		return "unknown"
	}
}

// Journal records one applied settlement operation for the audit trail and
// outbound publishing. Amounts are signed native quantities from the
// transacting account's perspective.
type Journal struct {
	JournalID uuid.UUID
	// EventRef is the idempotency key of the source event.
	EventRef string
	// Sequence is the global sequence assigned at accept.
	Sequence    int64
	JournalType JournalType

	AccountID uuid.UUID
	// CounterpartyID is set for liquidation and bankruptcy steps.
	CounterpartyID uuid.UUID

	Asset  state.AssetIndex
	Market state.PerpMarketIndex

	// Amount is the primary quantity moved; Secondary carries the other leg
	// (collateral seized, insurance drawn) where one exists.
	Amount    fp.Fixed
	Secondary fp.Fixed

	// Timestamp is the versioned input timestamp in epoch microseconds.
	Timestamp int64
}

// NewJournal builds a journal entry with a fresh ID.
func NewJournal(jt JournalType, eventRef string, seq int64, acct uuid.UUID, ts int64) Journal {
	return Journal{
		JournalID:   uuid.New(),
		EventRef:    eventRef,
		Sequence:    seq,
		JournalType: jt,
		AccountID:   acct,
		Asset:       state.AssetIndexInactive,
		Market:      state.PerpMarketIndexInactive,
		Amount:      fp.Zero,
		Secondary:   fp.Zero,
		Timestamp:   ts,
	}
}

// Validate checks the entry is well-formed before persistence.
func (j *Journal) Validate() error {
	if j.JournalID == uuid.Nil {
		return fmt.Errorf("journal has nil id")
	}
	if j.EventRef == "" {
		return fmt.Errorf("journal %s has empty event ref", j.JournalID)
	}
	// Market-wide entries (funding, risk params) carry no account.
	switch j.JournalType {
	case JournalTypeFundingSettle, JournalTypeFundingAccrual, JournalTypeRiskParamChange:
	default:
		if j.AccountID == uuid.Nil {
			return fmt.Errorf("journal %s has nil account", j.JournalID)
		}
	}
	return nil
}
