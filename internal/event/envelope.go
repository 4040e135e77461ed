package event

import (
	"time"
)

// EventType discriminator for event payloads.
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeDeposit
	EventTypeWithdrawal
	EventTypeTradeMatched
	EventTypeFillExecuted
	EventTypeFundingUpdate
	EventTypePriceUpdate
	EventTypeRiskParamUpdate
	EventTypeLiquidationRequested
	EventTypeBankruptcyRequested
)

// Envelope wraps every event accepted into the settlement log.
type Envelope struct {
	// Global monotonic sequence assigned on accept.
	Sequence int64

	// Stable idempotency key from upstream.
	IdempotencyKey string

	EventType EventType

	// Versioned input timestamp from the producer, not wall-clock.
	Timestamp time.Time

	// Upstream sequence for ordering validation.
	SourceSequence int64

	// JSON-encoded event payload.
	Payload []byte
}

// Event is implemented by all event payloads.
type Event interface {
	// IdempotencyKey returns the stable dedup key.
	IdempotencyKey() string

	// EventType returns the discriminator.
	EventType() EventType

	// SourceSequence returns the upstream ordering key.
	SourceSequence() int64
}

func (et EventType) String() string {
	switch et {
	case EventTypeDeposit:
		return "Deposit"
	case EventTypeWithdrawal:
		return "Withdrawal"
	case EventTypeTradeMatched:
		return "TradeMatched"
	case EventTypeFillExecuted:
		return "FillExecuted"
	case EventTypeFundingUpdate:
		return "FundingUpdate"
	case EventTypePriceUpdate:
		return "PriceUpdate"
	case EventTypeRiskParamUpdate:
		return "RiskParamUpdate"
	case EventTypeLiquidationRequested:
		return "LiquidationRequested"
	case EventTypeBankruptcyRequested:
		return "BankruptcyRequested"
	default:
		return "Unknown"
	}
}
