package event

import (
	"time"

	"github.com/google/uuid"
)

// TradeMatched is a taker trade reported by the matching engine before
// settlement confirmation. It books pending taker exposure only.
// Idempotency key: fill_id.
type TradeMatched struct {
	FillID    uuid.UUID
	AccountID uuid.UUID
	Market    uint16
	// Side is "bid" or "ask", the taker's side.
	Side         string
	BaseLots     int64
	QuoteLots    int64
	FillSequence int64
	Timestamp    time.Time
}

func (t *TradeMatched) IdempotencyKey() string {
	return t.FillID.String() + ":matched"
}

func (t *TradeMatched) EventType() EventType {
	return EventTypeTradeMatched
}

func (t *TradeMatched) SourceSequence() int64 {
	return t.FillSequence
}

// FillExecuted confirms a previously matched trade and settles it into the
// position: funding, entry/exit bookkeeping, quote leg and taker fee.
// Idempotency key: fill_id.
type FillExecuted struct {
	FillID       uuid.UUID
	AccountID    uuid.UUID
	Market       uint16
	Side         string
	BaseLots     int64
	QuoteLots    int64
	FillSequence int64
	Timestamp    time.Time
}

func (f *FillExecuted) IdempotencyKey() string {
	return f.FillID.String() + ":executed"
}

func (f *FillExecuted) EventType() EventType {
	return EventTypeFillExecuted
}

func (f *FillExecuted) SourceSequence() int64 {
	return f.FillSequence
}
