package event

import (
	"time"

	"github.com/google/uuid"
)

// LiquidationRequested asks the engine to run one token-for-token
// liquidation step against an unhealthy account. Idempotency key: request_id.
type LiquidationRequested struct {
	RequestID uuid.UUID
	LiqeeID   uuid.UUID
	LiqorID   uuid.UUID
	// AssetAsset is the collateral to seize, LiabAsset the borrow to repay.
	AssetAsset uint16
	LiabAsset  uint16
	// MaxLiabTransfer in native liability units scaled by 1e6.
	MaxLiabTransferMicros int64
	Sequence              int64
	Timestamp             time.Time
}

func (l *LiquidationRequested) IdempotencyKey() string {
	return l.RequestID.String()
}

func (l *LiquidationRequested) EventType() EventType {
	return EventTypeLiquidationRequested
}

func (l *LiquidationRequested) SourceSequence() int64 {
	return l.Sequence
}

// BankruptcyRequested asks the engine to run one bankruptcy settlement step
// against a bankrupt account's borrow in LiabAsset. Idempotency key:
// request_id.
type BankruptcyRequested struct {
	RequestID uuid.UUID
	LiqeeID   uuid.UUID
	LiqorID   uuid.UUID
	LiabAsset uint16
	// MaxLiabTransfer in native liability units scaled by 1e6.
	MaxLiabTransferMicros int64
	Sequence              int64
	Timestamp             time.Time
}

func (b *BankruptcyRequested) IdempotencyKey() string {
	return b.RequestID.String()
}

func (b *BankruptcyRequested) EventType() EventType {
	return EventTypeBankruptcyRequested
}

func (b *BankruptcyRequested) SourceSequence() int64 {
	return b.Sequence
}
