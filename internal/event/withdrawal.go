package event

import (
	"time"

	"github.com/google/uuid"
)

// Withdrawal is a requested transfer out of an account. AllowBorrow permits
// the position to go negative, subject to the init-health gate at apply time.
// Idempotency key: transfer_id.
type Withdrawal struct {
	TransferID uuid.UUID
	AccountID  uuid.UUID
	Asset      uint16
	// Amount in native units scaled by 1e6.
	AmountMicros int64
	AllowBorrow  bool
	Sequence     int64
	Timestamp    time.Time
}

func (w *Withdrawal) IdempotencyKey() string {
	return w.TransferID.String()
}

func (w *Withdrawal) EventType() EventType {
	return EventTypeWithdrawal
}

func (w *Withdrawal) SourceSequence() int64 {
	return w.Sequence
}
