package event

import (
	"time"

	"github.com/google/uuid"
)

// Deposit is a confirmed transfer into an account, in native units of the
// asset. Idempotency key: transfer_id from the custody gateway.
type Deposit struct {
	TransferID uuid.UUID
	AccountID  uuid.UUID
	Asset      uint16
	// Amount in native units scaled by 1e6.
	AmountMicros int64
	Sequence     int64
	Timestamp    time.Time
}

func (d *Deposit) IdempotencyKey() string {
	return d.TransferID.String()
}

func (d *Deposit) EventType() EventType {
	return EventTypeDeposit
}

func (d *Deposit) SourceSequence() int64 {
	return d.Sequence
}
