package event

import (
	"fmt"
	"time"
)

// PriceUpdate refreshes one oracle feed. Price is scaled by 1e6.
// Idempotency key: oracle plus source sequence.
type PriceUpdate struct {
	OracleID    string
	PriceMicros int64
	Sequence    int64
	Timestamp   time.Time
}

func (p *PriceUpdate) IdempotencyKey() string {
	return fmt.Sprintf("price:%s:%d", p.OracleID, p.Sequence)
}

func (p *PriceUpdate) EventType() EventType {
	return EventTypePriceUpdate
}

func (p *PriceUpdate) SourceSequence() int64 {
	return p.Sequence
}
