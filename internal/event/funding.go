package event

import (
	"fmt"
	"time"
)

// FundingUpdate advances a market's cumulative funding accumulators. Produced
// by the funding keeper once per interval; deltas are native quote per base
// lot scaled by 1e6. Idempotency key: market plus epoch.
type FundingUpdate struct {
	Market           uint16
	EpochID          int64
	LongDeltaMicros  int64
	ShortDeltaMicros int64
	Sequence         int64
	Timestamp        time.Time
}

func (f *FundingUpdate) IdempotencyKey() string {
	return fmt.Sprintf("funding:%d:%d", f.Market, f.EpochID)
}

func (f *FundingUpdate) EventType() EventType {
	return EventTypeFundingUpdate
}

func (f *FundingUpdate) SourceSequence() int64 {
	return f.Sequence
}
