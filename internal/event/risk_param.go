package event

import (
	"fmt"
	"time"
)

// RiskParamUpdate replaces a bank's risk weights and liquidation fee. All
// weights are scaled by 1e6. Idempotency key: asset plus effective sequence.
type RiskParamUpdate struct {
	Asset                  uint16
	MaintAssetWeightMicros int64
	InitAssetWeightMicros  int64
	MaintLiabWeightMicros  int64
	InitLiabWeightMicros   int64
	LiquidationFeeMicros   int64
	EffectiveSeq           int64
	Sequence               int64
	Timestamp              time.Time
}

func (r *RiskParamUpdate) IdempotencyKey() string {
	return fmt.Sprintf("risk:%d:%d", r.Asset, r.EffectiveSeq)
}

func (r *RiskParamUpdate) EventType() EventType {
	return EventTypeRiskParamUpdate
}

func (r *RiskParamUpdate) SourceSequence() int64 {
	return r.Sequence
}
