package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"MarginCore/internal/event"
)

// AdminInjectService provides manual event injection for operators. Not a
// high-throughput path; bulk traffic goes through NATS.
type AdminInjectService struct {
	eventChan chan<- event.Event
}

func NewAdminInjectService(eventChan chan<- event.Event) *AdminInjectService {
	return &AdminInjectService{eventChan: eventChan}
}

// InjectDeposit manually injects a Deposit event.
func (s *AdminInjectService) InjectDeposit(
	ctx context.Context,
	accountID uuid.UUID,
	asset uint16,
	amountMicros int64,
) error {
	if amountMicros <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	evt := &event.Deposit{
		TransferID:   uuid.New(),
		AccountID:    accountID,
		Asset:        asset,
		AmountMicros: amountMicros,
		Sequence:     time.Now().UnixMicro(), // Admin-injected: timestamp as sequence
		Timestamp:    time.Now(),
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectWithdrawal manually injects a Withdrawal event.
func (s *AdminInjectService) InjectWithdrawal(
	ctx context.Context,
	accountID uuid.UUID,
	asset uint16,
	amountMicros int64,
	allowBorrow bool,
) error {
	if amountMicros <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	evt := &event.Withdrawal{
		TransferID:   uuid.New(),
		AccountID:    accountID,
		Asset:        asset,
		AmountMicros: amountMicros,
		AllowBorrow:  allowBorrow,
		Sequence:     time.Now().UnixMicro(),
		Timestamp:    time.Now(),
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectPrice manually injects a PriceUpdate event.
func (s *AdminInjectService) InjectPrice(
	ctx context.Context,
	oracleID string,
	priceMicros int64,
) error {
	if priceMicros <= 0 {
		return fmt.Errorf("price must be positive")
	}

	evt := &event.PriceUpdate{
		OracleID:    oracleID,
		PriceMicros: priceMicros,
		Sequence:    time.Now().UnixMicro(),
		Timestamp:   time.Now(),
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectFunding manually injects a FundingUpdate event.
func (s *AdminInjectService) InjectFunding(
	ctx context.Context,
	market uint16,
	epochID int64,
	longDeltaMicros, shortDeltaMicros int64,
) error {
	evt := &event.FundingUpdate{
		Market:           market,
		EpochID:          epochID,
		LongDeltaMicros:  longDeltaMicros,
		ShortDeltaMicros: shortDeltaMicros,
		Sequence:         time.Now().UnixMicro(),
		Timestamp:        time.Now(),
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
