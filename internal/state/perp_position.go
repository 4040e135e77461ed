package state

import (
	"fmt"

	"MarginCore/internal/fp"
)

// PerpPosition is one account's open interest in one perp market.
//
// Entry/exit bookkeeping invariant: closing the position exactly (base back
// to zero) forces QuoteEntryNative == QuoteExitNative == BaseEntryLots == 0.
type PerpPosition struct {
	Market PerpMarketIndex

	// BasePositionLots is the active position size in base lots.
	BasePositionLots int64

	// QuotePositionNative is the active position in native quote, at the
	// conversion rate of each settling trade. Funding settles into it.
	QuotePositionNative fp.Fixed

	// Entry/exit tracking for average entry and break-even prices.
	BaseEntryLots    int64
	QuoteEntryNative int64
	QuoteExitNative  int64

	// Funding already settled into QuotePositionNative.
	LongSettledFunding  fp.Fixed
	ShortSettledFunding fp.Fixed

	// Lots resting on the book.
	BidsBaseLots int64
	AsksBaseLots int64

	// Matched-but-unprocessed taker lots waiting on the event queue.
	TakerBaseLots  int64
	TakerQuoteLots int64

	Reserved [64]byte
}

// NewInactivePerpPosition returns an empty slot.
func NewInactivePerpPosition() PerpPosition {
	return PerpPosition{Market: PerpMarketIndexInactive}
}

// IsActive reports whether the slot holds a live position.
func (p *PerpPosition) IsActive() bool {
	return p.Market != PerpMarketIndexInactive
}

// IsActiveForMarket reports whether the slot belongs to market.
func (p *PerpPosition) IsActiveForMarket(market PerpMarketIndex) bool {
	return p.Market == market
}

// HasExposure reports whether any field would be lost by recycling the slot.
func (p *PerpPosition) HasExposure() bool {
	return p.BasePositionLots != 0 ||
		!p.QuotePositionNative.IsZero() ||
		p.BidsBaseLots != 0 || p.AsksBaseLots != 0 ||
		p.TakerBaseLots != 0 || p.TakerQuoteLots != 0
}

// AddTakerTrade records a trade that has been matched but not yet processed
// off the event queue. A bid adds base and subtracts quote; an ask is the
// mirror. RemoveTakerTrade is its exact inverse.
func (p *PerpPosition) AddTakerTrade(side Side, baseLots, quoteLots int64) error {
	var base, quote int64
	var err error
	switch side {
	case SideBid:
		if base, err = fp.AddI64(p.TakerBaseLots, baseLots); err == nil {
			quote, err = fp.SubI64(p.TakerQuoteLots, quoteLots)
		}
	case SideAsk:
		if base, err = fp.SubI64(p.TakerBaseLots, baseLots); err == nil {
			quote, err = fp.AddI64(p.TakerQuoteLots, quoteLots)
		}
	default:
		return fmt.Errorf("%w: unknown side %d", ErrInvalidState, side)
	}
	if err != nil {
		return fmt.Errorf("%w: taker trade: %v", ErrArithmeticOverflow, err)
	}
	p.TakerBaseLots = base
	p.TakerQuoteLots = quote
	return nil
}

// RemoveTakerTrade reverses an AddTakerTrade once the trade has been
// processed off the event queue.
func (p *PerpPosition) RemoveTakerTrade(baseChange, quoteChange int64) error {
	base, err := fp.SubI64(p.TakerBaseLots, baseChange)
	if err != nil {
		return fmt.Errorf("%w: taker trade: %v", ErrArithmeticOverflow, err)
	}
	quote, err := fp.SubI64(p.TakerQuoteLots, quoteChange)
	if err != nil {
		return fmt.Errorf("%w: taker trade: %v", ErrArithmeticOverflow, err)
	}
	p.TakerBaseLots = base
	p.TakerQuoteLots = quote
	return nil
}

// SettleFunding moves unrealized funding into QuotePositionNative and
// advances both settled-funding marks to the market's accumulators. Both
// marks advance even when flat, so a later side switch cannot re-apply stale
// funding. Must run before any base position change.
func (p *PerpPosition) SettleFunding(market *PerpMarket) {
	switch {
	case p.BasePositionLots > 0:
		unsettled := market.LongFunding.Sub(p.LongSettledFunding).MulInt(p.BasePositionLots)
		p.QuotePositionNative = p.QuotePositionNative.Sub(unsettled)
	case p.BasePositionLots < 0:
		unsettled := market.ShortFunding.Sub(p.ShortSettledFunding).MulInt(p.BasePositionLots)
		p.QuotePositionNative = p.QuotePositionNative.Sub(unsettled)
	}
	p.LongSettledFunding = market.LongFunding
	p.ShortSettledFunding = market.ShortFunding
}

// changeBasePosition sets the new base position and adjusts the market's
// open interest by |new| - |old|. Assumes SettleFunding already ran.
func (p *PerpPosition) changeBasePosition(market *PerpMarket, baseChange int64) error {
	start := p.BasePositionLots
	newBase, err := fp.AddI64(start, baseChange)
	if err != nil {
		return fmt.Errorf("%w: base position: %v", ErrArithmeticOverflow, err)
	}
	oi, err := fp.AddI64(market.OpenInterest, abs64(newBase)-abs64(start))
	if err != nil {
		return fmt.Errorf("%w: open interest: %v", ErrArithmeticOverflow, err)
	}
	p.BasePositionLots = newBase
	market.OpenInterest = oi
	return nil
}

// changeQuoteEntry updates the entry/exit bookkeeping for a trade, before the
// base position itself changes.
//
// Increasing trades accumulate into the entry fields. Decreasing trades
// accumulate into the exit field; a trade that returns the base position to
// exactly zero resets all three fields. A trade that overshoots past flat
// into the opposite side is treated as close-then-reopen: the new entry is
// the overshoot lots priced at the crossing trade's blended rate, rounded
// half away from zero.
func (p *PerpPosition) changeQuoteEntry(baseChange, quoteChange int64) error {
	if baseChange == 0 {
		return nil
	}
	oldPosition := p.BasePositionLots
	increasing := oldPosition == 0 || sign64(oldPosition) == sign64(baseChange)

	if increasing {
		entry, err := fp.AddI64(p.QuoteEntryNative, quoteChange)
		if err != nil {
			return fmt.Errorf("%w: quote entry: %v", ErrArithmeticOverflow, err)
		}
		lots, err := fp.AddI64(p.BaseEntryLots, baseChange)
		if err != nil {
			return fmt.Errorf("%w: entry lots: %v", ErrArithmeticOverflow, err)
		}
		p.QuoteEntryNative = entry
		p.BaseEntryLots = lots
		return nil
	}

	newPosition, err := fp.AddI64(oldPosition, baseChange)
	if err != nil {
		return fmt.Errorf("%w: base position: %v", ErrArithmeticOverflow, err)
	}
	exit, err := fp.AddI64(p.QuoteExitNative, quoteChange)
	if err != nil {
		return fmt.Errorf("%w: quote exit: %v", ErrArithmeticOverflow, err)
	}
	p.QuoteExitNative = exit

	if newPosition == 0 {
		p.QuoteEntryNative = 0
		p.QuoteExitNative = 0
		p.BaseEntryLots = 0
	}
	if sign64(oldPosition) == -sign64(newPosition) {
		// Crossed through flat: the overshoot is a fresh entry at the
		// crossing trade's blended price.
		entry, err := fp.RoundedDiv(newPosition, quoteChange, baseChange)
		if err != nil {
			return fmt.Errorf("%w: blended entry: %v", ErrArithmeticOverflow, err)
		}
		p.QuoteEntryNative = entry
		p.QuoteExitNative = 0
		p.BaseEntryLots = newPosition
	}
	return nil
}

// ChangeBaseAndEntryPositions applies a trade's base and quote changes. Entry
// tracking runs first: the open-interest delta must be computed against the
// base position before it mutates. Callers must SettleFunding first.
func (p *PerpPosition) ChangeBaseAndEntryPositions(market *PerpMarket, baseChange, quoteChange int64) error {
	if !p.IsActiveForMarket(market.Market) {
		return fmt.Errorf("%w: perp position not active for market %d", ErrInvalidState, market.Market)
	}
	if err := p.changeQuoteEntry(baseChange, quoteChange); err != nil {
		return err
	}
	return p.changeBasePosition(market, baseChange)
}

// AvgEntryPrice returns |QuoteEntryNative / BaseEntryLots|, or zero when
// there are no entry lots. See DESIGN.md for the decision to report zero
// rather than an explicit "undefined" result.
func (p *PerpPosition) AvgEntryPrice() fp.Fixed {
	if p.BaseEntryLots == 0 {
		return fp.Zero
	}
	return fp.FromInt64(p.QuoteEntryNative).DivInt(p.BaseEntryLots).Abs()
}

// BreakEvenPrice returns |(QuoteEntryNative + QuoteExitNative) /
// BasePositionLots|, or zero when flat.
func (p *PerpPosition) BreakEvenPrice() fp.Fixed {
	if p.BasePositionLots == 0 {
		return fp.Zero
	}
	total := fp.FromInt64(p.QuoteEntryNative).Add(fp.FromInt64(p.QuoteExitNative))
	return total.DivInt(p.BasePositionLots).Abs()
}

// UnsettledFunding returns the funding that SettleFunding would move into the
// quote position right now.
func (p *PerpPosition) UnsettledFunding(market *PerpMarket) fp.Fixed {
	switch {
	case p.BasePositionLots > 0:
		return market.LongFunding.Sub(p.LongSettledFunding).MulInt(p.BasePositionLots)
	case p.BasePositionLots < 0:
		return market.ShortFunding.Sub(p.ShortSettledFunding).MulInt(p.BasePositionLots)
	}
	return fp.Zero
}

func sign64(v int64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
