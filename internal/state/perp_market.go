package state

import (
	"fmt"

	"MarginCore/internal/fp"
)

// PerpMarketIndex identifies a perpetual-futures market.
type PerpMarketIndex uint16

// PerpMarketIndexInactive marks an unused perp position slot.
const PerpMarketIndexInactive PerpMarketIndex = 0xFFFF

// Side of a taker trade.
type Side uint8

const (
	SideBid Side = iota
	SideAsk
)

func (s Side) String() string {
	switch s {
	case SideBid:
		return "Bid"
	case SideAsk:
		return "Ask"
	default:
		return "Unknown"
	}
}

// PerpMarket is the shared per-market state mutated by every trade and
// funding settlement. Like Bank, it is passed as an explicit handle into
// every mutating call.
type PerpMarket struct {
	Market     PerpMarketIndex
	Name       string
	BaseAsset  AssetIndex
	QuoteAsset AssetIndex

	// Lot sizes convert lots to native amounts.
	BaseLotSize  int64
	QuoteLotSize int64

	// OpenInterest is the sum of |base position| over all accounts, in lots.
	OpenInterest int64

	// Cumulative funding accumulators, in native quote per base lot. An
	// external funding keeper advances these; positions settle against them.
	LongFunding  fp.Fixed
	ShortFunding fp.Fixed

	MakerFee       fp.Fixed
	TakerFee       fp.Fixed
	LiquidationFee fp.Fixed

	// Risk weights applied to the base leg in health computations.
	MaintAssetWeight fp.Fixed
	InitAssetWeight  fp.Fixed
	MaintLiabWeight  fp.Fixed
	InitLiabWeight   fp.Fixed

	// OracleID names the mark/index price feed.
	OracleID string

	SeqNum      uint64
	FeesAccrued fp.Fixed

	Reserved [64]byte
}

// NewPerpMarket returns a market with the given lot sizes and no funding
// accrued.
func NewPerpMarket(market PerpMarketIndex, name string, base, quote AssetIndex, baseLotSize, quoteLotSize int64) *PerpMarket {
	one := fp.FromInt64(1)
	return &PerpMarket{
		Market:           market,
		Name:             name,
		BaseAsset:        base,
		QuoteAsset:       quote,
		BaseLotSize:      baseLotSize,
		QuoteLotSize:     quoteLotSize,
		MaintAssetWeight: one,
		InitAssetWeight:  one,
		MaintLiabWeight:  one,
		InitLiabWeight:   one,
	}
}

// AccrueFunding advances both cumulative funding accumulators by the given
// native-quote-per-base-lot deltas. Called by the external funding keeper at
// each funding interval; positions pick the change up on their next
// settlement.
func (m *PerpMarket) AccrueFunding(longDelta, shortDelta fp.Fixed) error {
	long := m.LongFunding.Add(longDelta)
	short := m.ShortFunding.Add(shortDelta)
	if err := long.CheckRange(); err != nil {
		return fmt.Errorf("%w: long funding: %v", ErrArithmeticOverflow, err)
	}
	if err := short.CheckRange(); err != nil {
		return fmt.Errorf("%w: short funding: %v", ErrArithmeticOverflow, err)
	}
	m.LongFunding = long
	m.ShortFunding = short
	m.SeqNum++
	return nil
}

// LotToNativeQuote converts quote lots to native quote units.
func (m *PerpMarket) LotToNativeQuote(quoteLots int64) fp.Fixed {
	return fp.FromInt64(quoteLots).MulInt(m.QuoteLotSize)
}
