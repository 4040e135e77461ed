package core

import (
	"fmt"

	"MarginCore/internal/fp"
	"MarginCore/internal/state"
)

// HealthType selects the risk-weight set for a health computation.
type HealthType int

const (
	// HealthMaint gates liquidation entry: accounts below zero maintenance
	// health may be liquidated.
	HealthMaint HealthType = iota

	// HealthInit gates new exposure and liquidation exit: liquidation stops
	// once an account is back above zero init health.
	HealthInit
)

// HealthContext carries the shared records a health computation needs. Banks
// are keyed by asset (the group's primary bank), markets by market index.
type HealthContext struct {
	Banks   map[state.AssetIndex]*state.Bank
	Markets map[state.PerpMarketIndex]*state.PerpMarket
	Oracle  state.PriceSource
}

// Health values an account's positions at oracle prices, weighted by the
// given health type. Deposits count below face value, borrows above it, so
// zero health is crossed before equity actually runs out.
func (hc *HealthContext) Health(acct *state.Account, typ HealthType) (fp.Fixed, error) {
	total := fp.Zero

	for _, tp := range acct.ActiveTokenPositions() {
		bank, ok := hc.Banks[tp.Asset]
		if !ok {
			return fp.Zero, fmt.Errorf("%w: no bank for asset %d", state.ErrInvalidState, tp.Asset)
		}
		price, err := hc.Oracle.Price(bank.OracleID)
		if err != nil {
			return fp.Zero, err
		}
		native := tp.Native(bank)
		value := native.Mul(price)
		total = total.Add(value.Mul(tokenWeight(bank, native, typ)))
	}

	for _, pp := range acct.ActivePerpPositions() {
		market, ok := hc.Markets[pp.Market]
		if !ok {
			return fp.Zero, fmt.Errorf("%w: no market %d", state.ErrInvalidState, pp.Market)
		}
		contrib, err := hc.perpHealth(pp, market, typ)
		if err != nil {
			return fp.Zero, err
		}
		total = total.Add(contrib)
	}

	return total, nil
}

// healthWithOverride computes health with the passed banks standing in for
// the registered banks of the same assets. Transactions use it to gate on the
// post-transaction bank state before committing it.
func (hc *HealthContext) healthWithOverride(acct *state.Account, typ HealthType, banks ...*state.Bank) (fp.Fixed, error) {
	type saved struct {
		bank *state.Bank
		had  bool
	}
	prev := make(map[state.AssetIndex]saved, len(banks))
	for _, b := range banks {
		if _, seen := prev[b.Asset]; !seen {
			old, had := hc.Banks[b.Asset]
			prev[b.Asset] = saved{old, had}
		}
		hc.Banks[b.Asset] = b
	}
	h, err := hc.Health(acct, typ)
	for asset, s := range prev {
		if s.had {
			hc.Banks[asset] = s.bank
		} else {
			delete(hc.Banks, asset)
		}
	}
	return h, err
}

func (hc *HealthContext) perpHealth(pp *state.PerpPosition, market *state.PerpMarket, typ HealthType) (fp.Fixed, error) {
	price, err := hc.Oracle.Price(market.OracleID)
	if err != nil {
		return fp.Zero, err
	}

	// Value the base leg as if funding were settled now; the quote leg
	// carries realized funding and trade proceeds at face value.
	quote := pp.QuotePositionNative.Sub(pp.UnsettledFunding(market))
	baseNative := fp.FromInt64(pp.BasePositionLots).MulInt(market.BaseLotSize)
	baseValue := baseNative.Mul(price)

	var weight fp.Fixed
	switch {
	case pp.BasePositionLots > 0:
		weight = market.MaintAssetWeight
		if typ == HealthInit {
			weight = market.InitAssetWeight
		}
	case pp.BasePositionLots < 0:
		weight = market.MaintLiabWeight
		if typ == HealthInit {
			weight = market.InitLiabWeight
		}
	default:
		return quote, nil
	}
	return quote.Add(baseValue.Mul(weight)), nil
}

func tokenWeight(bank *state.Bank, native fp.Fixed, typ HealthType) fp.Fixed {
	if native.Sign() >= 0 {
		if typ == HealthInit {
			return bank.InitAssetWeight
		}
		return bank.MaintAssetWeight
	}
	if typ == HealthInit {
		return bank.InitLiabWeight
	}
	return bank.MaintLiabWeight
}
