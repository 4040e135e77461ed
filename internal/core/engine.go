package core

import (
	"fmt"

	"github.com/rs/zerolog"

	"MarginCore/internal/fp"
	"MarginCore/internal/observability"
	"MarginCore/internal/state"
)

// Engine executes settlement transactions against explicitly-passed account,
// bank and market handles. Each exported method is one atomic transaction: it
// computes the full outcome on private copies first and commits only on
// success, so a failed call leaves no partial mutation behind. The storage
// layer serializes conflicting transactions; the engine itself never retries.
type Engine struct {
	health  *HealthContext
	log     zerolog.Logger
	metrics *observability.Metrics
}

// NewEngine wires a settlement engine. metrics may be nil.
func NewEngine(health *HealthContext, log zerolog.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{health: health, log: log, metrics: metrics}
}

// Deposit credits nativeAmount of the bank's asset to the account, activating
// a token position slot on first use. Paying down a borrow that reaches
// exactly zero recycles the slot.
func (e *Engine) Deposit(acct *state.Account, bank *state.Bank, nativeAmount fp.Fixed) error {
	if !nativeAmount.IsPositive() {
		return fmt.Errorf("%w: deposit amount must be positive", state.ErrInvalidState)
	}

	acctCopy := *acct
	bankCopy := *bank
	tp, _, err := acctCopy.EnsureTokenPosition(bank.Asset)
	if err != nil {
		return err
	}
	if _, err := bankCopy.Deposit(tp, nativeAmount); err != nil {
		return err
	}

	acctCopy.CloseTokenPositionIfZero(bank.Asset)
	acctCopy.Version++
	*acct = acctCopy
	*bank = bankCopy

	e.log.Info().
		Str("account", acct.AccountID.String()).
		Uint16("asset", uint16(bank.Asset)).
		Str("amount", nativeAmount.String()).
		Msg("deposit settled")
	if e.metrics != nil {
		e.metrics.DepositsTotal.Inc()
	}
	return nil
}

// Withdraw debits nativeAmount of the bank's asset. With allowBorrow the
// position may go negative, subject to the account staying at or above zero
// init health; without it, exceeding the deposit balance returns
// ErrInsufficientFunds.
func (e *Engine) Withdraw(acct *state.Account, bank *state.Bank, nativeAmount fp.Fixed, allowBorrow bool) error {
	if !nativeAmount.IsPositive() {
		return fmt.Errorf("%w: withdraw amount must be positive", state.ErrInvalidState)
	}

	acctCopy := *acct
	bankCopy := *bank
	tp, err := acctCopy.TokenPosition(bank.Asset)
	if err != nil {
		return err
	}
	if _, err := bankCopy.Withdraw(tp, nativeAmount, allowBorrow); err != nil {
		return err
	}

	if tp.Indexed.IsNegative() {
		health, err := e.health.healthWithOverride(&acctCopy, HealthInit, &bankCopy)
		if err != nil {
			return err
		}
		if health.IsNegative() {
			return fmt.Errorf("%w: borrow would leave init health %s", state.ErrInsufficientFunds, health)
		}
	}

	acctCopy.CloseTokenPositionIfZero(bank.Asset)
	acctCopy.Version++
	*acct = acctCopy
	*bank = bankCopy

	e.log.Info().
		Str("account", acct.AccountID.String()).
		Uint16("asset", uint16(bank.Asset)).
		Str("amount", nativeAmount.String()).
		Bool("allow_borrow", allowBorrow).
		Msg("withdrawal settled")
	if e.metrics != nil {
		e.metrics.WithdrawalsTotal.Inc()
	}
	return nil
}

// RegisterPerpMarket activates the account's perp position for the market and
// pins the settlement-token position open for as long as the market position
// exists.
func (e *Engine) RegisterPerpMarket(acct *state.Account, market *state.PerpMarket) error {
	acctCopy := *acct
	if _, _, err := acctCopy.EnsurePerpPosition(market.Market); err != nil {
		return err
	}
	quote, _, err := acctCopy.EnsureTokenPosition(market.QuoteAsset)
	if err != nil {
		return err
	}
	if quote.InUseCount == 0xFF {
		return fmt.Errorf("%w: in-use count saturated for asset %d", state.ErrInvalidState, market.QuoteAsset)
	}
	quote.InUseCount++
	acctCopy.Version++
	*acct = acctCopy
	return nil
}

// DeregisterPerpMarket recycles an exposure-free perp position slot and
// releases the settlement-token pin.
func (e *Engine) DeregisterPerpMarket(acct *state.Account, market *state.PerpMarket) error {
	acctCopy := *acct
	if err := acctCopy.DeactivatePerpPosition(market.Market); err != nil {
		return err
	}
	quote, err := acctCopy.TokenPosition(market.QuoteAsset)
	if err != nil {
		return err
	}
	if quote.InUseCount == 0 {
		return fmt.Errorf("%w: in-use count underflow for asset %d", state.ErrInvalidState, market.QuoteAsset)
	}
	quote.InUseCount--
	acctCopy.CloseTokenPositionIfZero(market.QuoteAsset)
	acctCopy.Version++
	*acct = acctCopy
	return nil
}

// ProcessMatchedTrade records a matched-but-unprocessed taker trade from the
// event queue against the account's pending taker fields.
func (e *Engine) ProcessMatchedTrade(acct *state.Account, market *state.PerpMarket, side state.Side, baseLots, quoteLots int64) error {
	acctCopy := *acct
	pp, err := acctCopy.PerpPosition(market.Market)
	if err != nil {
		return err
	}
	if err := pp.AddTakerTrade(side, baseLots, quoteLots); err != nil {
		return err
	}
	acctCopy.Version++
	*acct = acctCopy
	return nil
}

// ExecuteTakerFill settles a confirmed fill: funding first, then entry/exit
// and base bookkeeping, then the quote leg and taker fee, and finally the
// pending taker fields are released. side is the taker's side.
func (e *Engine) ExecuteTakerFill(acct *state.Account, market *state.PerpMarket, side state.Side, baseLots, quoteLots int64) error {
	if baseLots < 0 || quoteLots < 0 {
		return fmt.Errorf("%w: fill lots must be non-negative", state.ErrInvalidState)
	}

	acctCopy := *acct
	marketCopy := *market
	pp, err := acctCopy.PerpPosition(market.Market)
	if err != nil {
		return err
	}

	baseChange := baseLots
	quoteLotChange := -quoteLots
	if side == state.SideAsk {
		baseChange = -baseLots
		quoteLotChange = quoteLots
	}
	quoteNative, err := fp.MulI64(quoteLotChange, market.QuoteLotSize)
	if err != nil {
		return fmt.Errorf("%w: quote native: %v", state.ErrArithmeticOverflow, err)
	}

	pp.SettleFunding(&marketCopy)
	if err := pp.ChangeBaseAndEntryPositions(&marketCopy, baseChange, quoteNative); err != nil {
		return err
	}

	quoteChange := fp.FromInt64(quoteNative)
	fee := quoteChange.Abs().Mul(market.TakerFee)
	pp.QuotePositionNative = pp.QuotePositionNative.Add(quoteChange).Sub(fee)
	marketCopy.FeesAccrued = marketCopy.FeesAccrued.Add(fee)

	if err := pp.RemoveTakerTrade(baseChange, quoteLotChange); err != nil {
		return err
	}
	if err := pp.QuotePositionNative.CheckRange(); err != nil {
		return fmt.Errorf("%w: quote position: %v", state.ErrArithmeticOverflow, err)
	}

	acctCopy.Version++
	*acct = acctCopy
	*market = marketCopy

	e.log.Debug().
		Str("account", acct.AccountID.String()).
		Uint16("market", uint16(market.Market)).
		Str("side", side.String()).
		Int64("base_lots", baseLots).
		Int64("quote_lots", quoteLots).
		Msg("taker fill executed")
	if e.metrics != nil {
		e.metrics.FillsProcessed.Inc()
	}
	return nil
}

// AccrueAndSettleFunding advances the market's funding accumulators and
// settles every account holding a position in the market, all in one
// transaction. Everything is staged on copies first: if any settlement is
// rejected, neither the accumulators nor any account commits, so a
// redelivered funding event cannot double-accrue the epoch's delta.
func (e *Engine) AccrueAndSettleFunding(accounts []*state.Account, market *state.PerpMarket, longDelta, shortDelta fp.Fixed) error {
	marketCopy := *market
	if err := marketCopy.AccrueFunding(longDelta, shortDelta); err != nil {
		return err
	}

	type stagedAccount struct {
		target *state.Account
		next   state.Account
	}
	var staged []stagedAccount
	for _, acct := range accounts {
		acctCopy := *acct
		pp, err := acctCopy.PerpPosition(market.Market)
		if err != nil {
			continue
		}
		pp.SettleFunding(&marketCopy)
		if err := pp.QuotePositionNative.CheckRange(); err != nil {
			return fmt.Errorf("%w: quote position for account %s: %v",
				state.ErrArithmeticOverflow, acct.AccountID, err)
		}
		acctCopy.Version++
		staged = append(staged, stagedAccount{target: acct, next: acctCopy})
	}

	*market = marketCopy
	for i := range staged {
		*staged[i].target = staged[i].next
	}

	e.log.Debug().
		Uint16("market", uint16(market.Market)).
		Str("long_delta", longDelta.String()).
		Str("short_delta", shortDelta.String()).
		Int("positions_settled", len(staged)).
		Msg("funding accrued and settled")
	if e.metrics != nil {
		e.metrics.FundingSettlements.Add(float64(len(staged)))
	}
	return nil
}

// SettlePerpFunding moves the position's unrealized funding into its quote
// position against the market's current accumulators.
func (e *Engine) SettlePerpFunding(acct *state.Account, market *state.PerpMarket) error {
	acctCopy := *acct
	pp, err := acctCopy.PerpPosition(market.Market)
	if err != nil {
		return err
	}
	pp.SettleFunding(market)
	if err := pp.QuotePositionNative.CheckRange(); err != nil {
		return fmt.Errorf("%w: quote position: %v", state.ErrArithmeticOverflow, err)
	}
	acctCopy.Version++
	*acct = acctCopy

	if e.metrics != nil {
		e.metrics.FundingSettlements.Inc()
	}
	return nil
}
