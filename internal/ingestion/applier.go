package ingestion

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"MarginCore/internal/core"
	"MarginCore/internal/event"
	"MarginCore/internal/fp"
	"MarginCore/internal/ledger"
	"MarginCore/internal/observability"
	"MarginCore/internal/state"
)

// dedupWindow bounds the in-memory idempotency set. Duplicates older than the
// window are caught by the unique constraint in the journal table.
const dedupWindow = 65536

// Applier routes typed events into the settlement engine against the shared
// registry. Apply is not safe for concurrent use; the event loop is the single
// caller.
type Applier struct {
	registry *ledger.Registry
	log      zerolog.Logger
	metrics  *observability.Metrics

	sequence int64

	seen     map[string]struct{}
	seenRing []string
	seenPos  int
}

// NewApplier creates an applier starting at the given global sequence.
func NewApplier(registry *ledger.Registry, startSequence int64, log zerolog.Logger, metrics *observability.Metrics) *Applier {
	return &Applier{
		registry: registry,
		log:      log,
		metrics:  metrics,
		sequence: startSequence,
		seen:     make(map[string]struct{}, dedupWindow),
		seenRing: make([]string, dedupWindow),
	}
}

// Sequence returns the next global sequence to be assigned.
func (a *Applier) Sequence() int64 { return a.sequence }

// Apply settles one event. A duplicate idempotency key returns (nil, nil); a
// rejected event returns the engine's error with no state change.
func (a *Applier) Apply(evt event.Event) (*ledger.Journal, error) {
	key := evt.IdempotencyKey()
	if _, dup := a.seen[key]; dup {
		a.log.Debug().Str("key", key).Msg("duplicate event dropped")
		return nil, nil
	}

	start := time.Now()
	journal, err := a.apply(evt)
	typeName := evt.EventType().String()
	if a.metrics != nil {
		a.metrics.IngestApplyDuration.WithLabelValues(typeName).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if a.metrics != nil {
			a.metrics.IngestEventsRejected.WithLabelValues(typeName, "engine").Inc()
		}
		return nil, err
	}
	if a.metrics != nil {
		a.metrics.IngestEventsTotal.WithLabelValues(typeName).Inc()
	}

	a.remember(key)
	a.sequence++
	return journal, nil
}

func (a *Applier) remember(key string) {
	if old := a.seenRing[a.seenPos]; old != "" {
		delete(a.seen, old)
	}
	a.seenRing[a.seenPos] = key
	a.seen[key] = struct{}{}
	a.seenPos = (a.seenPos + 1) % dedupWindow
}

// engine builds a settlement engine over the registry's current working set.
func (a *Applier) engine() *core.Engine {
	hc := &core.HealthContext{
		Banks:   a.registry.PrimaryBanks(),
		Markets: a.registry.Markets(),
		Oracle:  a.registry.Oracle(),
	}
	return core.NewEngine(hc, a.log, a.metrics)
}

func (a *Applier) apply(evt event.Event) (*ledger.Journal, error) {
	switch e := evt.(type) {
	case *event.Deposit:
		return a.applyDeposit(e)
	case *event.Withdrawal:
		return a.applyWithdrawal(e)
	case *event.TradeMatched:
		return a.applyTradeMatched(e)
	case *event.FillExecuted:
		return a.applyFillExecuted(e)
	case *event.FundingUpdate:
		return a.applyFundingUpdate(e)
	case *event.PriceUpdate:
		return a.applyPriceUpdate(e)
	case *event.RiskParamUpdate:
		return a.applyRiskParamUpdate(e)
	case *event.LiquidationRequested:
		return a.applyLiquidation(e)
	case *event.BankruptcyRequested:
		return a.applyBankruptcy(e)
	default:
		return nil, fmt.Errorf("%w: unhandled event type %T", state.ErrInvalidState, evt)
	}
}

func (a *Applier) applyDeposit(e *event.Deposit) (*ledger.Journal, error) {
	acct, err := a.registry.Account(e.AccountID)
	if err != nil {
		return nil, err
	}
	bank, err := a.registry.Bank(state.AssetIndex(e.Asset))
	if err != nil {
		return nil, err
	}
	amount := fp.FromMicros(e.AmountMicros)
	if err := a.engine().Deposit(acct, bank, amount); err != nil {
		return nil, err
	}
	j := ledger.NewJournal(ledger.JournalTypeDeposit, e.IdempotencyKey(), a.sequence, e.AccountID, e.Timestamp.UnixMicro())
	j.Asset = bank.Asset
	j.Amount = amount
	return &j, nil
}

func (a *Applier) applyWithdrawal(e *event.Withdrawal) (*ledger.Journal, error) {
	acct, err := a.registry.Account(e.AccountID)
	if err != nil {
		return nil, err
	}
	bank, err := a.registry.Bank(state.AssetIndex(e.Asset))
	if err != nil {
		return nil, err
	}
	amount := fp.FromMicros(e.AmountMicros)
	if err := a.engine().Withdraw(acct, bank, amount, e.AllowBorrow); err != nil {
		return nil, err
	}
	j := ledger.NewJournal(ledger.JournalTypeWithdrawal, e.IdempotencyKey(), a.sequence, e.AccountID, e.Timestamp.UnixMicro())
	j.Asset = bank.Asset
	j.Amount = amount.Neg()
	return &j, nil
}

func parseSide(s string) (state.Side, error) {
	switch s {
	case "bid":
		return state.SideBid, nil
	case "ask":
		return state.SideAsk, nil
	}
	return 0, fmt.Errorf("%w: unknown side %q", state.ErrInvalidState, s)
}

func (a *Applier) applyTradeMatched(e *event.TradeMatched) (*ledger.Journal, error) {
	acct, err := a.registry.Account(e.AccountID)
	if err != nil {
		return nil, err
	}
	market, err := a.registry.Market(state.PerpMarketIndex(e.Market))
	if err != nil {
		return nil, err
	}
	side, err := parseSide(e.Side)
	if err != nil {
		return nil, err
	}
	if err := a.engine().ProcessMatchedTrade(acct, market, side, e.BaseLots, e.QuoteLots); err != nil {
		return nil, err
	}
	j := ledger.NewJournal(ledger.JournalTypeTradeMatched, e.IdempotencyKey(), a.sequence, e.AccountID, e.Timestamp.UnixMicro())
	j.Market = market.Market
	j.Amount = fp.FromInt64(e.BaseLots)
	return &j, nil
}

func (a *Applier) applyFillExecuted(e *event.FillExecuted) (*ledger.Journal, error) {
	acct, err := a.registry.Account(e.AccountID)
	if err != nil {
		return nil, err
	}
	market, err := a.registry.Market(state.PerpMarketIndex(e.Market))
	if err != nil {
		return nil, err
	}
	side, err := parseSide(e.Side)
	if err != nil {
		return nil, err
	}
	if err := a.engine().ExecuteTakerFill(acct, market, side, e.BaseLots, e.QuoteLots); err != nil {
		return nil, err
	}
	j := ledger.NewJournal(ledger.JournalTypeFillExecuted, e.IdempotencyKey(), a.sequence, e.AccountID, e.Timestamp.UnixMicro())
	j.Market = market.Market
	j.Amount = fp.FromInt64(e.BaseLots)
	j.Secondary = market.LotToNativeQuote(e.QuoteLots)
	return &j, nil
}

func (a *Applier) applyFundingUpdate(e *event.FundingUpdate) (*ledger.Journal, error) {
	market, err := a.registry.Market(state.PerpMarketIndex(e.Market))
	if err != nil {
		return nil, err
	}
	longDelta := fp.FromMicros(e.LongDeltaMicros)
	shortDelta := fp.FromMicros(e.ShortDeltaMicros)

	// Accrual and the per-position settlements commit together. A rejected
	// settlement must leave the accumulators untouched, or the redelivered
	// event would double-apply the epoch's delta.
	if err := a.engine().AccrueAndSettleFunding(a.registry.Accounts(), market, longDelta, shortDelta); err != nil {
		return nil, err
	}

	j := ledger.NewJournal(ledger.JournalTypeFundingSettle, e.IdempotencyKey(), a.sequence, uuid.Nil, e.Timestamp.UnixMicro())
	j.Market = market.Market
	j.Amount = longDelta
	j.Secondary = shortDelta
	return &j, nil
}

func (a *Applier) applyPriceUpdate(e *event.PriceUpdate) (*ledger.Journal, error) {
	if e.PriceMicros <= 0 {
		return nil, fmt.Errorf("%w: non-positive price for %s", state.ErrInvalidState, e.OracleID)
	}
	a.registry.Oracle().SetPrice(e.OracleID, fp.FromMicros(e.PriceMicros), fp.Zero)
	return nil, nil
}

func (a *Applier) applyRiskParamUpdate(e *event.RiskParamUpdate) (*ledger.Journal, error) {
	group, err := a.registry.BankGroup(state.AssetIndex(e.Asset))
	if err != nil {
		return nil, err
	}
	for _, b := range group.Banks {
		b.MaintAssetWeight = fp.FromMicros(e.MaintAssetWeightMicros)
		b.InitAssetWeight = fp.FromMicros(e.InitAssetWeightMicros)
		b.MaintLiabWeight = fp.FromMicros(e.MaintLiabWeightMicros)
		b.InitLiabWeight = fp.FromMicros(e.InitLiabWeightMicros)
		b.LiquidationFee = fp.FromMicros(e.LiquidationFeeMicros)
	}
	j := ledger.NewJournal(ledger.JournalTypeRiskParamChange, e.IdempotencyKey(), a.sequence, uuid.Nil, e.Timestamp.UnixMicro())
	j.Asset = group.Asset
	return &j, nil
}

func (a *Applier) applyLiquidation(e *event.LiquidationRequested) (*ledger.Journal, error) {
	liqee, err := a.registry.Account(e.LiqeeID)
	if err != nil {
		return nil, err
	}
	liqor, err := a.registry.Account(e.LiqorID)
	if err != nil {
		return nil, err
	}
	assetBank, err := a.registry.Bank(state.AssetIndex(e.AssetAsset))
	if err != nil {
		return nil, err
	}
	liabBank, err := a.registry.Bank(state.AssetIndex(e.LiabAsset))
	if err != nil {
		return nil, err
	}
	res, err := a.engine().LiquidateTokenWithToken(liqee, liqor, assetBank, liabBank, fp.FromMicros(e.MaxLiabTransferMicros))
	if err != nil {
		return nil, err
	}
	j := ledger.NewJournal(ledger.JournalTypeLiquidationTransfer, e.IdempotencyKey(), a.sequence, e.LiqeeID, e.Timestamp.UnixMicro())
	j.CounterpartyID = e.LiqorID
	j.Asset = liabBank.Asset
	j.Amount = res.LiabTransfer
	j.Secondary = res.AssetTransfer
	return &j, nil
}

func (a *Applier) applyBankruptcy(e *event.BankruptcyRequested) (*ledger.Journal, error) {
	liqee, err := a.registry.Account(e.LiqeeID)
	if err != nil {
		return nil, err
	}
	liqor, err := a.registry.Account(e.LiqorID)
	if err != nil {
		return nil, err
	}
	group, err := a.registry.BankGroup(state.AssetIndex(e.LiabAsset))
	if err != nil {
		return nil, err
	}
	insurance := a.registry.Insurance()
	reserveBank, err := a.registry.Bank(insurance.Asset)
	if err != nil {
		return nil, err
	}
	res, err := a.engine().LiquidateTokenBankruptcy(liqee, liqor, group, insurance, reserveBank, fp.FromMicros(e.MaxLiabTransferMicros))
	if err != nil {
		return nil, err
	}
	j := ledger.NewJournal(ledger.JournalTypeBankruptcySettle, e.IdempotencyKey(), a.sequence, e.LiqeeID, e.Timestamp.UnixMicro())
	j.CounterpartyID = e.LiqorID
	j.Asset = group.Asset
	j.Amount = res.LiabTransfer
	j.Secondary = res.InsuranceDrawn
	return &j, nil
}
