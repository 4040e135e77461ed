// Package query serves read-only views of account state. Balances, positions,
// and margin come from the in-memory working set; history comes from the
// journal table and the projection read models.
package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"MarginCore/internal/core"
	"MarginCore/internal/ledger"
)

// SequenceSource reports the next global sequence, used to stamp responses
// with as_of_sequence freshness.
type SequenceSource func() int64

type QueryService struct {
	registry *ledger.Registry
	db       *sql.DB
	seq      SequenceSource
}

func NewQueryService(registry *ledger.Registry, db *sql.DB, seq SequenceSource) *QueryService {
	return &QueryService{registry: registry, db: db, seq: seq}
}

func (qs *QueryService) asOf() int64 {
	if qs.seq == nil {
		return 0
	}
	return qs.seq()
}

// GetBalances returns every active token balance of an account.
func (qs *QueryService) GetBalances(ctx context.Context, accountID uuid.UUID) ([]BalanceResponse, error) {
	acct, err := qs.registry.Account(accountID)
	if err != nil {
		return nil, err
	}
	asOf := qs.asOf()

	var out []BalanceResponse
	for _, tp := range acct.ActiveTokenPositions() {
		bank, err := qs.registry.Bank(tp.Asset)
		if err != nil {
			return nil, err
		}
		name, _ := ledger.AssetSymbol(tp.Asset)
		out = append(out, BalanceResponse{
			AccountID:    accountID,
			Asset:        uint16(tp.Asset),
			AssetName:    name,
			Native:       tp.Native(bank).DecimalString(),
			Indexed:      tp.Indexed.DecimalString(),
			AsOfSequence: asOf,
		})
	}
	return out, nil
}

// GetPositions returns every active perp position of an account.
func (qs *QueryService) GetPositions(ctx context.Context, accountID uuid.UUID) ([]PositionResponse, error) {
	acct, err := qs.registry.Account(accountID)
	if err != nil {
		return nil, err
	}
	asOf := qs.asOf()

	var out []PositionResponse
	for _, pp := range acct.ActivePerpPositions() {
		market, err := qs.registry.Market(pp.Market)
		if err != nil {
			return nil, err
		}
		out = append(out, PositionResponse{
			AccountID:        accountID,
			Market:           uint16(pp.Market),
			MarketName:       market.Name,
			BaseLots:         pp.BasePositionLots,
			QuoteNative:      pp.QuotePositionNative.DecimalString(),
			AvgEntryPrice:    pp.AvgEntryPrice().DecimalString(),
			BreakEvenPrice:   pp.BreakEvenPrice().DecimalString(),
			UnsettledFunding: pp.UnsettledFunding(market).DecimalString(),
			AsOfSequence:     asOf,
		})
	}
	return out, nil
}

// GetMarginSnapshot computes the account's current margin view against the
// working set and oracle prices.
func (qs *QueryService) GetMarginSnapshot(ctx context.Context, accountID uuid.UUID) (*MarginInfo, error) {
	acct, err := qs.registry.Account(accountID)
	if err != nil {
		return nil, err
	}

	hc := &core.HealthContext{
		Banks:   qs.registry.PrimaryBanks(),
		Markets: qs.registry.Markets(),
		Oracle:  qs.registry.Oracle(),
	}
	maint, err := hc.Health(acct, core.HealthMaint)
	if err != nil {
		return nil, fmt.Errorf("maint health: %w", err)
	}
	init, err := hc.Health(acct, core.HealthInit)
	if err != nil {
		return nil, fmt.Errorf("init health: %w", err)
	}

	return &MarginInfo{
		AccountID:       accountID,
		MaintHealth:     maint.DecimalString(),
		InitHealth:      init.DecimalString(),
		BeingLiquidated: acct.BeingLiquidated,
		IsBankrupt:      acct.IsBankrupt,
		Liquidatable:    maint.IsNegative(),
		AsOfSequence:    qs.asOf(),
	}, nil
}

// GetJournalHistory returns persisted journal rows for an account with
// cursor-based pagination on sequence.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	accountID uuid.UUID,
	limit int,
	afterSequence *int64,
) ([]JournalHistoryEntry, error) {
	query := `
		SELECT journal_id, event_ref, sequence, journal_type,
		       COALESCE(account_id::text, ''), COALESCE(counterparty_id::text, ''),
		       asset, market, amount::text, secondary_amount::text, ts_us
		FROM margin.journal
		WHERE (account_id = $1 OR counterparty_id = $1)
	`
	args := []interface{}{accountID.String()}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.EventRef, &e.Sequence, &e.JournalType,
			&e.AccountID, &e.CounterpartyID, &e.Asset, &e.Market,
			&e.Amount, &e.Secondary, &e.TimestampUs,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetLiquidationHistory returns liquidation and bankruptcy settlements where
// the account was the liquidated party.
func (qs *QueryService) GetLiquidationHistory(
	ctx context.Context,
	liqeeID uuid.UUID,
	limit int,
) ([]LiquidationHistoryEntry, error) {
	rows, err := qs.db.QueryContext(ctx, `
		SELECT journal_id, liqee_id, liqor_id, journal_type, asset,
		       liab_transfer::text, secondary_amount::text, sequence, ts_us
		FROM margin.liquidation_history
		WHERE liqee_id = $1
		ORDER BY sequence DESC
		LIMIT $2
	`, liqeeID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LiquidationHistoryEntry
	for rows.Next() {
		var e LiquidationHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.LiqeeID, &e.LiqorID, &e.JournalType, &e.Asset,
			&e.LiabTransfer, &e.Secondary, &e.Sequence, &e.TimestampUs,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// VerifyIntegrity runs the in-memory invariant checks and scans the journal
// table for sequence gaps.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{AsOfSequence: qs.asOf()}

	validator := ledger.NewInvariantValidator(qs.registry)
	checks := []func() error{
		validator.ValidateInsuranceNonNegative,
		validator.ValidateStatusFlags,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			report.Violations = append(report.Violations, err.Error())
		}
	}
	for _, g := range qs.registry.BankGroups() {
		if err := validator.ValidateBankTotals(g.Asset); err != nil {
			report.Violations = append(report.Violations, err.Error())
		}
		if err := validator.ValidateGroupIndexes(g.Asset); err != nil {
			report.Violations = append(report.Violations, err.Error())
		}
	}
	for idx := range qs.registry.Markets() {
		if err := validator.ValidateOpenInterest(idx); err != nil {
			report.Violations = append(report.Violations, err.Error())
		}
	}

	if qs.db != nil {
		rows, err := qs.db.QueryContext(ctx, `
			SELECT j1.sequence
			FROM margin.journal j1
			LEFT JOIN margin.journal j2 ON j2.sequence = j1.sequence - 1
			WHERE j1.sequence > (SELECT MIN(sequence) FROM margin.journal)
			  AND j2.sequence IS NULL
			LIMIT 10
		`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var seq int64
			if err := rows.Scan(&seq); err != nil {
				return nil, err
			}
			report.SequenceGaps = append(report.SequenceGaps, seq)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	report.IsHealthy = len(report.Violations) == 0 && len(report.SequenceGaps) == 0
	return report, nil
}
