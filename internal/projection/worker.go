package projection

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/google/uuid"

	"MarginCore/internal/ledger"
)

// ProjectionWorker maintains read-model tables from settled journals. The
// journal channel is fed after persistence commits, so projections only ever
// see durable entries. Projections are eventually consistent and can be
// rebuilt from margin.journal at any time.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan ledger.Journal
	funding   *FundingHistory
	lastSeq   int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan ledger.Journal, funding *FundingHistory) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		funding:   funding,
	}
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case j, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processJournal(ctx, j); err != nil {
				// Non-fatal: the read model lags but margin.journal has the
				// truth, and RebuildProjections recovers.
				log.Printf("WARN: projection update failed at seq=%d: %v", j.Sequence, err)
			}
			pw.lastSeq = j.Sequence
		}
	}
}

func (pw *ProjectionWorker) processJournal(ctx context.Context, j ledger.Journal) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	switch j.JournalType {
	case ledger.JournalTypeDeposit, ledger.JournalTypeWithdrawal:
		if err := pw.applyBalanceDelta(ctx, tx, j.AccountID, j); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}

	case ledger.JournalTypeLiquidationTransfer, ledger.JournalTypeBankruptcySettle:
		if err := pw.recordLiquidation(ctx, tx, j); err != nil {
			return fmt.Errorf("liquidation projection: %w", err)
		}

	case ledger.JournalTypeFundingSettle:
		if err := pw.recordFunding(ctx, tx, j); err != nil {
			return fmt.Errorf("funding projection: %w", err)
		}
		if pw.funding != nil {
			pw.funding.AddFromJournal(j)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO margin.projection_watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, j.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

func (pw *ProjectionWorker) applyBalanceDelta(ctx context.Context, tx *sql.Tx, account uuid.UUID, j ledger.Journal) error {
	// Withdrawal journals already carry a negative amount.
	_, err := tx.ExecContext(ctx, `
		INSERT INTO margin.balance_projection (account_id, asset, balance, last_sequence)
		VALUES ($1, $2, $3::numeric, $4)
		ON CONFLICT (account_id, asset)
		DO UPDATE SET balance = margin.balance_projection.balance + $3::numeric, last_sequence = $4
	`, account.String(), int16(j.Asset), j.Amount.DecimalString(), j.Sequence)
	return err
}

func (pw *ProjectionWorker) recordLiquidation(ctx context.Context, tx *sql.Tx, j ledger.Journal) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO margin.liquidation_history
			(journal_id, liqee_id, liqor_id, journal_type, asset, liab_transfer, secondary_amount, sequence, ts_us)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9)
		ON CONFLICT (journal_id) DO NOTHING
	`, j.JournalID.String(), j.AccountID.String(), j.CounterpartyID.String(),
		j.JournalType.String(), int16(j.Asset),
		j.Amount.DecimalString(), j.Secondary.DecimalString(), j.Sequence, j.Timestamp)
	return err
}

func (pw *ProjectionWorker) recordFunding(ctx context.Context, tx *sql.Tx, j ledger.Journal) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO margin.funding_history
			(journal_id, market, long_delta, short_delta, sequence, ts_us)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6)
		ON CONFLICT (journal_id) DO NOTHING
	`, j.JournalID.String(), int16(j.Market),
		j.Amount.DecimalString(), j.Secondary.DecimalString(), j.Sequence, j.Timestamp)
	return err
}

// RebuildProjections truncates the read-model tables and rebuilds them from
// margin.journal.
func RebuildProjections(ctx context.Context, db *sql.DB) error {
	truncateStatements := []string{
		`TRUNCATE margin.balance_projection`,
		`TRUNCATE margin.funding_history`,
		`TRUNCATE margin.liquidation_history`,
		`DELETE FROM margin.projection_watermark WHERE worker_id = 'main'`,
	}
	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, `
		INSERT INTO margin.balance_projection (account_id, asset, balance, last_sequence)
		SELECT account_id, asset, SUM(amount), MAX(sequence)
		FROM margin.journal
		WHERE journal_type IN ('deposit', 'withdrawal') AND account_id IS NOT NULL
		GROUP BY account_id, asset
	`); err != nil {
		return fmt.Errorf("rebuild balances: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		INSERT INTO margin.funding_history (journal_id, market, long_delta, short_delta, sequence, ts_us)
		SELECT journal_id, market, amount, secondary_amount, sequence, ts_us
		FROM margin.journal
		WHERE journal_type = 'funding_settle'
	`); err != nil {
		return fmt.Errorf("rebuild funding history: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		INSERT INTO margin.liquidation_history
			(journal_id, liqee_id, liqor_id, journal_type, asset, liab_transfer, secondary_amount, sequence, ts_us)
		SELECT journal_id, account_id, counterparty_id, journal_type, asset,
		       amount, secondary_amount, sequence, ts_us
		FROM margin.journal
		WHERE journal_type IN ('liquidation_transfer', 'bankruptcy_settle')
	`); err != nil {
		return fmt.Errorf("rebuild liquidation history: %w", err)
	}

	log.Println("INFO: projection rebuild complete")
	return nil
}
