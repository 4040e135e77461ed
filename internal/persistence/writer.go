package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"MarginCore/internal/ledger"
)

// JournalWriter writes settlement journals to Postgres using multi-row
// INSERT. Writes are idempotent: re-inserting a journal or an event ref that
// already landed is a no-op, so replays after a crash are safe.
type JournalWriter struct {
	db *sql.DB
}

func NewJournalWriter(db *sql.DB) *JournalWriter {
	return &JournalWriter{db: db}
}

// DB exposes the underlying handle for transaction management.
func (w *JournalWriter) DB() *sql.DB { return w.db }

// WriteJournalBatch inserts a batch of journals inside the given transaction.
// Returns the number of rows actually inserted; the difference from
// len(journals) is conflicts swallowed by ON CONFLICT DO NOTHING.
func (w *JournalWriter) WriteJournalBatch(ctx context.Context, tx *sql.Tx, journals []ledger.Journal) (int64, error) {
	if len(journals) == 0 {
		return 0, nil
	}

	query := `INSERT INTO margin.journal
		(journal_id, event_ref, sequence, journal_type, account_id, counterparty_id, asset, market, amount, secondary_amount, ts_us)
		VALUES `

	values := make([]string, 0, len(journals))
	args := make([]interface{}, 0, len(journals)*11)

	for i, j := range journals {
		base := i * 11
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10, base+11,
		))

		var counterparty interface{}
		if j.CounterpartyID != uuid.Nil {
			counterparty = j.CounterpartyID.String()
		}
		var account interface{}
		if j.AccountID != uuid.Nil {
			account = j.AccountID.String()
		}

		// Fixed-point amounts go into NUMERIC columns as decimal strings;
		// int64 would truncate the fractional interest component.
		args = append(args,
			j.JournalID.String(), j.EventRef, j.Sequence, j.JournalType.String(),
			account, counterparty,
			int16(j.Asset), int16(j.Market),
			j.Amount.DecimalString(), j.Secondary.DecimalString(), j.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT DO NOTHING"

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("write journal batch: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return inserted, nil
}

// LatestSequence returns the highest persisted journal sequence, or 0 when
// the table is empty. Used at startup to resume the global sequence.
func (w *JournalWriter) LatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := w.db.QueryRowContext(ctx,
		`SELECT MAX(sequence) FROM margin.journal`,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("latest sequence: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}
