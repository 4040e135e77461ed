package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"MarginCore/internal/encoding"
	"MarginCore/internal/ledger"
	"MarginCore/internal/observability"
	"MarginCore/internal/state"
)

// StateStore persists snapshots of accounts, banks, and markets as
// fixed-width binary records. Snapshots let a restart skip replaying the
// full journal: load the snapshot, then replay journals above its sequence.
type StateStore struct {
	db      *sql.DB
	metrics *observability.Metrics
}

func NewStateStore(db *sql.DB, metrics *observability.Metrics) *StateStore {
	return &StateStore{db: db, metrics: metrics}
}

// SaveAccount upserts one account record. The write is compare-and-set on
// the account version: a row already holding a newer version wins and the
// stale write is reported as an error. Re-saving the same version is a
// no-error overwrite so unchanged accounts snapshot cleanly.
func (s *StateStore) SaveAccount(ctx context.Context, tx *sql.Tx, a *state.Account) error {
	record, err := encoding.EncodeAccount(a)
	if err != nil {
		return fmt.Errorf("encode account %s: %w", a.AccountID, err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO margin.account_state (account_id, version, record)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id) DO UPDATE
		SET version = EXCLUDED.version, record = EXCLUDED.record
		WHERE margin.account_state.version <= EXCLUDED.version`,
		a.AccountID.String(), a.Version, record,
	)
	if err != nil {
		return fmt.Errorf("save account %s: %w", a.AccountID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil
	}
	if n == 0 {
		if s.metrics != nil {
			s.metrics.PersistConflicts.Inc()
		}
		return fmt.Errorf("%w: account %s snapshot version %d is stale",
			state.ErrInvalidState, a.AccountID, a.Version)
	}
	return nil
}

// SaveBank upserts one bank record, keyed by asset and bank number.
func (s *StateStore) SaveBank(ctx context.Context, tx *sql.Tx, b *state.Bank) error {
	record, err := encoding.EncodeBank(b)
	if err != nil {
		return fmt.Errorf("encode bank %s: %w", b.Name, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO margin.bank_state (asset, bank_num, record)
		VALUES ($1, $2, $3)
		ON CONFLICT (asset, bank_num) DO UPDATE SET record = EXCLUDED.record`,
		int16(b.Asset), int16(b.BankNum), record,
	)
	if err != nil {
		return fmt.Errorf("save bank %s: %w", b.Name, err)
	}
	return nil
}

// SaveMarket upserts one perp market record.
func (s *StateStore) SaveMarket(ctx context.Context, tx *sql.Tx, m *state.PerpMarket) error {
	record, err := encoding.EncodePerpMarket(m)
	if err != nil {
		return fmt.Errorf("encode market %s: %w", m.Name, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO margin.market_state (market, record)
		VALUES ($1, $2)
		ON CONFLICT (market) DO UPDATE SET record = EXCLUDED.record`,
		int16(m.Market), record,
	)
	if err != nil {
		return fmt.Errorf("save market %s: %w", m.Name, err)
	}
	return nil
}

// SaveRegistry snapshots the full working set in one transaction, recording
// the journal sequence the snapshot corresponds to.
func (s *StateStore) SaveRegistry(ctx context.Context, reg *ledger.Registry, sequence int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, a := range reg.Accounts() {
		if err := s.SaveAccount(ctx, tx, a); err != nil {
			return err
		}
	}
	for _, g := range reg.BankGroups() {
		for _, b := range g.Banks {
			if err := s.SaveBank(ctx, tx, b); err != nil {
				return err
			}
		}
	}
	for _, m := range reg.Markets() {
		if err := s.SaveMarket(ctx, tx, m); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO margin.snapshot_marker (id, sequence)
		VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET sequence = EXCLUDED.sequence, taken_at = NOW()`,
		sequence,
	); err != nil {
		return fmt.Errorf("record snapshot marker: %w", err)
	}

	return tx.Commit()
}

// LoadAccounts decodes every persisted account record.
func (s *StateStore) LoadAccounts(ctx context.Context) ([]*state.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM margin.account_state`)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*state.Account
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		a, err := encoding.DecodeAccount(record)
		if err != nil {
			return nil, fmt.Errorf("decode account record: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// LoadBanks decodes every persisted bank record.
func (s *StateStore) LoadBanks(ctx context.Context) ([]*state.Bank, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM margin.bank_state ORDER BY asset, bank_num`)
	if err != nil {
		return nil, fmt.Errorf("load banks: %w", err)
	}
	defer rows.Close()

	var banks []*state.Bank
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		b, err := encoding.DecodeBank(record)
		if err != nil {
			return nil, fmt.Errorf("decode bank record: %w", err)
		}
		banks = append(banks, b)
	}
	return banks, rows.Err()
}

// LoadMarkets decodes every persisted market record.
func (s *StateStore) LoadMarkets(ctx context.Context) ([]*state.PerpMarket, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM margin.market_state`)
	if err != nil {
		return nil, fmt.Errorf("load markets: %w", err)
	}
	defer rows.Close()

	var markets []*state.PerpMarket
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		m, err := encoding.DecodePerpMarket(record)
		if err != nil {
			return nil, fmt.Errorf("decode market record: %w", err)
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// SnapshotSequence returns the journal sequence of the last full snapshot,
// or 0 when none exists.
func (s *StateStore) SnapshotSequence(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx,
		`SELECT sequence FROM margin.snapshot_marker WHERE id = 1`,
	).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("snapshot sequence: %w", err)
	}
	return seq, nil
}
