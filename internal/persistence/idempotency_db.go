package persistence

import (
	"context"
	"database/sql"
	"time"
)

// PostgresIdempotencyChecker answers duplicate checks against the durable
// journal. It backstops the applier's in-memory dedup window for keys older
// than the window.
type PostgresIdempotencyChecker struct {
	db *sql.DB
}

func NewPostgresIdempotencyChecker(db *sql.DB) *PostgresIdempotencyChecker {
	return &PostgresIdempotencyChecker{db: db}
}

// IsDuplicate reports whether a journal for the event ref already landed.
// Bounded to 500ms so a slow database degrades to trusting the in-memory
// window plus the table's unique constraint.
func (pic *PostgresIdempotencyChecker) IsDuplicate(eventRef string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var exists int
	err := pic.db.QueryRowContext(ctx,
		`SELECT 1 FROM margin.journal WHERE event_ref = $1 LIMIT 1`,
		eventRef,
	).Scan(&exists)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
