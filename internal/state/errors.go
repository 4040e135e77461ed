package state

import "errors"

// Error taxonomy for settlement transactions. Every mutating operation checks
// preconditions before any field write; on error no partial state is visible.
var (
	// ErrInvalidState: operating on an inactive slot, an exhausted position
	// table, or a record whose discriminator does not match. Fatal for the
	// transaction.
	ErrInvalidState = errors.New("invalid state")

	// ErrInsufficientFunds: withdrawal exceeding balance with borrowing
	// disallowed. Recoverable; surfaced to the caller with no mutation applied.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrArithmeticOverflow: fixed-point or lot arithmetic overflow. Fatal; a
	// wrapped ledger value is a correctness violation.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	// ErrOracleUnavailable: stale or unconfident price feed. Recoverable; the
	// caller may retry once the feed updates.
	ErrOracleUnavailable = errors.New("oracle unavailable")
)
