package db

import "errors"

// Sentinel errors returned by the store layer. Callers branch on these to
// keep provider and persistence failures inside the pipeline.
var (
	// ErrNotFound means the referenced row does not exist.
	ErrNotFound = errors.New("row not found")

	// ErrDuplicate means an insert collided with a uniqueness constraint.
	// Duplicate news ingest and double-consumed signals map here.
	ErrDuplicate = errors.New("duplicate row")

	// ErrLedgerConsistency means a mutation would violate the cash-reserve
	// or ledger-closure invariant and was refused.
	ErrLedgerConsistency = errors.New("ledger consistency violation")
)
