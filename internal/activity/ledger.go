// Package activity implements the per-account usage ledger and the
// reporting view folded from it.
//
// The ledger is an append/increment store of monthly counters. Correctness
// under concurrency comes from pushing the create-or-increment decision
// into a single atomic store operation; this package never reads a record
// before writing it.
package activity

import (
	"context"
	"log/slog"
	"time"

	"lovebirdz/internal/types"
)

// LedgerStore is the persistence surface the ledger requires. Increment
// must be a single indivisible create-or-add operation against the
// composite key.
type LedgerStore interface {
	Increment(ctx context.Context, accountID string, kind types.EventKind, year, month int) error
	ListByYear(ctx context.Context, accountID string, year int) ([]types.ActivityRecord, error)
}

// Ledger owns all ActivityRecord writes.
type Ledger struct {
	store  LedgerStore
	logger *slog.Logger
}

// NewLedger creates a Ledger over the given store.
func NewLedger(store LedgerStore, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, logger: logger}
}

// Increment adds one to the account's counter for kind in the month bucket
// derived from the event timestamp's UTC calendar. Concurrent increments on
// the same (account, year, month) key commute; none are lost.
//
// Unrecognized kinds are rejected with a validation error and no write,
// never silently ignored.
func (l *Ledger) Increment(ctx context.Context, accountID string, kind types.EventKind, at time.Time) error {
	if !kind.Valid() {
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationUnknownEventKind,
			"unrecognized activity event kind",
			nil,
			map[string]any{"kind": string(kind), "account_id": accountID},
		)
	}

	utc := at.UTC()
	year, month := utc.Year(), int(utc.Month())

	if err := l.store.Increment(ctx, accountID, kind, year, month); err != nil {
		l.logger.ErrorContext(ctx, "activity increment failed",
			"account_id", accountID,
			"kind", string(kind),
			"year", year,
			"month", month,
			"error", err,
		)
		return err
	}
	return nil
}
