package activity

import (
	"context"
	"log/slog"

	"lovebirdz/internal/types"
)

// monthsPerYear fixes the series length for every chart the aggregator
// produces, regardless of how many records exist.
const monthsPerYear = 12

// Aggregator is the read-only reporting view over the ledger. It never
// writes.
type Aggregator struct {
	store  LedgerStore
	logger *slog.Logger
}

// NewAggregator creates an Aggregator over the given store.
func NewAggregator(store LedgerStore, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{store: store, logger: logger}
}

// Build folds the account's ledger rows for one year into three fixed
// 12-slot monthly series (index 0 = January). Months without a record stay
// zero. Zero records is a valid, all-zero result, not an error.
func (a *Aggregator) Build(ctx context.Context, accountID string, year int) (*types.ActivityChart, error) {
	if year <= 0 {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidYear, "year must be positive", nil)
	}

	records, err := a.store.ListByYear(ctx, accountID, year)
	if err != nil {
		return nil, err
	}

	chart := &types.ActivityChart{
		Likes:   make([]int64, monthsPerYear),
		Matches: make([]int64, monthsPerYear),
		Swipes:  make([]int64, monthsPerYear),
	}

	for _, rec := range records {
		if rec.Month < 1 || rec.Month > monthsPerYear {
			// A row outside the calendar should be impossible; skip it
			// rather than corrupt the chart.
			a.logger.WarnContext(ctx, "activity record with out-of-range month skipped",
				"account_id", rec.AccountID,
				"year", rec.Year,
				"month", rec.Month,
			)
			continue
		}
		idx := rec.Month - 1
		chart.Likes[idx] = rec.Likes
		chart.Matches[idx] = rec.Matches
		chart.Swipes[idx] = rec.Swipes
	}

	return chart, nil
}
