package db

import (
	"context"

	"lovebirdz/internal/types"
)

// ActivityRepo provides data access for the account_activity table.
//
// The table's composite primary key is (account_id, year, month). Increment
// is the only write path and executes a single atomic upsert statement, so
// concurrent increments for the same key can never lose updates and the
// creation race is resolved inside PostgreSQL, not in application code.
type ActivityRepo struct {
	db DBTX
}

// NewActivityRepo creates a new ActivityRepo backed by the given database
// connection (pool or transaction).
func NewActivityRepo(db DBTX) *ActivityRepo {
	return &ActivityRepo{db: db}
}

// Increment atomically adds one to the counter for kind in the record keyed
// by (accountID, year, month), creating the record with that counter at 1 if
// it does not exist yet. The insert-or-add decision happens inside a single
// INSERT ... ON CONFLICT statement; there is no read-then-write window.
//
// The caller is responsible for kind validation; this method maps the three
// recognized kinds onto their delta columns and treats anything else as an
// internal error since it indicates a missed validation upstream.
func (r *ActivityRepo) Increment(ctx context.Context, accountID string, kind types.EventKind, year, month int) error {
	var likes, matches, swipes int64
	switch kind {
	case types.EventLike:
		likes = 1
	case types.EventMatch:
		matches = 1
	case types.EventSwipe:
		swipes = 1
	default:
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"unvalidated event kind reached the activity repository",
			nil,
		)
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO account_activity (account_id, year, month, likes, matches, swipes)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (account_id, year, month)
		 DO UPDATE SET likes   = account_activity.likes   + EXCLUDED.likes,
		               matches = account_activity.matches + EXCLUDED.matches,
		               swipes  = account_activity.swipes  + EXCLUDED.swipes`,
		accountID, year, month, likes, matches, swipes,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to increment activity counter", err)
	}
	return nil
}

// ListByYear returns every activity record for the account in the given
// year, ordered by month. Zero to twelve rows.
func (r *ActivityRepo) ListByYear(ctx context.Context, accountID string, year int) ([]types.ActivityRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT account_id, year, month, likes, matches, swipes
		 FROM account_activity
		 WHERE account_id = $1 AND year = $2
		 ORDER BY month ASC`,
		accountID, year,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query activity records", err)
	}
	defer rows.Close()

	var records []types.ActivityRecord
	for rows.Next() {
		var rec types.ActivityRecord
		if err := rows.Scan(&rec.AccountID, &rec.Year, &rec.Month, &rec.Likes, &rec.Matches, &rec.Swipes); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan activity row", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating activity rows", err)
	}
	return records, nil
}
