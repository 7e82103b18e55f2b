package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"lovebirdz/internal/types"
)

// AccountRepo provides data access for the accounts and preferences tables.
//
// The provisioner owns the creation path; afterward accounts are updated only
// through the narrow methods here (preference changes, plan reassignment).
// stripe_customer_id is written once at creation and never updated.
type AccountRepo struct {
	db DBTX
}

// NewAccountRepo creates a new AccountRepo backed by the given database
// connection (pool or transaction).
func NewAccountRepo(db DBTX) *AccountRepo {
	return &AccountRepo{db: db}
}

const accountColumns = `a.id, a.email, a.phone, a.name, a.gender, a.password_hash,
	a.plan_id, a.swipe_limit_snapshot, a.stripe_customer_id, a.preference_id,
	a.last_active_at, a.created_at`

// scanAccount scans a single account row in accountColumns order.
// stripe_customer_id is nullable until provisioning completes.
func scanAccount(row pgx.Row) (*types.Account, error) {
	var a types.Account
	var customerID *string
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.Phone,
		&a.Name,
		&a.Gender,
		&a.PasswordHash,
		&a.PlanID,
		&a.SwipeLimitSnapshot,
		&customerID,
		&a.PreferenceID,
		&a.LastActiveAt,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if customerID != nil {
		a.StripeCustomerID = *customerID
	}
	return &a, nil
}

// ExistsByEmailOrPhone reports whether any account already claims the given
// email or phone. This is the de-duplication gate for provisioning and must
// be re-evaluated on every retry.
func (r *AccountRepo) ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE email = $1 OR phone = $2)`,
		email, phone,
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check identity uniqueness", err)
	}
	return exists, nil
}

// GetByID retrieves an account by its identifier.
func (r *AccountRepo) GetByID(ctx context.Context, accountID string) (*types.Account, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts a WHERE a.id = $1`,
		accountID,
	)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch account", err)
	}
	return account, nil
}

// Create inserts a fully provisioned account. The caller must have already
// obtained the external customer ID; accounts never exist locally without a
// billing identity. The unique constraints on email and phone are the
// backstop for concurrent provisioning races.
func (r *AccountRepo) Create(ctx context.Context, a *types.Account) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO accounts (id, email, phone, name, gender, password_hash,
		        plan_id, swipe_limit_snapshot, stripe_customer_id, preference_id,
		        last_active_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.Email, a.Phone, a.Name, a.Gender, a.PasswordHash,
		a.PlanID, a.SwipeLimitSnapshot, a.StripeCustomerID, a.PreferenceID,
		a.LastActiveAt, a.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(
				types.ErrCodeValidationDuplicateIdentity,
				"email or phone number already exists",
				err,
			)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert account", err)
	}
	return nil
}

// CreatePreference inserts the account's auxiliary preference record.
func (r *AccountRepo) CreatePreference(ctx context.Context, p *types.Preference) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO preferences (id, account_id, gender, smoking, drinking,
		        relationship_goals, distance_km, age_min, age_max, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.AccountID, p.Gender, p.Smoking, p.Drinking,
		p.RelationshipGoals, p.DistanceKm, p.AgeMin, p.AgeMax, p.UpdatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert preference", err)
	}
	return nil
}

// UpdatePreference applies a partial preference update for the account.
// Nil changeset fields are left untouched via COALESCE; caller-supplied
// values are always honored as-is.
func (r *AccountRepo) UpdatePreference(ctx context.Context, accountID string, cs types.PreferenceChangeset) (*types.Preference, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE preferences p
		 SET gender = COALESCE($2, p.gender),
		     smoking = COALESCE($3, p.smoking),
		     drinking = COALESCE($4, p.drinking),
		     relationship_goals = COALESCE($5, p.relationship_goals),
		     distance_km = COALESCE($6, p.distance_km),
		     age_min = COALESCE($7, p.age_min),
		     age_max = COALESCE($8, p.age_max),
		     updated_at = NOW()
		 WHERE p.account_id = $1
		 RETURNING p.id, p.account_id, p.gender, p.smoking, p.drinking,
		           p.relationship_goals, p.distance_km, p.age_min, p.age_max, p.updated_at`,
		accountID,
		cs.Gender, cs.Smoking, cs.Drinking, cs.RelationshipGoals,
		cs.DistanceKm, cs.AgeMin, cs.AgeMax,
	)

	var p types.Preference
	err := row.Scan(
		&p.ID, &p.AccountID, &p.Gender, &p.Smoking, &p.Drinking,
		&p.RelationshipGoals, &p.DistanceKm, &p.AgeMin, &p.AgeMax, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAccount, "preference record not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to update preference", err)
	}
	return &p, nil
}

// ReassignPlan moves an account to a new plan and recomputes the swipe-limit
// snapshot in the same write. The snapshot must never lag the plan reference,
// so both columns change atomically.
func (r *AccountRepo) ReassignPlan(ctx context.Context, accountID, planID string, swipeLimit int) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE accounts
		 SET plan_id = $2,
		     swipe_limit_snapshot = $3
		 WHERE id = $1`,
		accountID, planID, swipeLimit,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to reassign plan", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", nil)
	}
	return nil
}

// CountByGender returns account totals grouped by gender.
func (r *AccountRepo) CountByGender(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT gender, COUNT(*) FROM accounts GROUP BY gender`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to count accounts by gender", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var gender string
		var n int64
		if err := rows.Scan(&gender, &n); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan gender count row", err)
		}
		counts[gender] = n
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating gender count rows", err)
	}
	return counts, nil
}

// CountByPlanName returns subscriber totals per plan name, excluding the
// baseline plan. Feeds the dashboard's per-tier breakdown.
func (r *AccountRepo) CountByPlanName(ctx context.Context, baseline string) (map[string]int64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT p.name, COUNT(*)
		 FROM accounts a
		 JOIN plans p ON p.id = a.plan_id
		 WHERE p.name <> $1
		 GROUP BY p.name`,
		baseline,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to count accounts by plan", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var name string
		var n int64
		if err := rows.Scan(&name, &n); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan plan count row", err)
		}
		counts[name] = n
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating plan count rows", err)
	}
	return counts, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
