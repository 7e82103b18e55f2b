package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"lovebirdz/internal/types"
)

// PlanRepo provides data access for the plans table. The plans table is the
// local system of record for the subscription catalog; provider-side state is
// mirrored from it by the catalog sync service.
//
// Key invariants:
//   - stripe_product_id and stripe_price_id are never updated after insert.
//   - ApplyChangeset commits all changed fields in a single conditional
//     UPDATE guarded by the optimistic version column.
//   - MarkPendingSync records which field groups diverged so a later
//     reconciliation pass can retry only those.
type PlanRepo struct {
	db DBTX
}

// NewPlanRepo creates a new PlanRepo backed by the given database connection
// (pool or transaction).
func NewPlanRepo(db DBTX) *PlanRepo {
	return &PlanRepo{db: db}
}

// planColumns is the standard column set for plan queries. Used consistently
// across all query methods to avoid column drift.
const planColumns = `p.id, p.name, p.price_minor_units, p.features, p.available,
	p.stripe_product_id, p.stripe_price_id, p.pending_sync, p.pending_groups,
	p.version, p.created_at, p.updated_at`

// scanPlan scans a single plan row. The columns must match planColumns order.
func scanPlan(row pgx.Row) (*types.Plan, error) {
	var p types.Plan
	var pendingGroups []string
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.PriceMinorUnits,
		&p.Features,
		&p.Available,
		&p.StripeProductID,
		&p.StripePriceID,
		&p.PendingSync,
		&pendingGroups,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	for _, g := range pendingGroups {
		p.PendingGroups = append(p.PendingGroups, types.FieldGroup(g))
	}
	return &p, nil
}

// GetByID retrieves a plan by its identifier.
func (r *PlanRepo) GetByID(ctx context.Context, planID string) (*types.Plan, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+planColumns+` FROM plans p WHERE p.id = $1`,
		planID,
	)
	plan, err := scanPlan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundPlan, "plan not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch plan", err)
	}
	return plan, nil
}

// GetByName retrieves a plan by its unique name. Used by the provisioner to
// resolve the baseline plan.
func (r *PlanRepo) GetByName(ctx context.Context, name string) (*types.Plan, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+planColumns+` FROM plans p WHERE p.name = $1`,
		name,
	)
	plan, err := scanPlan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundPlan, "plan not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch plan by name", err)
	}
	return plan, nil
}

// ApplyChangeset commits a synced changeset to the local record in a single
// conditional write. Absent changeset fields are left untouched via COALESCE;
// priceMinorUnits carries the already-converted amount for the price group.
//
// The write is guarded by the optimistic version check: if the stored version
// no longer matches expectedVersion, a concurrent writer got there first and
// the caller receives conflict_plan_version. A successful commit clears the
// pending-sync mark and bumps the version; the catalog only commits
// changesets that cover every pending group, so the clear never erases an
// unreconciled divergence.
func (r *PlanRepo) ApplyChangeset(
	ctx context.Context,
	planID string,
	cs types.PlanChangeset,
	priceMinorUnits *int64,
	expectedVersion int64,
) (*types.Plan, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE plans p
		 SET name = COALESCE($2, p.name),
		     price_minor_units = COALESCE($3, p.price_minor_units),
		     available = COALESCE($4, p.available),
		     features = COALESCE($5, p.features),
		     pending_sync = FALSE,
		     pending_groups = NULL,
		     version = p.version + 1,
		     updated_at = NOW()
		 WHERE p.id = $1
		   AND p.version = $6
		 RETURNING `+planColumns,
		planID,
		cs.Name,
		priceMinorUnits,
		cs.Available,
		cs.Features,
		expectedVersion,
	)
	plan, err := scanPlan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the plan vanished or the version moved underneath us.
			// Distinguish so callers can report the right condition.
			if _, getErr := r.GetByID(ctx, planID); getErr != nil {
				return nil, getErr
			}
			return nil, types.NewAppError(
				types.ErrCodeConflictVersion,
				"plan was modified concurrently; retry with fresh state",
				nil,
			)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to commit plan changeset", err)
	}
	return plan, nil
}

// MarkPendingSync flags a plan whose provider-side state diverged mid-sync,
// recording exactly which field groups still need reconciliation. The flag is
// additive: local field values are never touched here.
func (r *PlanRepo) MarkPendingSync(ctx context.Context, planID string, groups []types.FieldGroup) error {
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = string(g)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE plans
		 SET pending_sync = TRUE,
		     pending_groups = $2,
		     updated_at = NOW()
		 WHERE id = $1`,
		planID,
		names,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark plan pending sync", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundPlan, "plan not found", nil)
	}
	return nil
}
