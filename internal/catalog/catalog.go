// Package catalog owns the canonical set of subscription plans and the
// staged synchronization protocol that mirrors plan edits to the billing
// provider.
//
// A plan edit is not transactional across the two systems of record, so the
// protocol bounds the inconsistency window instead: provider first, field
// group by field group in a fixed order, local commit only after every
// touched group succeeded. A failure mid-sequence marks the plan
// pending-sync with the still-unsynced groups named, leaving local field
// values untouched for a later reconciliation pass to finish.
package catalog

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"lovebirdz/internal/types"
)

// ProductUpdater is the slice of the billing provider adapter the catalog
// needs: one idempotent call per field group, each keyed by the plan's
// immutable external product ID.
type ProductUpdater interface {
	UpdateProduct(ctx context.Context, productID string, name *string, features map[string]any) error
	UpdateProductPrice(ctx context.Context, productID string, amountMinorUnits int64) error
	SetProductActive(ctx context.Context, productID string, active bool) error
}

// PlanStore is the persistence surface the catalog requires.
type PlanStore interface {
	GetByID(ctx context.Context, planID string) (*types.Plan, error)
	GetByName(ctx context.Context, name string) (*types.Plan, error)
	ApplyChangeset(ctx context.Context, planID string, cs types.PlanChangeset, priceMinorUnits *int64, expectedVersion int64) (*types.Plan, error)
	MarkPendingSync(ctx context.Context, planID string, groups []types.FieldGroup) error
}

// Service implements the plan catalog operations.
type Service struct {
	store   PlanStore
	billing ProductUpdater
	logger  *slog.Logger

	// Per-plan serialization: concurrent SyncPlan calls on the same plan
	// must not interleave field groups. Different plans are independent.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a catalog Service over the given store and billing
// provider adapter.
func NewService(store PlanStore, billing ProductUpdater, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		billing: billing,
		logger:  logger,
		locks:   make(map[string]*sync.Mutex),
	}
}

// GetPlan returns the plan with the given ID.
func (s *Service) GetPlan(ctx context.Context, planID string) (*types.Plan, error) {
	return s.store.GetByID(ctx, planID)
}

// BaselinePlan resolves the plan every new account starts on.
func (s *Service) BaselinePlan(ctx context.Context) (*types.Plan, error) {
	return s.store.GetByName(ctx, types.BaselinePlanName)
}

// planLock returns the mutex serializing sync operations for one plan ID.
func (s *Service) planLock(planID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[planID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[planID] = l
	}
	return l
}

// SyncPlan applies a partial changeset to a plan: provider first, then the
// local record in a single conditional write.
//
// Only fields present in the changeset are synchronized; absent fields are
// left untouched on both sides. The provider calls run in the fixed order
// (name, features) -> price -> availability, each independently idempotent,
// so a caller retrying the whole changeset after a failure is safe.
//
// A plan marked pending-sync only accepts changesets covering every diverged
// group; narrower changesets are refused so the divergence record survives
// until reconciled.
//
// Cancellation is cooperative at field-group boundaries only: an issued
// provider call always runs to completion and provider-side effects are
// never rolled back.
func (s *Service) SyncPlan(ctx context.Context, planID string, cs types.PlanChangeset) (*types.Plan, error) {
	if err := validateChangeset(cs); err != nil {
		return nil, err
	}

	lock := s.planLock(planID)
	lock.Lock()
	defer lock.Unlock()

	plan, err := s.store.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}

	if cs.IsEmpty() {
		return plan, nil
	}

	// A plan already marked pending-sync carries diverged groups from an
	// earlier failed sync. Committing a changeset clears the mark, so the
	// changeset must push every diverged group too; otherwise the
	// divergence record would be erased without being reconciled.
	if plan.PendingSync {
		if missing := uncoveredGroups(plan.PendingGroups, cs); len(missing) > 0 {
			names := make([]string, len(missing))
			for i, g := range missing {
				names[i] = string(g)
			}
			return nil, types.NewAppError(
				types.ErrCodeConsistencyPendingSync,
				"plan has unreconciled field groups; retry with a changeset covering them",
				nil,
			).WithDetails(map[string]any{
				"plan_id":        plan.ID,
				"pending_groups": names,
			})
		}
	}

	groups := cs.Groups()
	for i, group := range groups {
		// Cooperative cancellation boundary: never start a new provider
		// call for a dead context, never abandon one mid-flight.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, s.abortSync(ctx, plan, groups[i:], types.NewAppError(
				types.ErrCodeUpstreamBilling,
				"sync cancelled before field group "+string(group),
				ctxErr,
			))
		}

		if err := s.pushGroup(ctx, plan, group, cs); err != nil {
			return nil, s.abortSync(ctx, plan, groups[i:], err)
		}

		s.logger.InfoContext(ctx, "plan field group synced",
			"plan_id", plan.ID,
			"stripe_product_id", plan.StripeProductID,
			"group", string(group),
		)
	}

	var minorUnits *int64
	if cs.Price != nil {
		v := toMinorUnits(*cs.Price)
		minorUnits = &v
	}

	updated, err := s.store.ApplyChangeset(ctx, planID, cs, minorUnits, plan.Version)
	if err != nil {
		// The provider is already up to date; only the local commit is
		// missing. Mark the divergence rather than leaving it silent.
		return nil, s.abortSync(ctx, plan, groups, err)
	}

	return updated, nil
}

// pushGroup issues the provider call for one field group.
func (s *Service) pushGroup(ctx context.Context, plan *types.Plan, group types.FieldGroup, cs types.PlanChangeset) error {
	switch group {
	case types.GroupProduct:
		return s.billing.UpdateProduct(ctx, plan.StripeProductID, cs.Name, cs.Features)
	case types.GroupPrice:
		return s.billing.UpdateProductPrice(ctx, plan.StripeProductID, toMinorUnits(*cs.Price))
	case types.GroupAvailability:
		return s.billing.SetProductActive(ctx, plan.StripeProductID, *cs.Available)
	default:
		return types.NewAppError(types.ErrCodeInternalUnexpected, "unknown field group "+string(group), nil)
	}
}

// abortSync marks the plan pending-sync with the still-unsynced groups and
// decorates the causing error with enough detail to drive reconciliation.
// Local field values are never touched here.
func (s *Service) abortSync(ctx context.Context, plan *types.Plan, unsynced []types.FieldGroup, cause error) error {
	groupNames := make([]string, len(unsynced))
	for i, g := range unsynced {
		groupNames[i] = string(g)
	}

	s.logger.ErrorContext(ctx, "plan sync aborted",
		"plan_id", plan.ID,
		"stripe_product_id", plan.StripeProductID,
		"unsynced_groups", groupNames,
		"error", cause,
	)

	if len(unsynced) > 0 {
		if markErr := s.store.MarkPendingSync(ctx, plan.ID, unsynced); markErr != nil {
			// The divergence is now untracked. Log loudly; the original
			// cause still matters more to the caller.
			s.logger.ErrorContext(ctx, "failed to mark plan pending sync",
				"plan_id", plan.ID,
				"error", markErr,
			)
		}
	}

	if appErr, ok := cause.(*types.AppError); ok {
		details := map[string]any{"plan_id": plan.ID}
		if len(unsynced) > 0 {
			details["failed_group"] = string(unsynced[0])
			details["pending_groups"] = groupNames
		}
		return appErr.WithDetails(details)
	}
	return cause
}

// uncoveredGroups returns the pending field groups the changeset carries no
// data for.
func uncoveredGroups(pending []types.FieldGroup, cs types.PlanChangeset) []types.FieldGroup {
	var missing []types.FieldGroup
	for _, g := range pending {
		if !cs.Covers(g) {
			missing = append(missing, g)
		}
	}
	return missing
}

// validateChangeset enforces the field-level rules before any side effects:
// a present name must be non-empty, a present price must be non-negative.
func validateChangeset(cs types.PlanChangeset) error {
	if cs.Name != nil && *cs.Name == "" {
		return types.NewAppError(
			types.ErrCodeValidationEmptyName,
			"plan name must not be empty",
			nil,
		)
	}
	if cs.Price != nil && *cs.Price < 0 {
		return types.NewAppError(
			types.ErrCodeValidationNegativePrice,
			"plan price must not be negative",
			nil,
		)
	}
	return nil
}

// toMinorUnits converts a decimal currency amount to integer minor units,
// rounding half away from zero.
func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
