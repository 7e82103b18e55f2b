package accounts

import (
	"context"
	"log/slog"
	"math"

	"lovebirdz/internal/types"
)

// SubscriptionLister is the slice of the billing provider adapter used by
// the account detail view.
type SubscriptionLister interface {
	ListSubscriptionsForCustomer(ctx context.Context, customerID string, expandPaymentMethod bool) ([]types.SubscriptionSummary, error)
}

// AccountDetail is the admin view of a single account: the local projection
// plus, for subscribed accounts, the provider-side card summary.
type AccountDetail struct {
	Account      *types.Account             `json:"account"`
	PlanName     string                     `json:"plan_name"`
	Subscription *types.SubscriptionSummary `json:"subscription,omitempty"`
}

// Service implements the admin read and maintenance paths over accounts.
type Service struct {
	store   AccountStore
	plans   PlanResolver
	billing SubscriptionLister
	logger  *slog.Logger
}

// NewService creates an account Service.
func NewService(store AccountStore, plans PlanResolver, billing SubscriptionLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		plans:   plans,
		billing: billing,
		logger:  logger,
	}
}

// GetAccountDetail returns the account together with its plan name and,
// when the account sits on a paid tier, the provider-side subscription and
// card summary. A provider failure on the card lookup degrades the view
// instead of failing it: the local data is still served.
func (s *Service) GetAccountDetail(ctx context.Context, accountID string) (*AccountDetail, error) {
	account, err := s.store.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	plan, err := s.plans.GetPlan(ctx, account.PlanID)
	if err != nil {
		return nil, err
	}

	detail := &AccountDetail{
		Account:  account,
		PlanName: plan.Name,
	}

	if plan.Name == types.BaselinePlanName || account.StripeCustomerID == "" {
		return detail, nil
	}

	subs, err := s.billing.ListSubscriptionsForCustomer(ctx, account.StripeCustomerID, true)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to fetch subscription details; serving local data only",
			"account_id", accountID,
			"stripe_customer_id", account.StripeCustomerID,
			"error", err,
		)
		return detail, nil
	}
	if len(subs) > 0 {
		detail.Subscription = &subs[0]
	}

	return detail, nil
}

// UpdatePreference applies a caller-supplied partial update to the
// account's preference record. Absent fields are left untouched.
func (s *Service) UpdatePreference(ctx context.Context, accountID string, cs types.PreferenceChangeset) (*types.Preference, error) {
	return s.store.UpdatePreference(ctx, accountID, cs)
}

// ChangePlan reassigns the account to the given plan and recomputes the
// swipe-limit snapshot from the new plan's feature set in the same write.
// The snapshot is never left stale relative to the plan reference.
func (s *Service) ChangePlan(ctx context.Context, accountID, planID string) error {
	plan, err := s.plans.GetPlan(ctx, planID)
	if err != nil {
		return err
	}
	if err := s.store.ReassignPlan(ctx, accountID, planID, plan.SwipeLimit()); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "account plan reassigned",
		"account_id", accountID,
		"plan_id", planID,
		"swipe_limit_snapshot", plan.SwipeLimit(),
	)
	return nil
}

// Dashboard builds the admin landing-page aggregate: gender split with
// percentages and per-tier subscriber counts. The three paid tiers are
// always present in the breakdown, zero-valued if empty.
func (s *Service) Dashboard(ctx context.Context) (*types.DashboardStats, error) {
	genders, err := s.store.CountByGender(ctx)
	if err != nil {
		return nil, err
	}

	planCounts, err := s.store.CountByPlanName(ctx, types.BaselinePlanName)
	if err != nil {
		return nil, err
	}

	stats := &types.DashboardStats{
		MaleCount:   genders["male"],
		FemaleCount: genders["female"],
		PlanCounts: map[string]int64{
			types.PlanNameSilver:   0,
			types.PlanNameGold:     0,
			types.PlanNamePlatinum: 0,
		},
	}
	stats.TotalAccounts = stats.MaleCount + stats.FemaleCount

	if stats.TotalAccounts > 0 {
		stats.MalePercentage = int(math.Round(float64(stats.MaleCount) / float64(stats.TotalAccounts) * 100))
		stats.FemalePercentage = int(math.Round(float64(stats.FemaleCount) / float64(stats.TotalAccounts) * 100))
	}

	for name, n := range planCounts {
		if _, tracked := stats.PlanCounts[name]; tracked {
			stats.PlanCounts[name] = n
		}
		stats.TotalSubscribed += n
	}

	return stats, nil
}
