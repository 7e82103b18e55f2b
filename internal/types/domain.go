// Package types defines the shared domain model, error taxonomy, and
// cross-cutting interfaces for the LoveBirdz billing engine. It has no
// dependencies on other internal packages so that every layer can import it.
package types

import "time"

// FeatureSwipeLimit is the well-known feature key holding a plan's daily
// swipe allowance. Its value is snapshotted onto accounts at provisioning
// time and recomputed on plan changes, never read live.
const FeatureSwipeLimit = "swipeLimit"

// BaselinePlanName is the plan every new account starts on.
const BaselinePlanName = "Free Plan"

// Paid tier names as seeded in the catalog. Dashboard subscriber counts are
// reported per tier for exactly this set.
const (
	PlanNameSilver   = "Silver Plan"
	PlanNameGold     = "Gold Plan"
	PlanNamePlatinum = "Platinum Plan"
)

// FieldGroup identifies one of the three independently idempotent call
// groups used when pushing a plan changeset to the billing provider.
// The sync order is fixed: product -> price -> availability.
type FieldGroup string

const (
	GroupProduct      FieldGroup = "product"      // name + features metadata
	GroupPrice        FieldGroup = "price"        // unit amount in minor units
	GroupAvailability FieldGroup = "availability" // active flag
)

// Plan is the locally persisted projection of a subscription tier.
//
// StripeProductID and StripePriceID are immutable once assigned; they are the
// stable keys that make provider-side updates idempotent. Version backs the
// optimistic concurrency check on local commits. PendingSync marks a plan
// whose provider-side state is known to have diverged; PendingGroups names
// the field groups that still need reconciliation.
type Plan struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	PriceMinorUnits int64          `json:"price_minor_units"`
	Features        map[string]any `json:"features"`
	Available       bool           `json:"available"`
	StripeProductID string         `json:"stripe_product_id"`
	StripePriceID   string         `json:"stripe_price_id"`
	PendingSync     bool           `json:"pending_sync"`
	PendingGroups   []FieldGroup   `json:"pending_groups,omitempty"`
	Version         int64          `json:"version"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// SwipeLimit extracts the swipe-limit feature value from the plan's feature
// map. Feature maps round-trip through JSONB, so numeric values may arrive
// as float64 or int. Returns 0 if the feature is absent or malformed.
func (p *Plan) SwipeLimit() int {
	switch v := p.Features[FeatureSwipeLimit].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// PlanChangeset is a partial plan update. Nil fields are absent and must be
// left untouched both locally and on the billing provider. Price is in
// decimal currency units as entered by the admin; conversion to minor units
// happens at the provider boundary.
type PlanChangeset struct {
	Name      *string        `json:"name,omitempty"`
	Price     *float64       `json:"price,omitempty"`
	Available *bool          `json:"available,omitempty"`
	Features  map[string]any `json:"features,omitempty"`
}

// IsEmpty reports whether the changeset carries no fields at all.
func (c PlanChangeset) IsEmpty() bool {
	return c.Name == nil && c.Price == nil && c.Available == nil && c.Features == nil
}

// Groups returns the field groups the changeset touches, in sync order.
func (c PlanChangeset) Groups() []FieldGroup {
	var groups []FieldGroup
	if c.Name != nil || c.Features != nil {
		groups = append(groups, GroupProduct)
	}
	if c.Price != nil {
		groups = append(groups, GroupPrice)
	}
	if c.Available != nil {
		groups = append(groups, GroupAvailability)
	}
	return groups
}

// Covers reports whether the changeset carries data for the given field
// group, meaning a sync of this changeset would push that group.
func (c PlanChangeset) Covers(g FieldGroup) bool {
	switch g {
	case GroupProduct:
		return c.Name != nil || c.Features != nil
	case GroupPrice:
		return c.Price != nil
	case GroupAvailability:
		return c.Available != nil
	}
	return false
}

// Account is the billing-relevant projection of a platform user.
//
// SwipeLimitSnapshot is a copy of the plan's swipe-limit feature taken at
// assignment time; later plan edits do not change it. StripeCustomerID is
// empty until provisioning completes and immutable afterward.
type Account struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	Phone              string     `json:"phone"`
	Name               string     `json:"name"`
	Gender             string     `json:"gender"`
	PasswordHash       string     `json:"-"`
	PlanID             string     `json:"plan_id"`
	SwipeLimitSnapshot int        `json:"swipe_limit_snapshot"`
	StripeCustomerID   string     `json:"stripe_customer_id,omitempty"`
	PreferenceID       string     `json:"preference_id"`
	LastActiveAt       *time.Time `json:"last_active_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Candidate carries the identity and profile fields for a new account.
// Validation tags are enforced by the provisioner before any side effects.
type Candidate struct {
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"required,min=7"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required"`
	Gender   string `json:"gender" validate:"required,oneof=male female other"`
}

// Preference is the auxiliary per-account matching preference record,
// created with defaults at provisioning time and partially updatable later.
type Preference struct {
	ID                string    `json:"id"`
	AccountID         string    `json:"account_id"`
	Gender            string    `json:"gender"`
	Smoking           string    `json:"smoking"`
	Drinking          string    `json:"drinking"`
	RelationshipGoals string    `json:"relationship_goals"`
	DistanceKm        int       `json:"distance_km"`
	AgeMin            int       `json:"age_min"`
	AgeMax            int       `json:"age_max"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// PreferenceChangeset is a partial preference update. Nil fields are left
// untouched; caller-supplied values are always honored as-is.
type PreferenceChangeset struct {
	Gender            *string `json:"gender,omitempty"`
	Smoking           *string `json:"smoking,omitempty"`
	Drinking          *string `json:"drinking,omitempty"`
	RelationshipGoals *string `json:"relationship_goals,omitempty"`
	DistanceKm        *int    `json:"distance_km,omitempty"`
	AgeMin            *int    `json:"age_min,omitempty"`
	AgeMax            *int    `json:"age_max,omitempty"`
}

// EventKind is a recognized usage event type counted by the activity ledger.
type EventKind string

const (
	EventLike  EventKind = "like"
	EventMatch EventKind = "match"
	EventSwipe EventKind = "swipe"
)

// Valid reports whether the kind is one of the three recognized events.
func (k EventKind) Valid() bool {
	switch k {
	case EventLike, EventMatch, EventSwipe:
		return true
	default:
		return false
	}
}

// ActivityRecord holds the monthly usage counters for one account. At most
// one record exists per (AccountID, Year, Month); counters only grow.
type ActivityRecord struct {
	AccountID string `json:"account_id"`
	Year      int    `json:"year"`
	Month     int    `json:"month"` // 1..12
	Likes     int64  `json:"likes"`
	Matches   int64  `json:"matches"`
	Swipes    int64  `json:"swipes"`
}

// ActivityChart is a year of monthly counters shaped for charting.
// Each series is always exactly 12 entries long; index 0 is January.
type ActivityChart struct {
	Likes   []int64 `json:"likes"`
	Matches []int64 `json:"matches"`
	Swipes  []int64 `json:"swipes"`
}

// CardSummary is the payment-method snippet attached to subscribed account
// detail views, sourced from the provider's expanded subscription listing.
type CardSummary struct {
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
}

// SubscriptionSummary pairs a provider-side subscription with its payment
// method summary for a single customer.
type SubscriptionSummary struct {
	SubscriptionID string       `json:"subscription_id"`
	PriceID        string       `json:"price_id"`
	Status         string       `json:"status"`
	PaymentMethod  *CardSummary `json:"payment_method,omitempty"`
}

// DashboardStats is the admin landing-page aggregate over accounts and plans.
type DashboardStats struct {
	MaleCount        int64            `json:"male_count"`
	FemaleCount      int64            `json:"female_count"`
	TotalAccounts    int64            `json:"total_accounts"`
	MalePercentage   int              `json:"male_percentage"`
	FemalePercentage int              `json:"female_percentage"`
	PlanCounts       map[string]int64 `json:"plan_counts"`
	TotalSubscribed  int64            `json:"total_subscribed"`
}

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }
