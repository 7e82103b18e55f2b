// Package accounts implements account provisioning and the admin-facing
// account read paths for the LoveBirdz billing engine.
package accounts

import (
	"context"
	"log/slog"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"lovebirdz/internal/types"
)

// bcryptCost is the bcrypt cost factor used for credential hashing.
const bcryptCost = 12

// Preference defaults applied at provisioning time. The record is partially
// updatable afterward; these are just the starting values.
const (
	defaultPrefDistanceKm = 40
	defaultPrefAgeMin     = 18
	defaultPrefAgeMax     = 99
)

// AccountStore is the persistence surface the provisioner and account
// service require.
type AccountStore interface {
	ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, error)
	GetByID(ctx context.Context, accountID string) (*types.Account, error)
	CreateAccountWithPreference(ctx context.Context, a *types.Account, p *types.Preference) error
	UpdatePreference(ctx context.Context, accountID string, cs types.PreferenceChangeset) (*types.Preference, error)
	ReassignPlan(ctx context.Context, accountID, planID string, swipeLimit int) error
	CountByGender(ctx context.Context) (map[string]int64, error)
	CountByPlanName(ctx context.Context, baseline string) (map[string]int64, error)
}

// PlanResolver is the slice of the plan catalog the accounts package needs.
type PlanResolver interface {
	GetPlan(ctx context.Context, planID string) (*types.Plan, error)
	BaselinePlan(ctx context.Context) (*types.Plan, error)
}

// CustomerCreator is the slice of the billing provider adapter used during
// provisioning.
type CustomerCreator interface {
	CreateCustomer(ctx context.Context, email, displayName string) (string, error)
}

// WelcomeEnqueuer hands the welcome notification off to the background
// queue. Publish failures are the provisioner's to log, never to return.
type WelcomeEnqueuer interface {
	Publish(ctx context.Context, msg types.WelcomeMessage) error
}

// PasswordHasher abstracts bcrypt operations for testability.
type PasswordHasher interface {
	GenerateFromPassword(password string) (string, error)
}

// bcryptHasher is the production implementation of PasswordHasher.
type bcryptHasher struct{}

func (bcryptHasher) GenerateFromPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Provisioner creates new accounts with a billing identity. It owns the
// write path for an account's initial state and nothing afterward.
type Provisioner struct {
	store    AccountStore
	plans    PlanResolver
	billing  CustomerCreator
	welcome  WelcomeEnqueuer
	hasher   PasswordHasher
	validate *validator.Validate
	clock    types.Clock
	logger   *slog.Logger

	// Identity locks serialize concurrent provisioning of candidates sharing
	// an email or phone, so the uniqueness gate decides before a second
	// external customer can be created for the same identity.
	idMu    sync.Mutex
	idLocks map[string]*sync.Mutex
}

// NewProvisioner creates a Provisioner with the production password hasher
// and real clock. Nil clock and logger fall back to defaults.
func NewProvisioner(
	store AccountStore,
	plans PlanResolver,
	billing CustomerCreator,
	welcome WelcomeEnqueuer,
	clock types.Clock,
	logger *slog.Logger,
) *Provisioner {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{
		store:    store,
		plans:    plans,
		billing:  billing,
		welcome:  welcome,
		hasher:   bcryptHasher{},
		validate: validator.New(),
		clock:    clock,
		logger:   logger,
		idLocks:  make(map[string]*sync.Mutex),
	}
}

// identityLock returns the mutex serializing provisioning for one identity
// key. Callers always acquire the email key before the phone key, so two
// candidates overlapping on either field cannot deadlock.
func (p *Provisioner) identityLock(key string) *sync.Mutex {
	p.idMu.Lock()
	defer p.idMu.Unlock()
	l, ok := p.idLocks[key]
	if !ok {
		l = &sync.Mutex{}
		p.idLocks[key] = l
	}
	return l
}

// Provision creates a new account from the candidate:
//
//  1. Validate shape, then check email/phone uniqueness. The uniqueness
//     check is the de-duplication gate for retried calls and is
//     re-evaluated every time. Concurrent calls overlapping on either
//     identity field are serialized, so the gate sees an earlier call's
//     outcome before any provider side effect.
//  2. Hash the credential. The raw value is never persisted; it travels
//     only inside the one-shot welcome message.
//  3. Resolve the baseline plan and snapshot its swipe limit.
//  4. Build the preference record.
//  5. Create the external customer, keyed by email. Never retried here.
//  6. Persist account and preference in one transaction, only after the
//     external customer exists. On any earlier failure nothing persists.
//  7. Enqueue the welcome notification, best effort.
func (p *Provisioner) Provision(ctx context.Context, candidate types.Candidate) (*types.Account, error) {
	if err := p.validate.Struct(candidate); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"candidate failed validation",
			err,
		)
	}

	emailLock := p.identityLock("email:" + candidate.Email)
	emailLock.Lock()
	defer emailLock.Unlock()
	phoneLock := p.identityLock("phone:" + candidate.Phone)
	phoneLock.Lock()
	defer phoneLock.Unlock()

	exists, err := p.store.ExistsByEmailOrPhone(ctx, candidate.Email, candidate.Phone)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, types.NewAppError(
			types.ErrCodeValidationDuplicateIdentity,
			"email or phone number already exists",
			nil,
		)
	}

	hash, err := p.hasher.GenerateFromPassword(candidate.Password)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to hash credential", err)
	}

	baseline, err := p.plans.BaselinePlan(ctx)
	if err != nil {
		return nil, err
	}

	now := p.clock.Now()
	account := &types.Account{
		ID:                 uuid.New().String(),
		Email:              candidate.Email,
		Phone:              candidate.Phone,
		Name:               candidate.Name,
		Gender:             candidate.Gender,
		PasswordHash:       hash,
		PlanID:             baseline.ID,
		SwipeLimitSnapshot: baseline.SwipeLimit(),
		LastActiveAt:       &now,
		CreatedAt:          now,
	}

	pref := &types.Preference{
		ID:         uuid.New().String(),
		AccountID:  account.ID,
		DistanceKm: defaultPrefDistanceKm,
		AgeMin:     defaultPrefAgeMin,
		AgeMax:     defaultPrefAgeMax,
		UpdatedAt:  now,
	}
	account.PreferenceID = pref.ID

	customerID, err := p.billing.CreateCustomer(ctx, candidate.Email, candidate.Name)
	if err != nil {
		p.logger.ErrorContext(ctx, "external customer creation failed; provisioning aborted",
			"email", candidate.Email,
			"error", err,
		)
		return nil, err
	}
	account.StripeCustomerID = customerID

	if err := p.store.CreateAccountWithPreference(ctx, account, pref); err != nil {
		// The external customer exists but the account does not. A retry
		// re-runs the uniqueness check and creates a fresh customer; the
		// orphan is reaped by provider-side housekeeping.
		p.logger.ErrorContext(ctx, "account persistence failed after customer creation",
			"account_id", account.ID,
			"stripe_customer_id", customerID,
			"error", err,
		)
		return nil, err
	}

	// Provisioning is complete. Welcome delivery is best effort from here:
	// a failed enqueue is logged and dropped, never surfaced.
	msg := types.WelcomeMessage{
		MessageID:  uuid.New().String(),
		TraceID:    types.GetRequestID(ctx),
		AccountID:  account.ID,
		Email:      account.Email,
		Name:       account.Name,
		Password:   types.SecretString(candidate.Password),
		EnqueuedAt: p.clock.Now(),
	}
	if err := p.welcome.Publish(ctx, msg); err != nil {
		p.logger.WarnContext(ctx, "welcome notification enqueue failed",
			"account_id", account.ID,
			"message_id", msg.MessageID,
			"error", err,
		)
	}

	p.logger.InfoContext(ctx, "account provisioned",
		"account_id", account.ID,
		"plan_id", account.PlanID,
		"swipe_limit_snapshot", account.SwipeLimitSnapshot,
		"stripe_customer_id", customerID,
	)

	return account, nil
}
