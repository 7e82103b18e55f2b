package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lovebirdz/internal/types"
)

// --- Mocks ---

type mockPlanStore struct {
	mock.Mock
}

func (m *mockPlanStore) GetByID(ctx context.Context, planID string) (*types.Plan, error) {
	args := m.Called(ctx, planID)
	if p := args.Get(0); p != nil {
		return p.(*types.Plan), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPlanStore) GetByName(ctx context.Context, name string) (*types.Plan, error) {
	args := m.Called(ctx, name)
	if p := args.Get(0); p != nil {
		return p.(*types.Plan), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPlanStore) ApplyChangeset(ctx context.Context, planID string, cs types.PlanChangeset, priceMinorUnits *int64, expectedVersion int64) (*types.Plan, error) {
	args := m.Called(ctx, planID, cs, priceMinorUnits, expectedVersion)
	if p := args.Get(0); p != nil {
		return p.(*types.Plan), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPlanStore) MarkPendingSync(ctx context.Context, planID string, groups []types.FieldGroup) error {
	args := m.Called(ctx, planID, groups)
	return args.Error(0)
}

type mockProductUpdater struct {
	mock.Mock

	mu    sync.Mutex
	calls []string
}

func (m *mockProductUpdater) record(name string) {
	m.mu.Lock()
	m.calls = append(m.calls, name)
	m.mu.Unlock()
}

func (m *mockProductUpdater) UpdateProduct(ctx context.Context, productID string, name *string, features map[string]any) error {
	m.record("product")
	args := m.Called(ctx, productID, name, features)
	return args.Error(0)
}

func (m *mockProductUpdater) UpdateProductPrice(ctx context.Context, productID string, amountMinorUnits int64) error {
	m.record("price")
	args := m.Called(ctx, productID, amountMinorUnits)
	return args.Error(0)
}

func (m *mockProductUpdater) SetProductActive(ctx context.Context, productID string, active bool) error {
	m.record("availability")
	args := m.Called(ctx, productID, active)
	return args.Error(0)
}

func storedPlan() *types.Plan {
	return &types.Plan{
		ID:              "plan_gold",
		Name:            "Gold Plan",
		PriceMinorUnits: 2999,
		Features:        map[string]any{"swipeLimit": float64(500)},
		Available:       true,
		StripeProductID: "prod_123",
		StripePriceID:   "price_123",
		Version:         3,
	}
}

// --- SyncPlan Tests ---

func TestSyncPlan_EmptyChangeset_NoSideEffects(t *testing.T) {
	store := new(mockPlanStore)
	billing := new(mockProductUpdater)
	svc := NewService(store, billing, nil)

	plan := storedPlan()
	store.On("GetByID", mock.Anything, "plan_gold").Return(plan, nil)

	got, err := svc.SyncPlan(context.Background(), "plan_gold", types.PlanChangeset{})
	require.NoError(t, err)
	assert.Equal(t, plan, got)

	billing.AssertNotCalled(t, "UpdateProduct")
	billing.AssertNotCalled(t, "UpdateProductPrice")
	billing.AssertNotCalled(t, "SetProductActive")
	store.AssertNotCalled(t, "ApplyChangeset")
}

func TestSyncPlan_FullChangeset_ProviderFirstInOrder(t *testing.T) {
	store := new(mockPlanStore)
	billing := new(mockProductUpdater)
	svc := NewService(store, billing, nil)

	plan := storedPlan()
	store.On("GetByID", mock.Anything, "plan_gold").Return(plan, nil)

	name := "Gold Plan Plus"
	price := 34.99
	available := false
	features := map[string]any{"swipeLimit": 750}
	cs := types.PlanChangeset{Name: &name, Price: &price, Available: &available, Features: features}

	billing.On("UpdateProduct", mock.Anything, "prod_123", &name, features).Return(nil)
	billing.On("UpdateProductPrice", mock.Anything, "prod_123", int64(3499)).Return(nil)
	billing.On("SetProductActive", mock.Anything, "prod_123", false).Return(nil)

	updated := storedPlan()
	updated.Name = name
	updated.PriceMinorUnits = 3499
	updated.Available = false
	updated.Version = 4
	minorUnits := int64(3499)
	store.On("ApplyChangeset", mock.Anything, "plan_gold", cs, &minorUnits, int64(3)).Return(updated, nil)

	got, err := svc.SyncPlan(context.Background(), "plan_gold", cs)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.Version)

	assert.Equal(t, []string{"product", "price", "availability"}, billing.calls)
	store.AssertNotCalled(t, "MarkPendingSync")
}

func TestSyncPlan_PartialChangeset_OnlyTouchedGroups(t *testing.T) {
	store := new(mockPlanStore)
	billing := new(mockProductUpdater)
	svc := NewService(store, billing, nil)

	plan := storedPlan()
	store.On("GetByID", mock.Anything, "plan_gold").Return(plan, nil)

	price := 9.99
	cs := types.PlanChangeset{Price: &price}

	billing.On("UpdateProductPrice", mock.Anything, "prod_123", int64(999)).Return(nil)

	minorUnits := int64(999)
	store.On("ApplyChangeset", mock.Anything, "plan_gold", cs, &minorUnits, int64(3)).Return(storedPlan(), nil)

	_, err := svc.SyncPlan(context.Background(), "plan_gold", cs)
	require.NoError(t, err)

	billing.AssertNotCalled(t, "UpdateProduct")
	billing.AssertNotCalled(t, "SetProductActive")
}

func TestSyncPlan_AvailabilityFails_AfterNameAndPrice(t *testing.T) {
	store := new(mockPlanStore)
	billing := new(mockProductUpdater)
	svc := NewService(store, billing, nil)

	plan := storedPlan()
	store.On("GetByID", mock.Anything, "plan_gold").Return(plan, nil)

	name := "Gold Plan Plus"
	price := 34.99
	available := false
	cs := types.PlanChangeset{Name: &name, Price: &price, Available: &available}

	billing.On("UpdateProduct", mock.Anything, "prod_123", &name, map[string]any(nil)).Return(nil)
	billing.On("UpdateProductPrice", mock.Anything, "prod_123", int64(3499)).Return(nil)
	billing.On("SetProductActive", mock.Anything, "prod_123", false).
		Return(types.NewAppError(types.ErrCodeUpstreamBilling, "provider unavailable", nil))

	store.On("MarkPendingSync", mock.Anything, "plan_gold",
		[]types.FieldGroup{types.GroupAvailability}).Return(nil)

	_, err := svc.SyncPlan(context.Background(), "plan_gold", cs)
	require.Error(t, err)

	// Nothing was committed locally and the divergence names exactly the
	// group that failed.
	store.AssertNotCalled(t, "ApplyChangeset")
	store.AssertExpectations(t)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamBilling, appErr.Code)
	assert.Equal(t, "availability", appErr.Details["failed_group"])
	assert.Equal(t, []string{"availability"}, appErr.Details["pending_groups"])
}

func TestSyncPlan_FirstGroupFails_AllGroupsPending(t *testing.T) {
	store := new(mockPlanStore)
	billing := new(mockProductUpdater)
	svc := NewService(store, billing, nil)

	plan := storedPlan()
	store.On("GetByID", mock.Anything, "plan_gold").Return(plan, nil)

	name := "Gold Plan Plus"
	available := false
	cs := types.PlanChangeset{Name: &name, Available: &available}

	billing.On("UpdateProduct", mock.Anything, "prod_123", &name, map[string]any(nil)).
		Return(types.NewAppError(types.ErrCodeUpstreamBillingTimeout, "provider call timed out", context.DeadlineExceeded))

	store.On("MarkPendingSync", mock.Anything, "plan_gold",
		[]types.FieldGroup{types.GroupProduct, types.GroupAvailability}).Return(nil)

	_, err := svc.SyncPlan(context.Background(), "plan_gold", cs)
	require.Error(t, err)

	billing.AssertNotCalled(t, "SetProductActive")
	store.AssertExpectations(t)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamBillingTimeout, appErr.Code)
	assert.Equal(t, "product", appErr.Details["failed_group"])
}

func TestSyncPlan_PendingPlanRefusesUncoveredChangeset(t *testing.T) {
	store := new(mockPlanStore)
	billing := new(mockProductUpdater)
	svc := NewService(store, billing, nil)

	plan := storedPlan()
	plan.PendingSync = true
	plan.PendingGroups = []types.FieldGroup{types.GroupAvailability}
	store.On("GetByID", mock.Anything, "plan_gold").Return(plan, nil)

	// A rename does not carry availability data, so committing it would
	// erase the diverged-group record without reconciling it.
	name := "Gold Plan Plus"
	_, err := svc.SyncPlan(context.Background(), "plan_gold", types.PlanChangeset{Name: &name})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeConsistencyPendingSync, appErr.Code)
	assert.Equal(t, []string{"availability"}, appErr.Details["pending_groups"])

	billing.AssertNotCalled(t, "UpdateProduct")
	billing.AssertNotCalled(t, "SetProductActive")
	store.AssertNotCalled(t, "ApplyChangeset")
	store.AssertNotCalled(t, "MarkPendingSync")
}

func TestSyncPlan_PendingPlanReconciledByCoveringChangeset(t *testing.T) {
	store := new(mockPlanStore)
	billing := new(mockProductUpdater)
	svc := NewService(store, billing, nil)

	plan := storedPlan()
	plan.PendingSync = true
	plan.PendingGroups = []types.FieldGroup{types.GroupAvailability}
	store.On("GetByID", mock.Anything, "plan_gold").Return(plan, nil)

	name := "Gold Plan Plus"
	available := false
	cs := types.PlanChangeset{Name: &name, Available: &available}

	billing.On("UpdateProduct", mock.Anything, "prod_123", &name, map[string]any(nil)).Return(nil)
	billing.On("SetProductActive", mock.Anything, "prod_123", false).Return(nil)

	reconciled := storedPlan()
	reconciled.Name = name
	reconciled.Available = false
	reconciled.Version = 4
	store.On("ApplyChangeset", mock.Anything, "plan_gold", cs, (*int64)(nil), int64(3)).
		Return(reconciled, nil)

	got, err := svc.SyncPlan(context.Background(), "plan_gold", cs)
	require.NoError(t, err)
	assert.False(t, got.PendingSync)
	assert.Empty(t, got.PendingGroups)

	// The diverged availability group was pushed before the commit that
	// clears the mark.
	assert.Equal(t, []string{"product", "availability"}, billing.calls)
}

func TestSyncPlan_LocalCommitFails_MarksDivergence(t *testing.T) {
	store := new(mockPlanStore)
	billing := new(mockProductUpdater)
	svc := NewService(store, billing, nil)

	plan := storedPlan()
	store.On("GetByID", mock.Anything, "plan_gold").Return(plan, nil)

	name := "Gold Plan Plus"
	cs := types.PlanChangeset{Name: &name}

	billing.On("UpdateProduct", mock.Anything, "prod_123", &name, map[string]any(nil)).Return(nil)

	store.On("ApplyChangeset", mock.Anything, "plan_gold", cs, (*int64)(nil), int64(3)).
		Return(nil, types.NewAppError(types.ErrCodeConflictVersion, "plan was modified concurrently", nil))

	// The provider now disagrees with the local record, so the plan must be
	// flagged even though every provider call succeeded.
	store.On("MarkPendingSync", mock.Anything, "plan_gold",
		[]types.FieldGroup{types.GroupProduct}).Return(nil)

	_, err := svc.SyncPlan(context.Background(), "plan_gold", cs)
	require.Error(t, err)
	store.AssertExpectations(t)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeConflictVersion, appErr.Code)
}

func TestSyncPlan_ValidationRejectsBeforeSideEffects(t *testing.T) {
	store := new(mockPlanStore)
	billing := new(mockProductUpdater)
	svc := NewService(store, billing, nil)

	empty := ""
	_, err := svc.SyncPlan(context.Background(), "plan_gold", types.PlanChangeset{Name: &empty})
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationEmptyName, appErr.Code)

	negative := -1.0
	_, err = svc.SyncPlan(context.Background(), "plan_gold", types.PlanChangeset{Price: &negative})
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationNegativePrice, appErr.Code)

	store.AssertNotCalled(t, "GetByID")
	billing.AssertNotCalled(t, "UpdateProduct")
}

func TestSyncPlan_CancelledContext_AbortsAtGroupBoundary(t *testing.T) {
	store := new(mockPlanStore)
	billing := new(mockProductUpdater)
	svc := NewService(store, billing, nil)

	plan := storedPlan()
	store.On("GetByID", mock.Anything, "plan_gold").Return(plan, nil)
	store.On("MarkPendingSync", mock.Anything, "plan_gold",
		[]types.FieldGroup{types.GroupPrice}).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	price := 9.99
	_, err := svc.SyncPlan(ctx, "plan_gold", types.PlanChangeset{Price: &price})
	require.Error(t, err)

	billing.AssertNotCalled(t, "UpdateProductPrice")
	store.AssertExpectations(t)
}

func TestSyncPlan_SerializesPerPlan(t *testing.T) {
	store := new(mockPlanStore)
	billing := new(mockProductUpdater)
	svc := NewService(store, billing, nil)

	plan := storedPlan()
	store.On("GetByID", mock.Anything, "plan_gold").Return(plan, nil)
	store.On("ApplyChangeset", mock.Anything, "plan_gold", mock.Anything, mock.Anything, mock.Anything).
		Return(storedPlan(), nil)

	var active, overlapped atomic.Int32
	billing.On("UpdateProductPrice", mock.Anything, "prod_123", mock.Anything).
		Run(func(mock.Arguments) {
			if active.Add(1) > 1 {
				overlapped.Store(1)
			}
			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
		}).
		Return(nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			price := 19.99
			_, _ = svc.SyncPlan(context.Background(), "plan_gold", types.PlanChangeset{Price: &price})
		}()
	}
	wg.Wait()

	assert.Zero(t, overlapped.Load(), "concurrent syncs for one plan must not interleave")
}

// --- Read Path Tests ---

func TestBaselinePlan_ResolvesByName(t *testing.T) {
	store := new(mockPlanStore)
	svc := NewService(store, new(mockProductUpdater), nil)

	free := &types.Plan{ID: "plan_free", Name: "Free Plan"}
	store.On("GetByName", mock.Anything, "Free Plan").Return(free, nil)

	got, err := svc.BaselinePlan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, free, got)
}

// --- Unit Conversion Tests ---

func TestToMinorUnits(t *testing.T) {
	assert.Equal(t, int64(2999), toMinorUnits(29.99))
	assert.Equal(t, int64(0), toMinorUnits(0))
	assert.Equal(t, int64(1000), toMinorUnits(9.999999999))
	// Binary float representation of 0.29 is slightly below 29 cents;
	// rounding keeps the conversion exact.
	assert.Equal(t, int64(29), toMinorUnits(0.29))
}
