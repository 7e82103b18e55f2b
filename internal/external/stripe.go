package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"lovebirdz/internal/types"
)

// stripeAPIBase is the default Stripe API base URL.
// Overridable in tests via StripeClientConfig.BaseURL.
const stripeAPIBase = "https://api.stripe.com"

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey   string
	BaseURL     string // Override for testing; defaults to stripeAPIBase
	CallTimeout time.Duration
	Logger      *slog.Logger
}

// StripeClient is the billing provider adapter: the only component in the
// engine performing network calls to the provider. It is stateless apart
// from its client handle and is safe for concurrent use.
//
// Calls go over the Stripe REST API through BaseClient so every request
// inherits the circuit breaker, bounded retries, and error mapping. Each
// product mutation is keyed by the plan's immutable product ID, which is
// what makes a repeated call with the same changeset harmless.
type StripeClient struct {
	base        *BaseClient
	secretKey   string
	baseURL     string
	callTimeout time.Duration
	logger      *slog.Logger
}

// NewStripeClient creates a new StripeClient with a default BaseClient.
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig) *StripeClient {
	base := NewBaseClient(
		httpClient,
		"stripe",
		DefaultRetryPolicy(),
		"LoveBirdz/1.0",
	)
	return newStripeClient(base, cfg)
}

// NewStripeClientWithBase creates a StripeClient with a pre-configured
// BaseClient. Useful in tests to control retry and breaker behavior.
func NewStripeClientWithBase(base *BaseClient, cfg StripeClientConfig) *StripeClient {
	return newStripeClient(base, cfg)
}

func newStripeClient(base *BaseClient, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &StripeClient{
		base:        base,
		secretKey:   cfg.SecretKey,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		callTimeout: timeout,
		logger:      logger,
	}
}

// CreateCustomer creates a Stripe customer keyed by email and returns the
// external customer ID. The core never silently retries this call; retries
// are the provisioning caller's responsibility, gated by its uniqueness
// check.
func (s *StripeClient) CreateCustomer(ctx context.Context, email, displayName string) (string, error) {
	params := url.Values{}
	params.Set("email", email)
	params.Set("name", displayName)

	resp, err := s.doPost(ctx, "/v1/customers", params)
	if err != nil {
		return "", s.wrapStripeError("CreateCustomer", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", s.handleErrorResponse(resp, "CreateCustomer")
	}

	var customer stripeCustomer
	if err := json.NewDecoder(resp.Body).Decode(&customer); err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe customer creation response",
			err,
		)
	}
	return customer.ID, nil
}

// CreateProduct creates a provider-side product for a new catalog entry and
// returns its ID. Used by seeding tooling; the sync path only ever updates
// products that already exist.
func (s *StripeClient) CreateProduct(ctx context.Context, name string, features map[string]any, amountMinorUnits int64, active bool) (string, error) {
	params := url.Values{}
	params.Set("name", name)
	params.Set("unit_amount", strconv.FormatInt(amountMinorUnits, 10))
	params.Set("active", strconv.FormatBool(active))
	if features != nil {
		encoded, err := json.Marshal(features)
		if err != nil {
			return "", types.NewAppError(
				types.ErrCodeInternalUnexpected,
				"failed to encode plan features metadata",
				err,
			)
		}
		params.Set("metadata[features]", string(encoded))
	}

	resp, err := s.doPost(ctx, "/v1/products", params)
	if err != nil {
		return "", s.wrapStripeError("CreateProduct", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", s.handleErrorResponse(resp, "CreateProduct")
	}

	var product struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&product); err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe product creation response",
			err,
		)
	}
	return product.ID, nil
}

// UpdateProduct pushes the (name, features) field group for a plan. Nil
// arguments are omitted from the request entirely so absent changeset fields
// never overwrite provider-side state. Features are carried as JSON in the
// product's metadata, matching how the catalog was originally mirrored.
func (s *StripeClient) UpdateProduct(ctx context.Context, productID string, name *string, features map[string]any) error {
	params := url.Values{}
	if name != nil {
		params.Set("name", *name)
	}
	if features != nil {
		encoded, err := json.Marshal(features)
		if err != nil {
			return types.NewAppError(
				types.ErrCodeInternalUnexpected,
				"failed to encode plan features metadata",
				err,
			)
		}
		params.Set("metadata[features]", string(encoded))
	}
	if len(params) == 0 {
		return nil
	}

	resp, err := s.doPost(ctx, "/v1/products/"+productID, params)
	if err != nil {
		return s.wrapStripeError("UpdateProduct", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return s.handleErrorResponse(resp, "UpdateProduct")
	}
	return nil
}

// UpdateProductPrice pushes the price field group in integer minor currency
// units, keyed by the immutable product ID.
func (s *StripeClient) UpdateProductPrice(ctx context.Context, productID string, amountMinorUnits int64) error {
	params := url.Values{}
	params.Set("unit_amount", strconv.FormatInt(amountMinorUnits, 10))

	resp, err := s.doPost(ctx, "/v1/products/"+productID, params)
	if err != nil {
		return s.wrapStripeError("UpdateProductPrice", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return s.handleErrorResponse(resp, "UpdateProductPrice")
	}
	return nil
}

// SetProductActive pushes the availability field group.
func (s *StripeClient) SetProductActive(ctx context.Context, productID string, active bool) error {
	params := url.Values{}
	params.Set("active", strconv.FormatBool(active))

	resp, err := s.doPost(ctx, "/v1/products/"+productID, params)
	if err != nil {
		return s.wrapStripeError("SetProductActive", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return s.handleErrorResponse(resp, "SetProductActive")
	}
	return nil
}

// ListSubscriptionsForCustomer returns the customer's subscriptions, with
// the default payment method expanded when expandPaymentMethod is set. Used
// by the admin account-detail view to attach a card summary.
func (s *StripeClient) ListSubscriptionsForCustomer(ctx context.Context, customerID string, expandPaymentMethod bool) ([]types.SubscriptionSummary, error) {
	params := url.Values{}
	params.Set("customer", customerID)
	if expandPaymentMethod {
		params.Add("expand[]", "data.default_payment_method")
	}

	resp, err := s.doGet(ctx, "/v1/subscriptions", params)
	if err != nil {
		return nil, s.wrapStripeError("ListSubscriptionsForCustomer", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "ListSubscriptionsForCustomer")
	}

	var list stripeSubscriptionList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe subscriptions response",
			err,
		)
	}

	summaries := make([]types.SubscriptionSummary, 0, len(list.Data))
	for _, sub := range list.Data {
		summaries = append(summaries, mapStripeSubscription(&sub))
	}
	return summaries, nil
}

// ---------------------------------------------------------------------------
// HTTP Helpers
// ---------------------------------------------------------------------------

// doGet performs an authenticated GET request to the Stripe API under the
// client's bounded call timeout.
func (s *StripeClient) doGet(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	reqURL := s.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	s.setAuthHeaders(req)

	return s.base.Do(req)
}

// doPost performs an authenticated POST request with a form-encoded body
// under the client's bounded call timeout.
func (s *StripeClient) doPost(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	s.setAuthHeaders(req)

	return s.base.Do(req)
}

// setAuthHeaders sets the Stripe API authentication and version headers.
func (s *StripeClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

// stripeErrorResponse represents the JSON error body returned by Stripe.
type stripeErrorResponse struct {
	Error stripeErrorBody `json:"error"`
}

type stripeErrorBody struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param"`
}

// handleErrorResponse reads a Stripe error response and maps it to an
// AppError. 4xx responses are provider-side rejections and not retryable;
// 429 and 5xx never reach here because BaseClient retries and maps them.
func (s *StripeClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamBilling,
			fmt.Sprintf("%s: Stripe returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var stripeErr stripeErrorResponse
	if jsonErr := json.Unmarshal(body, &stripeErr); jsonErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamBilling,
			fmt.Sprintf("%s: Stripe returned status %d with non-JSON body", operation, resp.StatusCode),
			jsonErr,
		)
	}

	if resp.StatusCode == http.StatusNotFound {
		return types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamBillingRejected,
			fmt.Sprintf("%s: Stripe resource not found: %s", operation, stripeErr.Error.Message),
			nil,
			map[string]any{"stripe_code": stripeErr.Error.Code, "param": stripeErr.Error.Param},
		)
	}

	return types.NewAppErrorWithDetails(
		types.ErrCodeUpstreamBillingRejected,
		fmt.Sprintf("%s: Stripe error (%d): %s", operation, resp.StatusCode, stripeErr.Error.Message),
		nil,
		map[string]any{"stripe_code": stripeErr.Error.Code, "param": stripeErr.Error.Param},
	)
}

// wrapStripeError wraps a BaseClient transport error with operation context.
func (s *StripeClient) wrapStripeError(operation string, err error) error {
	// BaseClient errors (breaker open, retries exhausted, timeout) already
	// carry the right code; annotate the operation in details only.
	if appErr, ok := err.(*types.AppError); ok {
		return appErr.WithDetails(map[string]any{"operation": operation})
	}
	return types.NewAppError(
		types.ErrCodeUpstreamBilling,
		fmt.Sprintf("%s: Stripe request failed", operation),
		err,
	)
}

// ---------------------------------------------------------------------------
// Stripe Response Types (for JSON deserialization)
// ---------------------------------------------------------------------------

type stripeCustomer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type stripeSubscription struct {
	ID                   string                  `json:"id"`
	Status               string                  `json:"status"`
	Items                stripeSubscriptionItems `json:"items"`
	DefaultPaymentMethod *stripePaymentMethod    `json:"default_payment_method"`
}

type stripeSubscriptionItems struct {
	Data []stripeSubscriptionItem `json:"data"`
}

type stripeSubscriptionItem struct {
	Price stripePrice `json:"price"`
}

type stripePrice struct {
	ID string `json:"id"`
}

type stripePaymentMethod struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Card *stripeCardInfo `json:"card"`
}

type stripeCardInfo struct {
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
}

type stripeSubscriptionList struct {
	Data    []stripeSubscription `json:"data"`
	HasMore bool                 `json:"has_more"`
}

// mapStripeSubscription converts a Stripe subscription into the domain
// summary attached to account detail views.
func mapStripeSubscription(sub *stripeSubscription) types.SubscriptionSummary {
	summary := types.SubscriptionSummary{
		SubscriptionID: sub.ID,
		Status:         sub.Status,
	}
	if len(sub.Items.Data) > 0 {
		summary.PriceID = sub.Items.Data[0].Price.ID
	}
	if sub.DefaultPaymentMethod != nil && sub.DefaultPaymentMethod.Card != nil {
		card := sub.DefaultPaymentMethod.Card
		summary.PaymentMethod = &types.CardSummary{
			Brand:    card.Brand,
			Last4:    card.Last4,
			ExpMonth: card.ExpMonth,
			ExpYear:  card.ExpYear,
		}
	}
	return summary
}
