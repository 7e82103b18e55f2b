package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All services MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationMissingField      ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidEmail      ErrorCode = "validation_invalid_email"
	ErrCodeValidationNegativePrice     ErrorCode = "validation_negative_price"
	ErrCodeValidationEmptyName         ErrorCode = "validation_empty_name"
	ErrCodeValidationDuplicateIdentity ErrorCode = "validation_duplicate_identity"
	ErrCodeValidationUnknownEventKind  ErrorCode = "validation_unknown_event_kind"
	ErrCodeValidationInvalidYear       ErrorCode = "validation_invalid_year"

	// Not Found (404)
	ErrCodeNotFoundPlan     ErrorCode = "not_found_plan"
	ErrCodeNotFoundAccount  ErrorCode = "not_found_account"
	ErrCodeNotFoundActivity ErrorCode = "not_found_activity"

	// Conflict (409)
	ErrCodeConflictVersion ErrorCode = "conflict_plan_version"

	// Consistency (409)
	// The local plan record and the billing provider are known to have
	// diverged; reconciliation is required before further edits.
	ErrCodeConsistencyPendingSync ErrorCode = "consistency_pending_sync"

	// Internal/Upstream (500/502/504)
	ErrCodeInternalDB              ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected      ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamBilling         ErrorCode = "upstream_billing_unavailable"
	ErrCodeUpstreamBillingRejected ErrorCode = "upstream_billing_rejected"
	ErrCodeUpstreamBillingTimeout  ErrorCode = "upstream_billing_timeout"
	ErrCodeUpstreamRateLimited     ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamEmailProvider   ErrorCode = "upstream_email_provider_unavailable"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the API layer to translate AppErrors into HTTP responses.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case strings.HasPrefix(s, "conflict_"), strings.HasPrefix(s, "consistency_"):
		return http.StatusConflict // 409
	case s == string(ErrCodeUpstreamRateLimited):
		return http.StatusTooManyRequests // 429
	case s == string(ErrCodeUpstreamBillingTimeout):
		return http.StatusGatewayTimeout // 504
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// Retryable reports whether an operation that failed with this code may be
// safely retried with the same input. Upstream availability problems are
// retryable; provider-side rejections and all terminal codes are not.
func (c ErrorCode) Retryable() bool {
	switch c {
	case ErrCodeUpstreamBilling, ErrCodeUpstreamBillingTimeout, ErrCodeUpstreamRateLimited:
		return true
	default:
		return false
	}
}

// AppError is the standard application error type used throughout the engine.
// All domain and handler errors should be expressed as AppError to enable
// consistent error formatting, HTTP status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
// This is useful for adding context without mutating the original error.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with the given code, message,
// underlying error, and structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
