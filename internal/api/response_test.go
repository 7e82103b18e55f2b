package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lovebirdz/internal/types"
)

func newTestRequest(method, body string) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, "/test", nil)
	} else {
		r = httptest.NewRequest(method, "/test", strings.NewReader(body))
	}
	return r.WithContext(types.WithRequestID(r.Context(), "req_test"))
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) APIErrorResponse {
	t.Helper()
	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestJSON_WritesEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, newTestRequest(http.MethodGet, ""), http.StatusOK, APIResponse{Data: map[string]string{"id": "plan_1"}})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data": {"id": "plan_1"}}`, rec.Body.String())
}

func TestJSON_MarshalFailureFallsBackTo500(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, newTestRequest(http.MethodGet, ""), http.StatusOK, map[string]any{"bad": func() {}})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeErrorBody(t, rec)
	assert.Equal(t, string(types.ErrCodeInternalUnexpected), resp.Error.Code)
	assert.Equal(t, "req_test", resp.Error.RequestID)
}

func TestError_AppErrorStatusMapping(t *testing.T) {
	tests := []struct {
		code       types.ErrorCode
		wantStatus int
	}{
		{types.ErrCodeValidationMissingField, http.StatusBadRequest},
		{types.ErrCodeNotFoundPlan, http.StatusNotFound},
		{types.ErrCodeConflictVersion, http.StatusConflict},
		{types.ErrCodeUpstreamBillingTimeout, http.StatusGatewayTimeout},
		{types.ErrCodeUpstreamBilling, http.StatusBadGateway},
		{types.ErrCodeUpstreamRateLimited, http.StatusTooManyRequests},
		{types.ErrCodeInternalDB, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			rec := httptest.NewRecorder()
			Error(rec, newTestRequest(http.MethodGet, ""), types.NewAppError(tt.code, "boom", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeErrorBody(t, rec)
			assert.Equal(t, string(tt.code), resp.Error.Code)
			assert.Equal(t, "boom", resp.Error.Message)
			assert.Equal(t, "req_test", resp.Error.RequestID)
		})
	}
}

func TestError_WrappedAppErrorIsUnwrapped(t *testing.T) {
	inner := types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", nil)
	wrapped := fmt.Errorf("loading detail: %w", inner)

	rec := httptest.NewRecorder()
	Error(rec, newTestRequest(http.MethodGet, ""), wrapped)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeErrorBody(t, rec)
	assert.Equal(t, string(types.ErrCodeNotFoundAccount), resp.Error.Code)
}

func TestError_GenericErrorIs500WithoutLeak(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, newTestRequest(http.MethodGet, ""), fmt.Errorf("pq: connection reset"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeErrorBody(t, rec)
	assert.Equal(t, string(types.ErrCodeInternalUnexpected), resp.Error.Code)
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestError_DetailsArePassedThrough(t *testing.T) {
	err := types.NewAppErrorWithDetails(types.ErrCodeConflictVersion, "plan was modified concurrently", nil,
		map[string]any{"plan_id": "plan_1"})

	rec := httptest.NewRecorder()
	Error(rec, newTestRequest(http.MethodGet, ""), err)

	resp := decodeErrorBody(t, rec)
	assert.Equal(t, "plan_1", resp.Error.Details["plan_id"])
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	t.Run("valid body", func(t *testing.T) {
		var dst payload
		r := newTestRequest(http.MethodPost, `{"name": "Gold Plan"}`)
		require.NoError(t, DecodeJSON(httptest.NewRecorder(), r, &dst))
		assert.Equal(t, "Gold Plan", dst.Name)
	})

	t.Run("empty body", func(t *testing.T) {
		var dst payload
		r := newTestRequest(http.MethodPost, "")
		err := DecodeJSON(httptest.NewRecorder(), r, &dst)
		requireDecodeError(t, err, "request body must not be empty")
	})

	t.Run("malformed JSON", func(t *testing.T) {
		var dst payload
		r := newTestRequest(http.MethodPost, `{"name": `)
		err := DecodeJSON(httptest.NewRecorder(), r, &dst)
		requireDecodeError(t, err, "malformed JSON in request body")
	})

	t.Run("unknown field", func(t *testing.T) {
		var dst payload
		r := newTestRequest(http.MethodPost, `{"name": "x", "nope": true}`)
		err := DecodeJSON(httptest.NewRecorder(), r, &dst)
		requireDecodeError(t, err, "unknown field")
	})

	t.Run("wrong field type", func(t *testing.T) {
		var dst payload
		r := newTestRequest(http.MethodPost, `{"name": 42}`)
		err := DecodeJSON(httptest.NewRecorder(), r, &dst)
		var appErr *types.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, errCodeValidationInvalidJSON, appErr.Code)
		assert.Equal(t, "name", appErr.Details["field"])
	})

	t.Run("multiple JSON values", func(t *testing.T) {
		var dst payload
		r := newTestRequest(http.MethodPost, `{"name": "a"}{"name": "b"}`)
		err := DecodeJSON(httptest.NewRecorder(), r, &dst)
		requireDecodeError(t, err, "single JSON object")
	})

	t.Run("oversized body", func(t *testing.T) {
		var dst payload
		big := `{"name": "` + strings.Repeat("x", maxRequestBodySize+1) + `"}`
		r := newTestRequest(http.MethodPost, big)
		err := DecodeJSON(httptest.NewRecorder(), r, &dst)
		requireDecodeError(t, err, "must not exceed 1MB")
	})
}

func requireDecodeError(t *testing.T, err error, msgFragment string) {
	t.Helper()
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, errCodeValidationInvalidJSON, appErr.Code)
	assert.Contains(t, appErr.Message, msgFragment)
	assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus())
}
