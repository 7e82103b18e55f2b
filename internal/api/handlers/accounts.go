// Package handlers contains the HTTP handler implementations for the
// LoveBirdz admin API. Each handler file defines the service contracts it
// needs locally and receives implementations via its constructor, which keeps
// the handlers decoupled from concrete service types and easy to mock.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lovebirdz/internal/accounts"
	"lovebirdz/internal/api"
	"lovebirdz/internal/types"
)

// AccountProvisioner creates fully provisioned member accounts: identity
// checks, credential hashing, baseline plan snapshot, billing customer and
// the welcome notification.
type AccountProvisioner interface {
	Provision(ctx context.Context, candidate types.Candidate) (*types.Account, error)
}

// AccountService covers the admin read and maintenance paths over accounts.
type AccountService interface {
	// GetAccountDetail returns the account joined with its plan name and,
	// for paying members, the live subscription summary from the provider.
	GetAccountDetail(ctx context.Context, accountID string) (*accounts.AccountDetail, error)

	// UpdatePreference applies a partial update to the account's matching
	// preference record and returns the updated record.
	UpdatePreference(ctx context.Context, accountID string, cs types.PreferenceChangeset) (*types.Preference, error)

	// ChangePlan reassigns the account to the given plan and refreshes its
	// swipe limit snapshot from the plan's features.
	ChangePlan(ctx context.Context, accountID, planID string) error

	// Dashboard aggregates the membership stats shown on the admin landing
	// page.
	Dashboard(ctx context.Context) (*types.DashboardStats, error)
}

// CreateAccountRequest is the request body for POST /v1/accounts.
type CreateAccountRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"required,min=7"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required"`
	Gender   string `json:"gender" validate:"required,oneof=male female other"`
}

// ChangePlanRequest is the request body for PUT /v1/accounts/{accountID}/plan.
type ChangePlanRequest struct {
	PlanID string `json:"plan_id" validate:"required"`
}

// AccountHandler handles admin account management endpoints.
type AccountHandler struct {
	provisioner AccountProvisioner
	service     AccountService
	validator   *api.Validator
	logger      *slog.Logger
}

// NewAccountHandler creates an AccountHandler with the provided dependencies.
func NewAccountHandler(
	provisioner AccountProvisioner,
	service AccountService,
	v *api.Validator,
	l *slog.Logger,
) *AccountHandler {
	if l == nil {
		l = slog.Default()
	}

	return &AccountHandler{
		provisioner: provisioner,
		service:     service,
		validator:   v,
		logger:      l,
	}
}

// RegisterRoutes mounts the account endpoints.
func (h *AccountHandler) RegisterRoutes(r chi.Router) {
	r.Post("/accounts", h.CreateAccount)
	r.Get("/accounts/{accountID}", h.GetAccount)
	r.Patch("/accounts/{accountID}/preference", h.UpdatePreference)
	r.Put("/accounts/{accountID}/plan", h.ChangePlan)
	r.Get("/dashboard", h.Dashboard)
}

// CreateAccount handles POST /v1/accounts. It provisions a new member
// account end to end and returns 201 with the created account.
func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		api.Error(w, r, err)
		return
	}

	account, err := h.provisioner.Provision(r.Context(), types.Candidate{
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
		Name:     req.Name,
		Gender:   req.Gender,
	})
	if err != nil {
		api.Error(w, r, err)
		return
	}

	api.JSON(w, r, http.StatusCreated, api.APIResponse{Data: account})
}

// GetAccount handles GET /v1/accounts/{accountID}.
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	detail, err := h.service.GetAccountDetail(r.Context(), accountID)
	if err != nil {
		api.Error(w, r, err)
		return
	}

	api.JSON(w, r, http.StatusOK, api.APIResponse{Data: detail})
}

// UpdatePreference handles PATCH /v1/accounts/{accountID}/preference.
// Absent fields keep their stored values.
func (h *AccountHandler) UpdatePreference(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	var cs types.PreferenceChangeset
	if err := api.DecodeJSON(w, r, &cs); err != nil {
		api.Error(w, r, err)
		return
	}

	pref, err := h.service.UpdatePreference(r.Context(), accountID, cs)
	if err != nil {
		api.Error(w, r, err)
		return
	}

	api.JSON(w, r, http.StatusOK, api.APIResponse{Data: pref})
}

// ChangePlan handles PUT /v1/accounts/{accountID}/plan.
func (h *AccountHandler) ChangePlan(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	var req ChangePlanRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		api.Error(w, r, err)
		return
	}

	if err := h.service.ChangePlan(r.Context(), accountID, req.PlanID); err != nil {
		api.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Dashboard handles GET /v1/dashboard.
func (h *AccountHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Dashboard(r.Context())
	if err != nil {
		api.Error(w, r, err)
		return
	}

	api.JSON(w, r, http.StatusOK, api.APIResponse{Data: stats})
}
