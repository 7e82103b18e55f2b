package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"lovebirdz/internal/api"
	"lovebirdz/internal/types"
)

// ActivityRecorder counts usage events into the per-month activity ledger.
type ActivityRecorder interface {
	Increment(ctx context.Context, accountID string, kind types.EventKind, at time.Time) error
}

// ChartBuilder assembles the fixed twelve-month activity series for a year.
type ChartBuilder interface {
	Build(ctx context.Context, accountID string, year int) (*types.ActivityChart, error)
}

// RecordActivityRequest is the request body for
// POST /v1/accounts/{accountID}/activity. When At is omitted the event is
// counted against the current UTC month.
type RecordActivityRequest struct {
	Kind string     `json:"kind" validate:"required"`
	At   *time.Time `json:"at,omitempty"`
}

// ActivityHandler handles the usage activity endpoints.
type ActivityHandler struct {
	recorder  ActivityRecorder
	charts    ChartBuilder
	validator *api.Validator
	logger    *slog.Logger
	clock     types.Clock
}

// NewActivityHandler creates an ActivityHandler with the provided
// dependencies.
func NewActivityHandler(
	recorder ActivityRecorder,
	charts ChartBuilder,
	v *api.Validator,
	l *slog.Logger,
) *ActivityHandler {
	if l == nil {
		l = slog.Default()
	}

	return &ActivityHandler{
		recorder:  recorder,
		charts:    charts,
		validator: v,
		logger:    l,
		clock:     types.RealClock{},
	}
}

// RegisterRoutes mounts the activity endpoints.
func (h *ActivityHandler) RegisterRoutes(r chi.Router) {
	r.Post("/accounts/{accountID}/activity", h.RecordActivity)
	r.Get("/accounts/{accountID}/activity/{year}", h.GetActivityChart)
}

// RecordActivity handles POST /v1/accounts/{accountID}/activity.
func (h *ActivityHandler) RecordActivity(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	var req RecordActivityRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		api.Error(w, r, err)
		return
	}

	at := h.clock.Now()
	if req.At != nil {
		at = *req.At
	}

	if err := h.recorder.Increment(r.Context(), accountID, types.EventKind(req.Kind), at); err != nil {
		api.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetActivityChart handles GET /v1/accounts/{accountID}/activity/{year}.
func (h *ActivityHandler) GetActivityChart(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		api.Error(w, r, types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidYear,
			"year must be a number",
			err,
			map[string]any{"year": chi.URLParam(r, "year")},
		))
		return
	}

	chart, err := h.charts.Build(r.Context(), accountID, year)
	if err != nil {
		api.Error(w, r, err)
		return
	}

	api.JSON(w, r, http.StatusOK, api.APIResponse{Data: chart})
}
