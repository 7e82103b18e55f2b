package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lovebirdz/internal/api"
	"lovebirdz/internal/types"
)

// PlanCatalog mutates and reads the subscription plan catalog. Mutations are
// pushed to the billing provider before they are committed locally.
type PlanCatalog interface {
	GetPlan(ctx context.Context, planID string) (*types.Plan, error)
	SyncPlan(ctx context.Context, planID string, cs types.PlanChangeset) (*types.Plan, error)
}

// PlanHandler handles the plan catalog endpoints.
type PlanHandler struct {
	catalog PlanCatalog
	logger  *slog.Logger
}

// NewPlanHandler creates a PlanHandler with the provided dependencies.
func NewPlanHandler(catalog PlanCatalog, l *slog.Logger) *PlanHandler {
	if l == nil {
		l = slog.Default()
	}

	return &PlanHandler{
		catalog: catalog,
		logger:  l,
	}
}

// RegisterRoutes mounts the plan catalog endpoints.
func (h *PlanHandler) RegisterRoutes(r chi.Router) {
	r.Get("/plans/{planID}", h.GetPlan)
	r.Patch("/plans/{planID}", h.UpdatePlan)
}

// GetPlan handles GET /v1/plans/{planID}. The returned plan carries its
// pending_sync state so operators can see catalog entries that still owe a
// provider push.
func (h *PlanHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")

	plan, err := h.catalog.GetPlan(r.Context(), planID)
	if err != nil {
		api.Error(w, r, err)
		return
	}

	api.JSON(w, r, http.StatusOK, api.APIResponse{Data: plan})
}

// UpdatePlan handles PATCH /v1/plans/{planID}. Absent fields keep their
// stored values; present fields are pushed to the billing provider group by
// group before the local row is updated. A provider failure mid-sync leaves
// the local row untouched and flagged pending_sync, and the error response
// names the failed field group.
func (h *PlanHandler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")

	var cs types.PlanChangeset
	if err := api.DecodeJSON(w, r, &cs); err != nil {
		api.Error(w, r, err)
		return
	}

	plan, err := h.catalog.SyncPlan(r.Context(), planID, cs)
	if err != nil {
		api.Error(w, r, err)
		return
	}

	api.JSON(w, r, http.StatusOK, api.APIResponse{Data: plan})
}
