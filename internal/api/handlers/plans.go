// Package handlers contains the HTTP handler implementations for the huddle API.
//
// Handlers depend on narrow, locally-defined interfaces that mirror the
// concrete services they consume, so each handler can be tested with
// hand-written in-package mocks.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"huddle/internal/core"
	"huddle/internal/types"
)

// CatalogStore is the slice of the plan config store the plans handler needs.
type CatalogStore interface {
	Get(ctx context.Context) (types.PlanCatalog, error)
	Set(ctx context.Context, catalog types.PlanCatalog) error
}

// PlansHandler serves the merged plan catalog and the admin full-replace
// override.
type PlansHandler struct {
	store  CatalogStore
	logger *slog.Logger
}

// NewPlansHandler creates a PlansHandler.
func NewPlansHandler(store CatalogStore, l *slog.Logger) *PlansHandler {
	if l == nil {
		l = slog.Default()
	}
	return &PlansHandler{store: store, logger: l}
}

// RegisterRoutes mounts the public catalog route.
func (h *PlansHandler) RegisterRoutes(r chi.Router) {
	r.Get("/plans", h.GetCatalog)
}

// RegisterAdminRoutes mounts the admin override route. The caller wraps the
// group with the admin-role middleware.
func (h *PlansHandler) RegisterAdminRoutes(r chi.Router) {
	r.Put("/plans", h.ReplaceCatalog)
}

// GetCatalog handles GET /v1/plans. The response is always the full merge of
// the stored override over compiled-in defaults; a storage failure surfaces
// as 503 rather than silently serving stale limits to a billing UI.
func (h *PlansHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	catalog, err := h.store.Get(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: catalog})
}

// ReplaceCatalog handles PUT /v1/admin/plans. The body is a complete catalog;
// partial documents are rejected by shape validation inside the store, and
// the stored override is replaced wholesale.
func (h *PlansHandler) ReplaceCatalog(w http.ResponseWriter, r *http.Request) {
	var catalog types.PlanCatalog
	if err := core.DecodeJSON(w, r, &catalog); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.store.Set(r.Context(), catalog); err != nil {
		core.Error(w, r, err)
		return
	}

	actor, _ := types.GetActor(r.Context())
	h.logger.InfoContext(r.Context(), "plan catalog replaced", "actor_id", actor.ID)

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: catalog})
}
