package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"huddle/internal/core"
	"huddle/internal/types"
)

// KeyManager mirrors the auth.KeyService operations used by this handler.
type KeyManager interface {
	IssueKey(ctx context.Context, name, createdBy string, testMode bool) (*types.APIKey, string, error)
	ListKeys(ctx context.Context) ([]types.APIKey, error)
	RevokeKey(ctx context.Context, id string) error
}

// CreateAPIKeyRequest is the body for POST /v1/admin/keys.
type CreateAPIKeyRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	TestMode bool   `json:"test_mode"`
}

// CreateAPIKeyResponse carries the one-time plaintext secret alongside the
// stored record. The secret is never retrievable again.
type CreateAPIKeyResponse struct {
	Key    types.APIKey `json:"key"`
	Secret string       `json:"secret"`
}

// APIKeyHandler manages server-to-server credentials for entitlement
// callers. Admin-only.
type APIKeyHandler struct {
	keys      KeyManager
	validator *core.Validator
	logger    *slog.Logger
}

// NewAPIKeyHandler creates an APIKeyHandler.
func NewAPIKeyHandler(keys KeyManager, v *core.Validator, l *slog.Logger) *APIKeyHandler {
	if l == nil {
		l = slog.Default()
	}
	return &APIKeyHandler{keys: keys, validator: v, logger: l}
}

// RegisterAdminRoutes mounts the key routes. The caller wraps the group with
// the admin-role middleware.
func (h *APIKeyHandler) RegisterAdminRoutes(r chi.Router) {
	r.Route("/keys", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Delete("/{id}", h.Revoke)
	})
}

// Create handles POST /v1/admin/keys.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	var req CreateAPIKeyRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	key, secret, err := h.keys.IssueKey(r.Context(), req.Name, actor.ID, req.TestMode)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "api key issued",
		"key_id", key.ID,
		"name", key.Name,
		"created_by", actor.ID,
	)
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: CreateAPIKeyResponse{
		Key:    *key,
		Secret: secret,
	}})
}

// List handles GET /v1/admin/keys. Revoked keys are included for audit.
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.ListKeys(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if keys == nil {
		keys = []types.APIKey{}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: keys})
}

// Revoke handles DELETE /v1/admin/keys/{id}: a soft revocation that keeps
// the record for history.
func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "key ID is required", nil))
		return
	}

	if err := h.keys.RevokeKey(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
