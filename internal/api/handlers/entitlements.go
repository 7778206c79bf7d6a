package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"huddle/internal/core"
	"huddle/internal/types"
)

// --- Service Interfaces ---

// EntitlementEvaluator mirrors the billing.Evaluator decision methods.
type EntitlementEvaluator interface {
	CheckAdmission(ctx context.Context, user types.UserEntitlement, call types.CallSnapshot) types.Decision
	CheckDuration(ctx context.Context, user types.UserEntitlement, call types.CallSnapshot, elapsed time.Duration) types.Decision
	CheckFeature(ctx context.Context, user types.UserEntitlement, feature types.Feature) types.Decision
}

// EntitlementIdentityReader fetches the user whose entitlement is being
// evaluated.
type EntitlementIdentityReader interface {
	GetUser(ctx context.Context, userID string) (types.DirectoryUser, error)
}

// CallReader fetches the live call snapshot from the video provider.
type CallReader interface {
	GetCall(ctx context.Context, callID string) (types.CallSnapshot, error)
}

// DecisionRecorder emits per-check allow/deny metrics. Optional.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, check string, allowed bool)
}

// --- Request Models ---

// AdmissionCheckRequest is the body for POST /v1/entitlements/admission.
// ParticipantCount is the caller-observed count; when CallID is set the live
// provider count is preferred.
type AdmissionCheckRequest struct {
	UserID           string `json:"user_id" validate:"required"`
	CallID           string `json:"call_id,omitempty"`
	ParticipantCount int    `json:"participant_count" validate:"min=0"`
}

// DurationCheckRequest is the body for POST /v1/entitlements/duration.
type DurationCheckRequest struct {
	UserID           string `json:"user_id" validate:"required"`
	CallID           string `json:"call_id,omitempty"`
	ParticipantCount int    `json:"participant_count" validate:"min=0"`
	ElapsedMS        int64  `json:"elapsed_ms" validate:"min=0"`
}

// FeatureCheckRequest is the body for POST /v1/entitlements/feature.
type FeatureCheckRequest struct {
	UserID  string `json:"user_id" validate:"required"`
	Feature string `json:"feature" validate:"required,oneof=recordings streaming"`
}

// --- Handler ---

// EntitlementsHandler exposes the three decision endpoints consumed by the
// meeting runtime. Denials are ordinary 200 responses carrying
// {allowed:false, reason}; only infrastructure failures return errors.
type EntitlementsHandler struct {
	evaluator EntitlementEvaluator
	identity  EntitlementIdentityReader
	calls     CallReader
	metrics   DecisionRecorder
	validator *core.Validator
	logger    *slog.Logger
}

// NewEntitlementsHandler creates an EntitlementsHandler. calls and metrics
// may be nil; the handler then relies on caller-supplied participant counts
// and skips metric emission.
func NewEntitlementsHandler(
	evaluator EntitlementEvaluator,
	identity EntitlementIdentityReader,
	calls CallReader,
	metrics DecisionRecorder,
	v *core.Validator,
	l *slog.Logger,
) *EntitlementsHandler {
	if l == nil {
		l = slog.Default()
	}
	return &EntitlementsHandler{
		evaluator: evaluator,
		identity:  identity,
		calls:     calls,
		metrics:   metrics,
		validator: v,
		logger:    l,
	}
}

// RegisterRoutes mounts the decision routes on the provided chi.Router.
func (h *EntitlementsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/entitlements", func(r chi.Router) {
		r.Post("/admission", h.CheckAdmission)
		r.Post("/duration", h.CheckDuration)
		r.Post("/feature", h.CheckFeature)
	})
}

// CheckAdmission handles POST /v1/entitlements/admission.
func (h *EntitlementsHandler) CheckAdmission(w http.ResponseWriter, r *http.Request) {
	var req AdmissionCheckRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	ent, err := h.lookupEntitlement(r.Context(), req.UserID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	call := h.resolveCall(r.Context(), req.CallID, req.ParticipantCount)
	decision := h.evaluator.CheckAdmission(r.Context(), ent, call)
	h.record(r.Context(), "admission", decision.Allowed)

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: decision})
}

// CheckDuration handles POST /v1/entitlements/duration.
func (h *EntitlementsHandler) CheckDuration(w http.ResponseWriter, r *http.Request) {
	var req DurationCheckRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	ent, err := h.lookupEntitlement(r.Context(), req.UserID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	call := h.resolveCall(r.Context(), req.CallID, req.ParticipantCount)
	elapsed := time.Duration(req.ElapsedMS) * time.Millisecond
	decision := h.evaluator.CheckDuration(r.Context(), ent, call, elapsed)
	h.record(r.Context(), "duration", decision.Allowed)

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: decision})
}

// CheckFeature handles POST /v1/entitlements/feature.
func (h *EntitlementsHandler) CheckFeature(w http.ResponseWriter, r *http.Request) {
	var req FeatureCheckRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	ent, err := h.lookupEntitlement(r.Context(), req.UserID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	decision := h.evaluator.CheckFeature(r.Context(), ent, types.Feature(req.Feature))
	h.record(r.Context(), "feature", decision.Allowed)

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: decision})
}

// lookupEntitlement resolves the subject user's entitlement from the identity
// directory.
func (h *EntitlementsHandler) lookupEntitlement(ctx context.Context, userID string) (types.UserEntitlement, error) {
	user, err := h.identity.GetUser(ctx, userID)
	if err != nil {
		return types.UserEntitlement{}, err
	}
	return user.Entitlement, nil
}

// resolveCall builds the call snapshot, preferring the live provider count
// over the caller-supplied one. A provider failure degrades to the supplied
// count rather than failing the decision.
func (h *EntitlementsHandler) resolveCall(ctx context.Context, callID string, fallbackCount int) types.CallSnapshot {
	call := types.CallSnapshot{CallID: callID, ParticipantCount: fallbackCount}
	if callID == "" || h.calls == nil {
		return call
	}

	live, err := h.calls.GetCall(ctx, callID)
	if err != nil {
		h.logger.WarnContext(ctx, "live call snapshot fetch failed, using caller-supplied count",
			"call_id", callID,
			"error", err,
		)
		return call
	}
	return live
}

func (h *EntitlementsHandler) record(ctx context.Context, check string, allowed bool) {
	if h.metrics == nil {
		return
	}
	h.metrics.RecordDecision(ctx, check, allowed)
}
