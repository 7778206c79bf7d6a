package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"huddle/internal/core"
	"huddle/internal/types"
)

// --- Service Interfaces ---

// AdminDirectory is the slice of the identity directory the admin surface
// needs.
type AdminDirectory interface {
	GetUser(ctx context.Context, userID string) (types.DirectoryUser, error)
	ListUsers(ctx context.Context, page, perPage int) ([]types.DirectoryUser, error)
	CreateUser(ctx context.Context, email, password string, role types.UserRole) (types.DirectoryUser, error)
	SetRole(ctx context.Context, userID string, role types.UserRole) error
	PutEntitlement(ctx context.Context, userID string, ent types.UserEntitlement) error
}

// TrialLifecycle mirrors billing.TrialManager's start/end operations.
type TrialLifecycle interface {
	StartTrial(ctx context.Context, userID string) (types.UserEntitlement, error)
	EndTrial(ctx context.Context, userID string) (types.UserEntitlement, error)
}

// MeetingCounter provides the meeting aggregates for the stats dashboard.
type MeetingCounter interface {
	CountAll(ctx context.Context) (int, error)
	CountUpcoming(ctx context.Context) (int, error)
}

// QualityAverager provides the mean quality score for the stats dashboard.
type QualityAverager interface {
	AverageScore(ctx context.Context) (float64, error)
}

// AdminEventPublisher emits lifecycle events for admin actions. Optional.
type AdminEventPublisher interface {
	Publish(ctx context.Context, event types.LifecycleEvent, userID string, payload map[string]any) error
}

// --- Request Models ---

// PlanOverrideRequest is the body for PUT /v1/admin/users/{id}/plan. The
// write replaces the stored plan/active pair; trial state is untouched.
type PlanOverrideRequest struct {
	Plan   string `json:"plan" validate:"required,oneof=free pro business"`
	Active bool   `json:"active"`
}

// SeedRequest is the body for POST /v1/admin/seed. Either a new admin is
// created from email/password, or an existing user is promoted by ID.
type SeedRequest struct {
	Email    string `json:"email,omitempty" validate:"required_without=UserID,omitempty,email"`
	Password string `json:"password,omitempty" validate:"required_with=Email,omitempty,min=12"`
	UserID   string `json:"user_id,omitempty" validate:"required_without=Email"`
}

// statsUserPageSize is the directory page size used when aggregating stats.
// statsUserPageCap bounds the scan so a runaway directory cannot stall the
// dashboard.
const (
	statsUserPageSize = 200
	statsUserPageCap  = 50
)

// --- Handler ---

// AdminHandler owns the admin surface: the stats dashboard, the user
// directory, plan overrides, trial lifecycle control, and first-admin
// bootstrap. All routes are mounted behind the admin-role middleware.
type AdminHandler struct {
	directory AdminDirectory
	trials    TrialLifecycle
	meetings  MeetingCounter
	quality   QualityAverager
	publisher AdminEventPublisher
	validator *core.Validator
	logger    *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	directory AdminDirectory,
	trials TrialLifecycle,
	meetings MeetingCounter,
	quality QualityAverager,
	publisher AdminEventPublisher,
	v *core.Validator,
	l *slog.Logger,
) *AdminHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AdminHandler{
		directory: directory,
		trials:    trials,
		meetings:  meetings,
		quality:   quality,
		publisher: publisher,
		validator: v,
		logger:    l,
	}
}

// RegisterAdminRoutes mounts the admin routes. The caller wraps the group
// with the admin-role middleware.
func (h *AdminHandler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/stats", h.Stats)
	r.Get("/users", h.ListUsers)
	r.Post("/seed", h.Seed)

	r.Route("/users/{id}", func(r chi.Router) {
		r.Put("/plan", h.OverridePlan)
		r.Post("/trial", h.StartTrial)
		r.Delete("/trial", h.EndTrial)
	})
}

// Stats handles GET /v1/admin/stats. The three aggregation legs (user
// directory scan, meeting counts, quality average) run concurrently; any
// failing leg fails the dashboard.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var stats types.AdminStats

	g, ctx := errgroup.WithContext(r.Context())

	g.Go(func() error {
		total, subs, trials, err := h.scanUsers(ctx)
		if err != nil {
			return err
		}
		stats.TotalUsers = total
		stats.ActiveSubscriptions = subs
		stats.ActiveTrials = trials
		return nil
	})
	g.Go(func() error {
		count, err := h.meetings.CountAll(ctx)
		if err != nil {
			return err
		}
		stats.TotalMeetings = count
		return nil
	})
	g.Go(func() error {
		count, err := h.meetings.CountUpcoming(ctx)
		if err != nil {
			return err
		}
		stats.UpcomingMeetings = count
		return nil
	})
	g.Go(func() error {
		avg, err := h.quality.AverageScore(ctx)
		if err != nil {
			return err
		}
		stats.AverageQualityScore = avg
		return nil
	})

	if err := g.Wait(); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: stats})
}

// scanUsers pages through the directory, counting active paid subscriptions
// and in-force trials. Trial state is evaluated at read time, so an expired
// trial never inflates the count even before the sweeper has run.
func (h *AdminHandler) scanUsers(ctx context.Context) (total, subscriptions, trials int, err error) {
	now := types.RealClock{}.Now()
	for page := 1; page <= statsUserPageCap; page++ {
		users, err := h.directory.ListUsers(ctx, page, statsUserPageSize)
		if err != nil {
			return 0, 0, 0, err
		}
		for _, u := range users {
			total++
			if u.Entitlement.Trial.InForce(now) {
				trials++
			} else if u.Entitlement.Active && u.Entitlement.Plan != types.PlanFree {
				subscriptions++
			}
		}
		if len(users) < statsUserPageSize {
			break
		}
	}
	return total, subscriptions, trials, nil
}

// ListUsers handles GET /v1/admin/users with page-based pagination.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page := 1
	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		parsed, err := strconv.Atoi(pageStr)
		if err != nil || parsed < 1 {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationMissingField,
				"page must be a positive number",
				nil,
			))
			return
		}
		page = parsed
	}

	perPage := 50
	if perPageStr := r.URL.Query().Get("per_page"); perPageStr != "" {
		parsed, err := strconv.Atoi(perPageStr)
		if err != nil || parsed < 1 || parsed > 200 {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationMissingField,
				"per_page must be a number between 1 and 200",
				nil,
			))
			return
		}
		perPage = parsed
	}

	users, err := h.directory.ListUsers(r.Context(), page, perPage)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if users == nil {
		users = []types.DirectoryUser{}
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: users,
		Meta: &types.ResponseMeta{Pagination: &types.PageInfo{HasMore: len(users) == perPage}},
	})
}

// OverridePlan handles PUT /v1/admin/users/{id}/plan. The admin sets any
// plan/active combination directly; the override is a support tool, so it
// bypasses payment entirely.
func (h *AdminHandler) OverridePlan(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	userID := chi.URLParam(r, "id")
	if userID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "user ID is required", nil))
		return
	}

	var req PlanOverrideRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	user, err := h.directory.GetUser(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	ent := user.Entitlement
	ent.Plan = types.PlanTier(req.Plan)
	ent.Active = req.Active

	if err := h.directory.PutEntitlement(r.Context(), userID, ent); err != nil {
		core.Error(w, r, err)
		return
	}

	h.publish(r.Context(), types.EventPlanOverridden, userID, map[string]any{
		"plan":     req.Plan,
		"active":   req.Active,
		"actor_id": actor.ID,
	})
	h.logger.InfoContext(r.Context(), "plan overridden",
		"user_id", userID,
		"plan", req.Plan,
		"active", req.Active,
		"actor_id", actor.ID,
	)

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: ent})
}

// StartTrial handles POST /v1/admin/users/{id}/trial. Restarting an active
// trial overwrites its end date; durations never stack.
func (h *AdminHandler) StartTrial(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "user ID is required", nil))
		return
	}

	ent, err := h.trials.StartTrial(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: ent})
}

// EndTrial handles DELETE /v1/admin/users/{id}/trial.
func (h *AdminHandler) EndTrial(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "user ID is required", nil))
		return
	}

	ent, err := h.trials.EndTrial(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: ent})
}

// Seed handles POST /v1/admin/seed: bootstrap the first human admin, either
// by creating a fresh account or promoting an existing user. Reached with an
// API key before any admin user exists.
func (h *AdminHandler) Seed(w http.ResponseWriter, r *http.Request) {
	var req SeedRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if req.UserID != "" {
		if err := h.directory.SetRole(r.Context(), req.UserID, types.RoleAdmin); err != nil {
			core.Error(w, r, err)
			return
		}
		h.logger.InfoContext(r.Context(), "user promoted to admin", "user_id", req.UserID)
		core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]any{
			"user_id": req.UserID,
			"role":    types.RoleAdmin,
		}})
		return
	}

	user, err := h.directory.CreateUser(r.Context(), req.Email, req.Password, types.RoleAdmin)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "admin user created", "user_id", user.ID, "email", user.Email)
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: user})
}

func (h *AdminHandler) publish(ctx context.Context, event types.LifecycleEvent, userID string, payload map[string]any) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.Publish(ctx, event, userID, payload); err != nil {
		h.logger.WarnContext(ctx, "lifecycle event publish failed",
			"event", string(event),
			"user_id", userID,
			"error", err,
		)
	}
}
