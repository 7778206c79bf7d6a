package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"huddle/internal/core"
	"huddle/internal/db"
	"huddle/internal/types"
)

// --- Service Interfaces ---

// MeetingRepo mirrors the concrete db.MeetingRepository methods used by this
// handler.
type MeetingRepo interface {
	Create(ctx context.Context, m *types.Meeting) error
	GetByID(ctx context.Context, id string) (*types.Meeting, error)
	ListByOwner(ctx context.Context, ownerID string, params db.ListMeetingsParams) ([]*types.Meeting, error)
	Update(ctx context.Context, id, ownerID, title, description string, scheduledAt time.Time) error
	SetStatus(ctx context.Context, id, ownerID string, status types.MeetingStatus, endedAt *time.Time) error
}

// QualityRepo records post-call quality samples.
type QualityRepo interface {
	Create(ctx context.Context, s *types.QualitySample) error
}

// MeetingVideoService is the slice of the video provider the meetings
// surface needs: call registration, per-user tokens, and recordings.
type MeetingVideoService interface {
	MintUserToken(userID string) (string, error)
	CreateCall(ctx context.Context, callID, createdBy string) error
	ListRecordings(ctx context.Context, callID string) ([]types.Recording, error)
}

// FeatureChecker gates plan-restricted capabilities. Mirrors
// billing.Evaluator.CheckFeature.
type FeatureChecker interface {
	CheckFeature(ctx context.Context, user types.UserEntitlement, feature types.Feature) types.Decision
}

// MeetingIdentityReader fetches the entitlement backing feature checks.
type MeetingIdentityReader interface {
	GetUser(ctx context.Context, userID string) (types.DirectoryUser, error)
}

// --- Request Models ---

// CreateMeetingRequest is the body for POST /v1/meetings. An absent
// scheduled_at creates an instant meeting starting now.
type CreateMeetingRequest struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description,omitempty" validate:"max=2000"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// UpdateMeetingRequest is the body for PATCH /v1/meetings/{id}. Pointer
// fields allow partial updates.
type UpdateMeetingRequest struct {
	Title       *string    `json:"title,omitempty" validate:"omitempty,max=200"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=2000"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// QualitySampleRequest is the body for POST /v1/meetings/{id}/quality.
type QualitySampleRequest struct {
	Score   int    `json:"score" validate:"required,min=1,max=5"`
	Comment string `json:"comment,omitempty" validate:"max=1000"`
}

// VideoTokenResponse carries the provider token the browser SDK joins with.
type VideoTokenResponse struct {
	Token string `json:"token"`
}

// --- Handler ---

// MeetingsHandler manages meeting metadata CRUD, the video token endpoint,
// and the recordings listing. The meeting row is scheduling metadata only;
// the live call lives with the video provider under the same ID.
type MeetingsHandler struct {
	meetings  MeetingRepo
	quality   QualityRepo
	video     MeetingVideoService
	features  FeatureChecker
	identity  MeetingIdentityReader
	validator *core.Validator
	logger    *slog.Logger
}

// NewMeetingsHandler creates a MeetingsHandler.
func NewMeetingsHandler(
	meetings MeetingRepo,
	quality QualityRepo,
	video MeetingVideoService,
	features FeatureChecker,
	identity MeetingIdentityReader,
	v *core.Validator,
	l *slog.Logger,
) *MeetingsHandler {
	if l == nil {
		l = slog.Default()
	}
	return &MeetingsHandler{
		meetings:  meetings,
		quality:   quality,
		video:     video,
		features:  features,
		identity:  identity,
		validator: v,
		logger:    l,
	}
}

// RegisterRoutes mounts the meeting routes on the provided chi.Router.
func (h *MeetingsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/meetings", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/upcoming", h.ListUpcoming)
		r.Get("/ended", h.ListEnded)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/", h.Update)
			r.Delete("/", h.Cancel)
			r.Post("/end", h.End)
			r.Get("/recordings", h.ListRecordings)
			r.Post("/quality", h.SubmitQuality)
		})
	})

	r.Get("/video/token", h.VideoToken)
}

// Create handles POST /v1/meetings. The provider call is registered as a
// soft dependency: a registration failure is logged but does not lose the
// meeting record, since the provider creates calls lazily on first join.
func (h *MeetingsHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	var req CreateMeetingRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	now := time.Now().UTC()
	scheduledAt := now
	if req.ScheduledAt != nil {
		scheduledAt = req.ScheduledAt.UTC()
	}

	m := &types.Meeting{
		ID:          uuid.NewString(),
		OwnerID:     actor.ID,
		Title:       req.Title,
		Description: req.Description,
		ScheduledAt: scheduledAt,
		Status:      types.MeetingScheduled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.meetings.Create(r.Context(), m); err != nil {
		core.Error(w, r, err)
		return
	}

	if h.video != nil {
		if err := h.video.CreateCall(r.Context(), m.ID, actor.ID); err != nil {
			h.logger.WarnContext(r.Context(), "provider call registration failed",
				"meeting_id", m.ID,
				"error", err,
			)
		}
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: m})
}

// Get handles GET /v1/meetings/{id}. Non-owners may read meeting metadata;
// joining is what entitlement checks gate.
func (h *MeetingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "meeting ID is required", nil))
		return
	}

	m, err := h.meetings.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: m})
}

// List handles GET /v1/meetings for the authenticated owner.
func (h *MeetingsHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, db.ListMeetingsParams{})
}

// ListUpcoming handles GET /v1/meetings/upcoming.
func (h *MeetingsHandler) ListUpcoming(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, db.ListMeetingsParams{UpcomingOnly: true})
}

// ListEnded handles GET /v1/meetings/ended.
func (h *MeetingsHandler) ListEnded(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, db.ListMeetingsParams{EndedOnly: true})
}

func (h *MeetingsHandler) list(w http.ResponseWriter, r *http.Request, params db.ListMeetingsParams) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 || parsed > 100 {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationMissingField,
				"limit must be a number between 1 and 100",
				nil,
			))
			return
		}
		limit = parsed
	}
	params.Limit = limit
	params.Cursor = r.URL.Query().Get("cursor")

	meetings, err := h.meetings.ListByOwner(r.Context(), actor.ID, params)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	// The repo returns limit+1 rows when more pages exist.
	pageInfo := types.PageInfo{}
	if len(meetings) > limit {
		meetings = meetings[:limit]
		pageInfo.HasMore = true
		pageInfo.NextCursor = meetings[len(meetings)-1].ScheduledAt.Format(time.RFC3339Nano)
	}
	if meetings == nil {
		meetings = []*types.Meeting{}
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: meetings,
		Meta: &types.ResponseMeta{Pagination: &pageInfo},
	})
}

// Update handles PATCH /v1/meetings/{id}, scoped to the owner and to
// still-scheduled meetings.
func (h *MeetingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "meeting ID is required", nil))
		return
	}

	var req UpdateMeetingRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	m, err := h.meetings.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	title := m.Title
	if req.Title != nil {
		title = *req.Title
	}
	description := m.Description
	if req.Description != nil {
		description = *req.Description
	}
	scheduledAt := m.ScheduledAt
	if req.ScheduledAt != nil {
		scheduledAt = req.ScheduledAt.UTC()
	}

	if err := h.meetings.Update(r.Context(), id, actor.ID, title, description, scheduledAt); err != nil {
		core.Error(w, r, err)
		return
	}

	m.Title = title
	m.Description = description
	m.ScheduledAt = scheduledAt
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: m})
}

// Cancel handles DELETE /v1/meetings/{id}: a soft cancel, not a row delete,
// so history and quality samples survive.
func (h *MeetingsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "meeting ID is required", nil))
		return
	}

	if err := h.meetings.SetStatus(r.Context(), id, actor.ID, types.MeetingCanceled, nil); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// End handles POST /v1/meetings/{id}/end, recording the end timestamp.
func (h *MeetingsHandler) End(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "meeting ID is required", nil))
		return
	}

	endedAt := time.Now().UTC()
	if err := h.meetings.SetStatus(r.Context(), id, actor.ID, types.MeetingEnded, &endedAt); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]any{
		"id":       id,
		"status":   types.MeetingEnded,
		"ended_at": endedAt,
	}})
}

// ListRecordings handles GET /v1/meetings/{id}/recordings. Recordings are a
// plan-gated feature; the owner's entitlement decides access.
func (h *MeetingsHandler) ListRecordings(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "meeting ID is required", nil))
		return
	}

	if _, err := h.meetings.GetByID(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}

	user, err := h.identity.GetUser(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	decision := h.features.CheckFeature(r.Context(), user.Entitlement, types.FeatureRecordings)
	if !decision.Allowed {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeEntitlementUpgradeRequired,
			"recordings are not available on the current plan",
			nil,
		))
		return
	}

	recordings, err := h.video.ListRecordings(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if recordings == nil {
		recordings = []types.Recording{}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: recordings})
}

// SubmitQuality handles POST /v1/meetings/{id}/quality. Repeat submissions
// by the same user replace the earlier score.
func (h *MeetingsHandler) SubmitQuality(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "meeting ID is required", nil))
		return
	}

	var req QualitySampleRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidScore,
			"score must be between 1 and 5",
			err,
		))
		return
	}

	if _, err := h.meetings.GetByID(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}

	sample := &types.QualitySample{
		ID:        uuid.NewString(),
		MeetingID: id,
		UserID:    actor.ID,
		Score:     req.Score,
		Comment:   req.Comment,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.quality.Create(r.Context(), sample); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: sample})
}

// VideoToken handles GET /v1/video/token, minting a provider token for the
// authenticated actor.
func (h *MeetingsHandler) VideoToken(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	token, err := h.video.MintUserToken(actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: VideoTokenResponse{Token: token}})
}
