package types

import (
	"time"
)

// PlanLimits defines the ceilings a plan grants. The trial fields are only
// meaningful on the pro entry; they are zero-valued elsewhere.
type PlanLimits struct {
	MaxDurationMinutes int  `json:"max_duration_minutes" validate:"gte=0"`
	MaxParticipants    int  `json:"max_participants" validate:"gte=1"`
	RecordingsEnabled  bool `json:"recordings_enabled"`
	StreamingEnabled   bool `json:"streaming_enabled"`

	// UnlimitedOneOnOne exempts calls with at most two participants from the
	// duration cap. It does not affect the participant cap, which only fires
	// for group calls.
	UnlimitedOneOnOne bool `json:"unlimited_one_on_one"`

	// Trial settings (pro only). TrialChargeAmount is in minor currency units.
	TrialDurationDays  int   `json:"trial_duration_days,omitempty" validate:"gte=0"`
	TrialChargeEnabled bool  `json:"trial_charge_enabled,omitempty"`
	TrialChargeAmount  int64 `json:"trial_charge_amount,omitempty" validate:"gte=0"`
}

// PlanCatalog is the complete set of PlanLimits for all three tiers. It is
// always fully populated: a stored override is merged over defaults per plan
// at read time, and the whole catalog is replaced on write, never patched.
type PlanCatalog struct {
	Free     PlanLimits `json:"free" validate:"required"`
	Pro      PlanLimits `json:"pro" validate:"required"`
	Business PlanLimits `json:"business" validate:"required"`
}

// ForPlan returns the limits for the given tier. Unknown tiers resolve to the
// free entry so a corrupt stored plan never grants elevated limits.
func (c PlanCatalog) ForPlan(p PlanTier) PlanLimits {
	switch p {
	case PlanPro:
		return c.Pro
	case PlanBusiness:
		return c.Business
	default:
		return c.Free
	}
}

// TrialState is the time-boxed promotional upgrade attached to a user.
// A trial grants pro-tier limits without requiring an active subscription.
type TrialState struct {
	Plan          PlanTier  `json:"plan"`
	Active        bool      `json:"active"`
	EndsAt        time.Time `json:"ends_at"`
	ChargeEnabled bool      `json:"charge_enabled"`
	ChargeAmount  int64     `json:"charge_amount"`
	FeePaid       bool      `json:"fee_paid"`
	FeeReference  string    `json:"fee_reference,omitempty"`
}

// InForce reports whether the trial is currently granting limits. A trial
// whose EndsAt has passed is logically expired even if no sweep has cleared
// it; callers never need a cleanup pass to observe expiry.
func (t *TrialState) InForce(now time.Time) bool {
	return t != nil && t.Active && t.EndsAt.After(now)
}

// UserEntitlement is the strongly-typed projection of a user's billing state
// out of the identity provider's metadata bag. It is validated at the boundary
// where it is read; it is never stored in this shape.
type UserEntitlement struct {
	UserID           string          `json:"user_id"`
	Plan             PlanTier        `json:"plan"`
	Active           bool            `json:"active"`
	Trial            *TrialState     `json:"trial,omitempty"`
	Provider         PaymentProvider `json:"provider,omitempty"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	ActivatedAt      *time.Time      `json:"activated_at,omitempty"`
	PendingPlan      PlanTier        `json:"pending_plan,omitempty"`
}

// Effective resolves the plan and active flag the evaluator should use,
// preferring an in-force trial (treated as an active pro subscription) over
// the stored plan/active pair.
func (e UserEntitlement) Effective(now time.Time) (PlanTier, bool) {
	if e.Trial.InForce(now) {
		return e.Trial.Plan, true
	}
	plan := e.Plan
	if !ValidPlan(plan) {
		plan = PlanFree
	}
	return plan, e.Active
}

// CallSnapshot is the read-only view of a live call supplied by the video
// transport provider. The core only ever reads the participant count.
type CallSnapshot struct {
	CallID           string `json:"call_id"`
	ParticipantCount int    `json:"participant_count"`
}

// IsGroup reports whether the call is a group call. Calls with more than two
// participants trigger duration and participant caps unless exempted.
func (c CallSnapshot) IsGroup() bool {
	return c.ParticipantCount > 2
}

// DecisionReason is the user-facing denial reason from the evaluator.
type DecisionReason string

const (
	ReasonParticipantLimitReached DecisionReason = DecisionReason(ErrCodeEntitlementParticipantLimit)
	ReasonMeetingTimeLimitReached DecisionReason = DecisionReason(ErrCodeEntitlementTimeLimit)
	ReasonUpgradeRequired         DecisionReason = DecisionReason(ErrCodeEntitlementUpgradeRequired)
)

// Decision is the result of an entitlement check. Denials are values, not
// errors; callers branch on Allowed and show the reason to the user.
type Decision struct {
	Allowed bool           `json:"allowed"`
	Reason  DecisionReason `json:"reason,omitempty"`
}

// Allow returns a permitting decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny returns a denying decision with the given reason.
func Deny(reason DecisionReason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Meeting is a scheduled or instant meeting record. The row holds metadata
// only; the live call itself lives with the video provider under the same ID.
type Meeting struct {
	ID          string        `json:"id"`
	OwnerID     string        `json:"owner_id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	ScheduledAt time.Time     `json:"scheduled_at"`
	Status      MeetingStatus `json:"status"`
	EndedAt     *time.Time    `json:"ended_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// QualitySample is a single post-call quality rating submitted by a
// participant. Score is on a 1-5 scale.
type QualitySample struct {
	ID        string    `json:"id"`
	MeetingID string    `json:"meeting_id"`
	UserID    string    `json:"user_id"`
	Score     int       `json:"score"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// PaymentEvent is the normalized "payment succeeded" notification consumed by
// the activation handler. Both the synchronous verify path and the signed
// webhook path produce the same shape; Reference is the idempotency key.
type PaymentEvent struct {
	Provider  PaymentProvider `json:"provider"`
	Reference string          `json:"reference"`
	UserID    string          `json:"user_id"`
	Plan      PlanTier        `json:"plan"`
	Kind      PaymentKind     `json:"kind"`
	Amount    int64           `json:"amount"`
	Currency  string          `json:"currency"`
	PaidAt    time.Time       `json:"paid_at"`
}

// CheckoutIntent is the result of initializing a gateway checkout.
type CheckoutIntent struct {
	CheckoutURL string `json:"checkout_url"`
	Reference   string `json:"reference"`
	AccessCode  string `json:"access_code,omitempty"`
}

// AdminStats is the aggregated dashboard snapshot for administrators.
type AdminStats struct {
	TotalUsers          int     `json:"total_users"`
	ActiveSubscriptions int     `json:"active_subscriptions"`
	ActiveTrials        int     `json:"active_trials"`
	TotalMeetings       int     `json:"total_meetings"`
	UpcomingMeetings    int     `json:"upcoming_meetings"`
	AverageQualityScore float64 `json:"average_quality_score"`
}

// DirectoryUser is the admin-facing projection of an identity-provider user
// combined with their entitlement state.
type DirectoryUser struct {
	ID          string          `json:"id"`
	Email       string          `json:"email"`
	Name        string          `json:"name,omitempty"`
	Role        UserRole        `json:"role"`
	CreatedAt   time.Time       `json:"created_at"`
	Entitlement UserEntitlement `json:"entitlement"`
}

// Recording is a stored call recording reported by the video transport
// provider. Recordings live entirely with the provider; this is a read-only
// projection.
type Recording struct {
	Filename  string    `json:"filename"`
	URL       string    `json:"url"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// APIKey is a server-to-server credential for entitlement callers. Only the
// bcrypt hash of the secret is stored.
type APIKey struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	SecretHash string     `json:"-"`
	CreatedBy  string     `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}
