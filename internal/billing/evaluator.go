package billing

import (
	"context"
	"time"

	"huddle/internal/types"
)

// CatalogSource supplies the effective plan catalog to evaluation paths.
// Implementations must not fail: when the override store is unreachable they
// serve the default catalog.
type CatalogSource interface {
	Resolve(ctx context.Context) types.PlanCatalog
}

// Evaluator decides, per user and per call, whether an action is permitted.
// It is read-only with respect to entitlement state: denials are Decision
// values, never errors, and concurrent checks for the same user need no
// mutual exclusion.
type Evaluator struct {
	catalog CatalogSource
	clock   types.Clock
}

// NewEvaluator creates an Evaluator over the given catalog source.
func NewEvaluator(catalog CatalogSource, clock types.Clock) *Evaluator {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Evaluator{catalog: catalog, clock: clock}
}

// resolve returns the effective plan, active flag, and limits for the user.
// An in-force trial takes precedence over the stored plan/active pair.
func (e *Evaluator) resolve(ctx context.Context, user types.UserEntitlement) (types.PlanTier, bool, types.PlanLimits) {
	plan, active := user.Effective(e.clock.Now())
	limits := e.catalog.Resolve(ctx).ForPlan(plan)
	return plan, active, limits
}

// CheckAdmission decides whether one more participant may be admitted to the
// call.
//
// The participant cap only ever fires for group calls. Within a group call it
// applies when the user is unpaid (inactive or on the free tier) or the plan
// lacks UnlimitedOneOnOne. The flag is therefore partially inert here: it can
// never exempt a group call, only the non-group calls the cap already skips.
// This asymmetry is intentional product behavior; do not tighten it.
func (e *Evaluator) CheckAdmission(ctx context.Context, user types.UserEntitlement, call types.CallSnapshot) types.Decision {
	plan, active, limits := e.resolve(ctx, user)

	isGroup := call.IsGroup()
	if isGroup &&
		((!active || plan == types.PlanFree) || !limits.UnlimitedOneOnOne) &&
		call.ParticipantCount >= limits.MaxParticipants {
		return types.Deny(types.ReasonParticipantLimitReached)
	}
	return types.Allow()
}

// CheckDuration decides whether the call may continue after elapsed running
// time. Non-group calls under a plan with UnlimitedOneOnOne have no duration
// cap at all.
func (e *Evaluator) CheckDuration(ctx context.Context, user types.UserEntitlement, call types.CallSnapshot, elapsed time.Duration) types.Decision {
	_, _, limits := e.resolve(ctx, user)

	if limits.UnlimitedOneOnOne && !call.IsGroup() {
		return types.Allow()
	}
	if elapsed >= time.Duration(limits.MaxDurationMinutes)*time.Minute {
		return types.Deny(types.ReasonMeetingTimeLimitReached)
	}
	return types.Allow()
}

// CheckFeature decides whether the user may use a gated capability. Access
// requires both the plan flag and an active subscription: a lapsed paid plan
// (active=false) loses features even though the stored plan still names the
// paid tier. An in-force trial counts as active.
func (e *Evaluator) CheckFeature(ctx context.Context, user types.UserEntitlement, feature types.Feature) types.Decision {
	_, active, limits := e.resolve(ctx, user)

	var enabled bool
	switch feature {
	case types.FeatureRecordings:
		enabled = limits.RecordingsEnabled
	case types.FeatureStreaming:
		enabled = limits.StreamingEnabled
	}

	if active && enabled {
		return types.Allow()
	}
	return types.Deny(types.ReasonUpgradeRequired)
}
