package types

// PlanTier identifies the billing plan for a user. Exactly three tiers exist;
// any unrecognized value resolves to free at evaluation time.
type PlanTier string

const (
	PlanFree     PlanTier = "free"
	PlanPro      PlanTier = "pro"
	PlanBusiness PlanTier = "business"
)

// ValidPlan reports whether p names one of the three known tiers.
func ValidPlan(p PlanTier) bool {
	switch p {
	case PlanFree, PlanPro, PlanBusiness:
		return true
	}
	return false
}

// Feature identifies a gated meeting capability.
type Feature string

const (
	FeatureRecordings Feature = "recordings"
	FeatureStreaming  Feature = "streaming"
)

// UserRole defines authorization levels.
type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleMember UserRole = "member"
)

// MeetingStatus represents the lifecycle state of a meeting record.
type MeetingStatus string

const (
	MeetingScheduled MeetingStatus = "scheduled"
	MeetingEnded     MeetingStatus = "ended"
	MeetingCanceled  MeetingStatus = "canceled"
)

// PaymentProvider identifies the gateway a payment was processed through.
type PaymentProvider string

const (
	ProviderPaystack PaymentProvider = "paystack"
	ProviderStripe   PaymentProvider = "stripe"
)

// PaymentKind routes a successful payment event: an ordinary subscription
// purchase promotes plan/active, a trial fee only marks the fee as paid.
type PaymentKind string

const (
	PaymentSubscription PaymentKind = "subscription"
	PaymentTrialFee     PaymentKind = "trial_fee"
)

// LifecycleEvent identifies an entitlement lifecycle event published to the
// integration queue for downstream consumers.
type LifecycleEvent string

const (
	EventTrialStarted          LifecycleEvent = "trial.started"
	EventTrialEnded            LifecycleEvent = "trial.ended"
	EventTrialFeePaid          LifecycleEvent = "trial.fee_paid"
	EventSubscriptionActivated LifecycleEvent = "subscription.activated"
	EventPlanOverridden        LifecycleEvent = "plan.overridden"
)
