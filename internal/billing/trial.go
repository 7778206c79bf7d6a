package billing

import (
	"context"
	"time"

	"huddle/internal/types"
)

// IdentityStore is the minimal slice of the identity client the billing
// domain needs: read a user (with their projected entitlement) and write the
// entitlement back. Writers perform unconditional overwrites of the fields
// they own, so last-writer-wins is acceptable.
type IdentityStore interface {
	GetUser(ctx context.Context, userID string) (types.DirectoryUser, error)
	PutEntitlement(ctx context.Context, userID string, ent types.UserEntitlement) error
}

// CheckoutParams describes a gateway checkout to initialize.
type CheckoutParams struct {
	UserID string
	Email  string
	Plan   types.PlanTier
	Kind   types.PaymentKind
	// Amount in minor currency units.
	Amount int64
}

// CheckoutGateway initializes a hosted payment page with the given metadata.
// The metadata round-trips through the gateway and comes back on the success
// event, which is how the activation handler routes it.
type CheckoutGateway interface {
	InitializeCheckout(ctx context.Context, params CheckoutParams) (types.CheckoutIntent, error)
}

// EventPublisher emits entitlement lifecycle events for downstream consumers.
// Publishing is best-effort: a publish failure never fails the operation that
// triggered it.
type EventPublisher interface {
	Publish(ctx context.Context, event types.LifecycleEvent, userID string, payload map[string]any) error
}

// TrialManager owns the per-user trial state machine:
// NoTrial -> TrialActive -> {TrialExpired, TrialConverted}.
type TrialManager struct {
	identity  IdentityStore
	catalog   CatalogSource
	gateway   CheckoutGateway
	publisher EventPublisher
	clock     types.Clock
	logger    types.Logger
}

// NewTrialManager creates a TrialManager. The gateway may be nil when trial
// fee charging is not configured; ChargeTrialFee then always fails.
func NewTrialManager(
	identity IdentityStore,
	catalog CatalogSource,
	gateway CheckoutGateway,
	publisher EventPublisher,
	clock types.Clock,
	logger types.Logger,
) *TrialManager {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &TrialManager{
		identity:  identity,
		catalog:   catalog,
		gateway:   gateway,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
	}
}

// StartTrial begins (or restarts) a pro trial for the user. Restarting an
// already-active trial silently succeeds and overwrites EndsAt with
// now+duration; durations never stack. The trial alone does not touch the
// stored plan/active pair -- the evaluator prefers an in-force trial at
// resolution time instead.
func (m *TrialManager) StartTrial(ctx context.Context, userID string) (types.UserEntitlement, error) {
	user, err := m.identity.GetUser(ctx, userID)
	if err != nil {
		return types.UserEntitlement{}, err
	}

	pro := m.catalog.Resolve(ctx).Pro
	now := m.clock.Now()

	ent := user.Entitlement
	ent.Trial = &types.TrialState{
		Plan:          types.PlanPro,
		Active:        true,
		EndsAt:        now.Add(time.Duration(pro.TrialDurationDays) * 24 * time.Hour),
		ChargeEnabled: pro.TrialChargeEnabled,
		ChargeAmount:  pro.TrialChargeAmount,
		FeePaid:       false,
	}

	if err := m.identity.PutEntitlement(ctx, userID, ent); err != nil {
		return types.UserEntitlement{}, err
	}

	m.publish(ctx, types.EventTrialStarted, userID, map[string]any{
		"ends_at": ent.Trial.EndsAt,
	})
	m.logger.Info("trial started",
		"user_id", userID,
		"ends_at", ent.Trial.EndsAt,
		"trial_days", pro.TrialDurationDays,
	)
	return ent, nil
}

// EndTrial unconditionally marks the user's trial inactive. It never revokes
// an already-activated paid plan, and ending a user with no trial is a no-op.
func (m *TrialManager) EndTrial(ctx context.Context, userID string) (types.UserEntitlement, error) {
	user, err := m.identity.GetUser(ctx, userID)
	if err != nil {
		return types.UserEntitlement{}, err
	}

	ent := user.Entitlement
	if ent.Trial == nil {
		return ent, nil
	}
	ent.Trial.Active = false

	if err := m.identity.PutEntitlement(ctx, userID, ent); err != nil {
		return types.UserEntitlement{}, err
	}

	m.publish(ctx, types.EventTrialEnded, userID, nil)
	m.logger.Info("trial ended", "user_id", userID)
	return ent, nil
}

// ChargeTrialFee initializes a gateway checkout for the configured trial fee.
// The checkout metadata is tagged kind=trial_fee so the activation handler
// marks the fee paid instead of promoting plan/active. Fails with
// ErrCodeTrialChargeDisabled when charging is off or the amount is zero.
func (m *TrialManager) ChargeTrialFee(ctx context.Context, userID string) (types.CheckoutIntent, error) {
	pro := m.catalog.Resolve(ctx).Pro
	if !pro.TrialChargeEnabled || pro.TrialChargeAmount <= 0 {
		return types.CheckoutIntent{}, types.NewAppError(
			types.ErrCodeTrialChargeDisabled,
			"trial fee charging is disabled or the amount is zero",
			nil,
		)
	}
	if m.gateway == nil {
		return types.CheckoutIntent{}, types.NewAppError(
			types.ErrCodeConfigMissingSetting,
			"no payment gateway configured for trial fee charges",
			nil,
		)
	}

	user, err := m.identity.GetUser(ctx, userID)
	if err != nil {
		return types.CheckoutIntent{}, err
	}

	intent, err := m.gateway.InitializeCheckout(ctx, CheckoutParams{
		UserID: userID,
		Email:  user.Email,
		Plan:   types.PlanPro,
		Kind:   types.PaymentTrialFee,
		Amount: pro.TrialChargeAmount,
	})
	if err != nil {
		return types.CheckoutIntent{}, err
	}

	m.logger.Info("trial fee checkout initialized",
		"user_id", userID,
		"reference", intent.Reference,
		"amount", pro.TrialChargeAmount,
	)
	return intent, nil
}

// publish emits a lifecycle event, logging and swallowing any failure.
func (m *TrialManager) publish(ctx context.Context, event types.LifecycleEvent, userID string, payload map[string]any) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(ctx, event, userID, payload); err != nil {
		m.logger.Warn("lifecycle event publish failed",
			"event", string(event),
			"user_id", userID,
			"error", err.Error(),
		)
	}
}
