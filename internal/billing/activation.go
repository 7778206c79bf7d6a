package billing

import (
	"context"

	"huddle/internal/types"
)

// PaymentLedger records processed payment references. Record returns false
// when the reference was already recorded, which lets the handler skip
// duplicate deliveries without re-reading the identity store.
type PaymentLedger interface {
	Record(ctx context.Context, ev types.PaymentEvent) (bool, error)
}

// ActivationHandler reacts to "payment succeeded" events. Both the
// synchronous verify path and the asynchronous signed webhook call it for the
// same purchase, so processing is idempotent keyed by the payment reference:
// the ledger short-circuits known references, and the entitlement write sets
// the same fields to the same values on a replay either way.
type ActivationHandler struct {
	identity  IdentityStore
	ledger    PaymentLedger
	publisher EventPublisher
	clock     types.Clock
	logger    types.Logger
}

// NewActivationHandler creates an ActivationHandler. The ledger may be nil;
// idempotence then rests solely on the overwrite-same-values property.
func NewActivationHandler(
	identity IdentityStore,
	ledger PaymentLedger,
	publisher EventPublisher,
	clock types.Clock,
	logger types.Logger,
) *ActivationHandler {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &ActivationHandler{
		identity:  identity,
		ledger:    ledger,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
	}
}

// OnPaymentSucceeded applies a successful payment to the user's entitlement.
// Trial fee payments only mark the fee paid; ordinary subscription payments
// set active=true and promote the plan, flooring free to pro since a
// subscription event never legitimately downgrades.
func (h *ActivationHandler) OnPaymentSucceeded(ctx context.Context, ev types.PaymentEvent) error {
	if ev.UserID == "" || ev.Reference == "" {
		return types.NewAppError(
			types.ErrCodeValidationMissingField,
			"payment event is missing user_id or reference",
			nil,
		)
	}

	if h.ledger != nil {
		fresh, err := h.ledger.Record(ctx, ev)
		if err != nil {
			// The ledger is an optimization; the entitlement write below is
			// idempotent on its own. Log and continue.
			h.logger.Warn("payment ledger write failed",
				"reference", ev.Reference,
				"error", err.Error(),
			)
		} else if !fresh {
			h.logger.Info("duplicate payment event skipped",
				"reference", ev.Reference,
				"provider", string(ev.Provider),
			)
			return nil
		}
	}

	user, err := h.identity.GetUser(ctx, ev.UserID)
	if err != nil {
		return err
	}
	ent := user.Entitlement

	switch ev.Kind {
	case types.PaymentTrialFee:
		if ent.Trial == nil {
			// Fee settled before the trial record was written; keep the
			// payment facts on a dormant trial entry rather than dropping them.
			ent.Trial = &types.TrialState{Plan: types.PlanPro}
		}
		ent.Trial.FeePaid = true
		ent.Trial.FeeReference = ev.Reference

	default:
		plan := ev.Plan
		if !types.ValidPlan(plan) || plan == types.PlanFree {
			plan = types.PlanPro
		}
		ent.Plan = plan
		ent.Active = true
		ent.Provider = ev.Provider
		ent.PaymentReference = ev.Reference
		ent.PendingPlan = ""
		paidAt := ev.PaidAt
		if paidAt.IsZero() {
			paidAt = h.clock.Now()
		}
		ent.ActivatedAt = &paidAt
	}

	if err := h.identity.PutEntitlement(ctx, ev.UserID, ent); err != nil {
		return err
	}

	event := types.EventSubscriptionActivated
	if ev.Kind == types.PaymentTrialFee {
		event = types.EventTrialFeePaid
	}
	h.publish(ctx, event, ev.UserID, map[string]any{
		"reference": ev.Reference,
		"provider":  string(ev.Provider),
		"plan":      string(ent.Plan),
	})

	h.logger.Info("payment applied",
		"user_id", ev.UserID,
		"reference", ev.Reference,
		"provider", string(ev.Provider),
		"kind", string(ev.Kind),
		"plan", string(ent.Plan),
	)
	return nil
}

func (h *ActivationHandler) publish(ctx context.Context, event types.LifecycleEvent, userID string, payload map[string]any) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.Publish(ctx, event, userID, payload); err != nil {
		h.logger.Warn("lifecycle event publish failed",
			"event", string(event),
			"user_id", userID,
			"error", err.Error(),
		)
	}
}
