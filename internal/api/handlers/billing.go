package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"huddle/internal/billing"
	"huddle/internal/core"
	"huddle/internal/types"
)

// --- Service Interfaces ---

// GatewayClient mirrors the external payment gateway clients: hosted checkout
// initialization plus synchronous verification.
type GatewayClient interface {
	InitializeCheckout(ctx context.Context, params billing.CheckoutParams) (types.CheckoutIntent, error)
	VerifyTransaction(ctx context.Context, reference string) (types.PaymentEvent, error)
}

// TrialFeeCharger mirrors billing.TrialManager.ChargeTrialFee.
type TrialFeeCharger interface {
	ChargeTrialFee(ctx context.Context, userID string) (types.CheckoutIntent, error)
}

// PaymentActivator mirrors billing.ActivationHandler.OnPaymentSucceeded.
type PaymentActivator interface {
	OnPaymentSucceeded(ctx context.Context, ev types.PaymentEvent) error
}

// BillingIdentityReader resolves the email for checkout when the actor record
// does not carry one (API-key callers acting on behalf of a user).
type BillingIdentityReader interface {
	GetUser(ctx context.Context, userID string) (types.DirectoryUser, error)
}

// --- Request/Response Models ---

// CheckoutRequest is the body for POST /v1/billing/checkout. Amounts are
// resolved server-side from the plan price list; clients never set them.
type CheckoutRequest struct {
	Plan     string `json:"plan" validate:"required,oneof=pro business"`
	Provider string `json:"provider,omitempty" validate:"omitempty,oneof=paystack stripe"`
}

// VerifyResponse is the body returned by GET /v1/billing/verify/{reference}.
type VerifyResponse struct {
	Reference string            `json:"reference"`
	Plan      types.PlanTier    `json:"plan"`
	Kind      types.PaymentKind `json:"kind"`
	Amount    int64             `json:"amount"`
	Activated bool              `json:"activated"`
}

// subscriptionPrices lists the checkout amount per paid plan in minor
// currency units. Free has no checkout path.
var subscriptionPrices = map[types.PlanTier]int64{
	types.PlanPro:      500000,
	types.PlanBusiness: 1500000,
}

// --- Handler ---

// BillingHandler owns the self-service billing surface: subscription
// checkout, trial fee checkout, and the synchronous verify path that feeds
// the same idempotent activation as the signed webhooks.
type BillingHandler struct {
	paystack  GatewayClient
	stripe    GatewayClient
	trials    TrialFeeCharger
	activator PaymentActivator
	identity  BillingIdentityReader
	validator *core.Validator
	logger    *slog.Logger
}

// NewBillingHandler creates a BillingHandler. stripe may be nil when the
// alternate card gateway is not configured.
func NewBillingHandler(
	paystack GatewayClient,
	stripe GatewayClient,
	trials TrialFeeCharger,
	activator PaymentActivator,
	identity BillingIdentityReader,
	v *core.Validator,
	l *slog.Logger,
) *BillingHandler {
	if l == nil {
		l = slog.Default()
	}
	return &BillingHandler{
		paystack:  paystack,
		stripe:    stripe,
		trials:    trials,
		activator: activator,
		identity:  identity,
		validator: v,
		logger:    l,
	}
}

// RegisterRoutes mounts the billing routes on the provided chi.Router.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Route("/billing", func(r chi.Router) {
		r.Post("/checkout", h.Checkout)
		r.Post("/trial-fee", h.ChargeTrialFee)
		r.Get("/verify/{reference}", h.Verify)
	})
}

// Checkout handles POST /v1/billing/checkout. The checkout is always for the
// authenticated actor; plan and gateway come from the request, the amount
// from the server-side price list.
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	var req CheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	provider := types.ProviderPaystack
	if req.Provider == string(types.ProviderStripe) {
		provider = types.ProviderStripe
	}
	gateway, err := h.gatewayFor(provider)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	plan := types.PlanTier(req.Plan)
	amount, priced := subscriptionPrices[plan]
	if !priced {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidPlan, "plan has no checkout price", nil))
		return
	}

	email, err := h.resolveEmail(r.Context(), actor)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	intent, err := gateway.InitializeCheckout(r.Context(), billing.CheckoutParams{
		UserID: actor.ID,
		Email:  email,
		Plan:   plan,
		Kind:   types.PaymentSubscription,
		Amount: amount,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "subscription checkout initialized",
		"user_id", actor.ID,
		"plan", req.Plan,
		"provider", string(provider),
		"reference", intent.Reference,
	)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: intent})
}

// ChargeTrialFee handles POST /v1/billing/trial-fee for the authenticated
// actor. Fails with 409 when trial fee charging is disabled in the catalog.
func (h *BillingHandler) ChargeTrialFee(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	intent, err := h.trials.ChargeTrialFee(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: intent})
}

// Verify handles GET /v1/billing/verify/{reference}. It confirms the payment
// with the gateway and feeds the resulting event through the activation
// handler; duplicate verifies are absorbed by the payment ledger.
func (h *BillingHandler) Verify(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	if reference == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "payment reference is required", nil))
		return
	}

	provider := types.ProviderPaystack
	if r.URL.Query().Get("provider") == string(types.ProviderStripe) {
		provider = types.ProviderStripe
	}
	gateway, err := h.gatewayFor(provider)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	ev, err := gateway.VerifyTransaction(r.Context(), reference)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.activator.OnPaymentSucceeded(r.Context(), ev); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: VerifyResponse{
		Reference: ev.Reference,
		Plan:      ev.Plan,
		Kind:      ev.Kind,
		Amount:    ev.Amount,
		Activated: true,
	}})
}

// gatewayFor selects the gateway client for the provider, failing when the
// optional Stripe gateway is requested but unconfigured.
func (h *BillingHandler) gatewayFor(provider types.PaymentProvider) (GatewayClient, error) {
	gateway := h.paystack
	if provider == types.ProviderStripe {
		gateway = h.stripe
	}
	if gateway == nil {
		return nil, types.NewAppError(
			types.ErrCodeConfigMissingSetting,
			"payment provider is not configured",
			nil,
		)
	}
	return gateway, nil
}

// resolveEmail prefers the email on the actor's token and falls back to the
// identity directory for API-key callers.
func (h *BillingHandler) resolveEmail(ctx context.Context, actor types.Actor) (string, error) {
	if actor.Email != "" {
		return actor.Email, nil
	}
	user, err := h.identity.GetUser(ctx, actor.ID)
	if err != nil {
		return "", err
	}
	return user.Email, nil
}
