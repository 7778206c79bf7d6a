package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"huddle/internal/config"
	"huddle/internal/core"
	"huddle/internal/external"
	"huddle/internal/types"
)

// maxWebhookBodySize caps gateway webhook payloads at 64 KB. Gateway events
// are small; anything larger is hostile.
const maxWebhookBodySize = 64 << 10

// SignatureVerifier mirrors external.WebhookVerifier.
type SignatureVerifier interface {
	Verify(payload []byte, header string, secret string) error
}

// PaymentRecorder emits webhook outcome metrics. Optional.
type PaymentRecorder interface {
	RecordPayment(ctx context.Context, provider types.PaymentProvider, kind types.PaymentKind, outcome string)
}

// WebhookHandler terminates the signed payment webhooks from both gateways.
// Both routes are public (no bearer auth); authenticity rests entirely on the
// signature check against the raw body.
type WebhookHandler struct {
	paystackVerifier SignatureVerifier
	stripeVerifier   SignatureVerifier
	activator        PaymentActivator
	payments         config.PaymentsConfig
	metrics          PaymentRecorder
	logger           *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler. stripeVerifier may be nil when
// the alternate gateway is not configured; its route then always rejects.
func NewWebhookHandler(
	paystackVerifier SignatureVerifier,
	stripeVerifier SignatureVerifier,
	activator PaymentActivator,
	payments config.PaymentsConfig,
	metrics PaymentRecorder,
	l *slog.Logger,
) *WebhookHandler {
	if l == nil {
		l = slog.Default()
	}
	return &WebhookHandler{
		paystackVerifier: paystackVerifier,
		stripeVerifier:   stripeVerifier,
		activator:        activator,
		payments:         payments,
		metrics:          metrics,
		logger:           l,
	}
}

// RegisterRoutes mounts the webhook routes. These paths must stay in sync
// with the auth middleware's public path list.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Route("/payments/webhook", func(r chi.Router) {
		r.Post("/paystack", h.HandlePaystack)
		r.Post("/stripe", h.HandleStripe)
	})
}

// HandlePaystack handles POST /v1/payments/webhook/paystack.
func (h *WebhookHandler) HandlePaystack(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, types.ProviderPaystack,
		h.paystackVerifier,
		r.Header.Get("X-Paystack-Signature"),
		h.payments.PaystackSecretKey.Unmask(),
		external.ParsePaystackWebhook,
		external.EventPaystackChargeSuccess,
	)
}

// HandleStripe handles POST /v1/payments/webhook/stripe.
func (h *WebhookHandler) HandleStripe(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, types.ProviderStripe,
		h.stripeVerifier,
		r.Header.Get("Stripe-Signature"),
		h.payments.StripeWebhookSecret.Unmask(),
		external.ParseStripeWebhook,
		external.EventStripeCheckoutCompleted,
	)
}

// handle runs the shared webhook pipeline: read, verify, parse, activate.
// After a verified delivery the response is 200 even when activation fails
// downstream; gateways treat non-2xx as "retry with backoff", and redelivery
// of an already-recorded reference is a ledger no-op.
func (h *WebhookHandler) handle(
	w http.ResponseWriter,
	r *http.Request,
	provider types.PaymentProvider,
	verifier SignatureVerifier,
	signature string,
	secret string,
	parse func(payload []byte) (string, types.PaymentEvent, error),
	successEvent string,
) {
	if verifier == nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeConfigMissingSetting,
			"webhook verification is not configured for this provider",
			nil,
		))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationBody, "failed to read webhook payload", err))
		return
	}

	if err := verifier.Verify(payload, signature, secret); err != nil {
		h.logger.WarnContext(r.Context(), "webhook signature rejected",
			"provider", string(provider),
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	event, ev, err := parse(payload)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if event != successEvent {
		h.logger.DebugContext(r.Context(), "webhook event ignored",
			"provider", string(provider),
			"event", event,
		)
		core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]string{"status": "ignored"}})
		return
	}
	ev.Provider = provider

	if err := h.activator.OnPaymentSucceeded(r.Context(), ev); err != nil {
		h.logger.ErrorContext(r.Context(), "webhook activation failed after verified delivery",
			"provider", string(provider),
			"reference", ev.Reference,
			"error", err,
		)
		h.record(r.Context(), provider, ev.Kind, "failed")
		core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]string{"status": "accepted"}})
		return
	}

	h.record(r.Context(), provider, ev.Kind, "activated")
	h.logger.InfoContext(r.Context(), "webhook payment activated",
		"provider", string(provider),
		"reference", ev.Reference,
		"kind", string(ev.Kind),
	)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]string{"status": "processed"}})
}

func (h *WebhookHandler) record(ctx context.Context, provider types.PaymentProvider, kind types.PaymentKind, outcome string) {
	if h.metrics == nil {
		return
	}
	h.metrics.RecordPayment(ctx, provider, kind, outcome)
}
