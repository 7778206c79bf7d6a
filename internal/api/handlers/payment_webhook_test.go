package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle/internal/config"
	"huddle/internal/types"
)

// =============================================================================
// Mocks
// =============================================================================

type mockVerifier struct {
	err error

	payloads   [][]byte
	signatures []string
	secrets    []string
}

func (m *mockVerifier) Verify(payload []byte, header string, secret string) error {
	m.payloads = append(m.payloads, payload)
	m.signatures = append(m.signatures, header)
	m.secrets = append(m.secrets, secret)
	return m.err
}

type mockPaymentRecorder struct {
	outcomes []string
}

func (m *mockPaymentRecorder) RecordPayment(_ context.Context, _ types.PaymentProvider, _ types.PaymentKind, outcome string) {
	m.outcomes = append(m.outcomes, outcome)
}

func webhookPaymentsConfig() config.PaymentsConfig {
	return config.PaymentsConfig{
		PaystackSecretKey:   "sk_test_paystack",
		StripeSecretKey:     "sk_test_stripe",
		StripeWebhookSecret: "whsec_test",
		Currency:            "NGN",
	}
}

func newTestWebhookHandler(paystackV, stripeV *mockVerifier) (*WebhookHandler, *mockActivator, *mockPaymentRecorder) {
	activator := &mockActivator{}
	metrics := &mockPaymentRecorder{}

	var stripe SignatureVerifier
	if stripeV != nil {
		stripe = stripeV
	}
	handler := NewWebhookHandler(paystackV, stripe, activator, webhookPaymentsConfig(), metrics, testHandlerLogger())
	return handler, activator, metrics
}

const paystackChargeSuccessBody = `{
	"event": "charge.success",
	"data": {
		"status": "success",
		"reference": "hud_ref_1",
		"amount": 500000,
		"currency": "NGN",
		"paid_at": "2026-03-15T12:00:00Z",
		"metadata": {"user_id": "user-1", "plan": "pro", "type": "subscription"}
	}
}`

func postWebhook(handler http.HandlerFunc, path, body, sigHeader, sigValue string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	if sigValue != "" {
		req.Header.Set(sigHeader, sigValue)
	}
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

// =============================================================================
// Paystack Webhook Tests
// =============================================================================

func TestWebhook_Paystack_VerifiedChargeSuccessActivates(t *testing.T) {
	verifier := &mockVerifier{}
	handler, activator, metrics := newTestWebhookHandler(verifier, nil)

	rr := postWebhook(handler.HandlePaystack, "/v1/payments/webhook/paystack",
		paystackChargeSuccessBody, "X-Paystack-Signature", "sig-abc")

	require.Equal(t, http.StatusOK, rr.Code)

	// Verification saw the raw body, the header, and the account secret.
	require.Len(t, verifier.payloads, 1)
	assert.Equal(t, []byte(paystackChargeSuccessBody), verifier.payloads[0])
	assert.Equal(t, "sig-abc", verifier.signatures[0])
	assert.Equal(t, "sk_test_paystack", verifier.secrets[0])

	require.Len(t, activator.events, 1)
	ev := activator.events[0]
	assert.Equal(t, types.ProviderPaystack, ev.Provider)
	assert.Equal(t, "hud_ref_1", ev.Reference)
	assert.Equal(t, "user-1", ev.UserID)
	assert.Equal(t, types.PlanPro, ev.Plan)
	assert.Equal(t, types.PaymentSubscription, ev.Kind)

	assert.Equal(t, []string{"activated"}, metrics.outcomes)
}

func TestWebhook_Paystack_BadSignatureIs401(t *testing.T) {
	verifier := &mockVerifier{err: types.NewAppError(types.ErrCodeAuthInvalidSignature, "signature mismatch", nil)}
	handler, activator, _ := newTestWebhookHandler(verifier, nil)

	rr := postWebhook(handler.HandlePaystack, "/v1/payments/webhook/paystack",
		paystackChargeSuccessBody, "X-Paystack-Signature", "forged")

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, string(types.ErrCodeAuthInvalidSignature), decodeErrorCode(t, rr))
	assert.Empty(t, activator.events)
}

func TestWebhook_Paystack_NonSuccessEventIgnored(t *testing.T) {
	verifier := &mockVerifier{}
	handler, activator, _ := newTestWebhookHandler(verifier, nil)

	body := `{"event": "charge.failed", "data": {"reference": "hud_ref_2"}}`
	rr := postWebhook(handler.HandlePaystack, "/v1/payments/webhook/paystack",
		body, "X-Paystack-Signature", "sig-abc")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, activator.events)
}

func TestWebhook_Paystack_ActivationFailureStill200(t *testing.T) {
	verifier := &mockVerifier{}
	handler, activator, metrics := newTestWebhookHandler(verifier, nil)
	activator.activateFn = func(ctx context.Context, ev types.PaymentEvent) error {
		return types.NewAppError(types.ErrCodeUpstreamIdentity, "identity down", nil)
	}

	rr := postWebhook(handler.HandlePaystack, "/v1/payments/webhook/paystack",
		paystackChargeSuccessBody, "X-Paystack-Signature", "sig-abc")

	// Verified deliveries are acknowledged even when activation fails; the
	// ledger absorbs the redelivery.
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"failed"}, metrics.outcomes)
}

func TestWebhook_Paystack_MalformedBodyAfterVerification(t *testing.T) {
	verifier := &mockVerifier{}
	handler, _, _ := newTestWebhookHandler(verifier, nil)

	rr := postWebhook(handler.HandlePaystack, "/v1/payments/webhook/paystack",
		"{not json", "X-Paystack-Signature", "sig-abc")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// =============================================================================
// Stripe Webhook Tests
// =============================================================================

func TestWebhook_Stripe_UsesWebhookSecretAndHeader(t *testing.T) {
	stripeV := &mockVerifier{}
	handler, activator, _ := newTestWebhookHandler(&mockVerifier{}, stripeV)

	body := `{
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_123",
			"amount_total": 999,
			"currency": "usd",
			"created": 1767225600,
			"metadata": {"user_id": "user-2", "plan": "pro", "kind": "subscription"}
		}}
	}`
	rr := postWebhook(handler.HandleStripe, "/v1/payments/webhook/stripe",
		body, "Stripe-Signature", "t=1,v1=abc")

	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, stripeV.secrets, 1)
	assert.Equal(t, "whsec_test", stripeV.secrets[0])
	assert.Equal(t, "t=1,v1=abc", stripeV.signatures[0])

	require.Len(t, activator.events, 1)
	assert.Equal(t, types.ProviderStripe, activator.events[0].Provider)
	assert.Equal(t, "cs_123", activator.events[0].Reference)
}

func TestWebhook_Stripe_UnconfiguredVerifierRejects(t *testing.T) {
	handler, activator, _ := newTestWebhookHandler(&mockVerifier{}, nil)

	rr := postWebhook(handler.HandleStripe, "/v1/payments/webhook/stripe",
		`{}`, "Stripe-Signature", "t=1,v1=abc")

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Empty(t, activator.events)
}
