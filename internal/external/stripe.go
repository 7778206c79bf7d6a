package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"huddle/internal/billing"
	"huddle/internal/types"
)

// stripeAPIBase is the default Stripe API base URL.
// Overridable in tests via StripeClientConfig.BaseURL.
const stripeAPIBase = "https://api.stripe.com"

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey  string
	SuccessURL string
	CancelURL  string
	Currency   string
	BaseURL    string // Override for testing; defaults to stripeAPIBase
	Logger     *slog.Logger
}

// StripeClient implements PaymentGateway as the alternate card gateway by
// making direct HTTP calls to the Stripe REST API through BaseClient. This
// routes all requests through the platform's resilience infrastructure and
// makes testing with httptest straightforward. The checkout session ID is the
// payment reference; session metadata carries user_id, plan, and kind for
// webhook correlation.
type StripeClient struct {
	base       *BaseClient
	secretKey  string
	successURL string
	cancelURL  string
	currency   string
	baseURL    string
	logger     *slog.Logger
}

// NewStripeClient creates a StripeClient over the given HTTP client.
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig) *StripeClient {
	base := NewBaseClient(
		httpClient,
		"stripe",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"Huddle/1.0",
	)
	return newStripeClient(base, cfg)
}

// NewStripeClientWithBase creates a StripeClient with a pre-configured
// BaseClient. Useful in tests to control retry and breaker behavior.
func NewStripeClientWithBase(base *BaseClient, cfg StripeClientConfig) *StripeClient {
	return newStripeClient(base, cfg)
}

func newStripeClient(base *BaseClient, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}
	currency := cfg.Currency
	if currency == "" {
		currency = "usd"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeClient{
		base:       base,
		secretKey:  cfg.SecretKey,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		currency:   strings.ToLower(currency),
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		logger:     logger,
	}
}

// InitializeCheckout creates a Stripe Checkout Session for the purchase.
// Inline price_data avoids pre-provisioned price IDs; the plan is priced by
// the amount the caller computed from the catalog.
func (s *StripeClient) InitializeCheckout(ctx context.Context, params billing.CheckoutParams) (types.CheckoutIntent, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", params.UserID)
	form.Set("customer_email", params.Email)
	form.Set("success_url", s.successURL)
	form.Set("cancel_url", s.cancelURL)
	form.Set("metadata[user_id]", params.UserID)
	form.Set("metadata[plan]", string(params.Plan))
	form.Set("metadata[kind]", string(params.Kind))
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", s.currency)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(params.Amount, 10))
	form.Set("line_items[0][price_data][product_data][name]", checkoutItemName(params))

	resp, err := s.doPost(ctx, "/v1/checkout/sessions", form)
	if err != nil {
		return types.CheckoutIntent{}, s.wrapTransportError("InitializeCheckout", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.CheckoutIntent{}, s.handleErrorResponse(resp, "InitializeCheckout")
	}

	var session stripeCheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return types.CheckoutIntent{}, types.NewAppError(
			types.ErrCodeUpstreamPayment,
			"failed to decode Stripe checkout session response",
			err,
		)
	}

	s.logger.InfoContext(ctx, "stripe checkout initialized",
		"reference", session.ID,
		"user_id", params.UserID,
		"plan", string(params.Plan),
		"kind", string(params.Kind),
	)

	return types.CheckoutIntent{
		CheckoutURL: session.URL,
		Reference:   session.ID,
	}, nil
}

// VerifyTransaction confirms a checkout session by ID and normalizes it into
// a PaymentEvent. An unpaid session fails with
// ErrCodePaymentVerificationFailed.
func (s *StripeClient) VerifyTransaction(ctx context.Context, reference string) (types.PaymentEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/v1/checkout/sessions/"+url.PathEscape(reference), nil)
	if err != nil {
		return types.PaymentEvent{}, err
	}
	s.setAuthHeaders(req)

	resp, err := s.base.Do(req)
	if err != nil {
		return types.PaymentEvent{}, s.wrapTransportError("VerifyTransaction", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return types.PaymentEvent{}, types.NewAppError(
			types.ErrCodePaymentVerificationFailed,
			fmt.Sprintf("checkout session %s not found at Stripe", reference),
			nil,
		)
	}
	if resp.StatusCode != http.StatusOK {
		return types.PaymentEvent{}, s.handleErrorResponse(resp, "VerifyTransaction")
	}

	var session stripeCheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return types.PaymentEvent{}, types.NewAppError(
			types.ErrCodeUpstreamPayment,
			"failed to decode Stripe checkout session response",
			err,
		)
	}
	if session.PaymentStatus != "paid" {
		return types.PaymentEvent{}, types.NewAppError(
			types.ErrCodePaymentVerificationFailed,
			fmt.Sprintf("checkout session %s is %q, not paid", reference, session.PaymentStatus),
			nil,
		)
	}

	return session.toPaymentEvent(), nil
}

// doPost performs an authenticated POST request with a form-encoded body.
func (s *StripeClient) doPost(ctx context.Context, path string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	s.setAuthHeaders(req)
	return s.base.Do(req)
}

// setAuthHeaders sets the Stripe API authentication and version headers.
func (s *StripeClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)
}

// handleErrorResponse reads a Stripe error response and maps it to an AppError.
func (s *StripeClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var stripeErr struct {
		Error struct {
			Code        string `json:"code"`
			DeclineCode string `json:"decline_code"`
			Message     string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &stripeErr)

	if stripeErr.Error.Code == "card_declined" || stripeErr.Error.DeclineCode != "" {
		return types.NewAppErrorWithDetails(
			types.ErrCodePaymentDeclined,
			fmt.Sprintf("%s: payment declined: %s", operation, stripeErr.Error.Message),
			nil,
			map[string]any{
				"decline_code": stripeErr.Error.DeclineCode,
				"stripe_code":  stripeErr.Error.Code,
			},
		)
	}

	return types.NewAppError(
		types.ErrCodeUpstreamPayment,
		fmt.Sprintf("%s: Stripe returned %d: %s", operation, resp.StatusCode, stripeErr.Error.Message),
		nil,
	)
}

// wrapTransportError passes BaseClient AppErrors through and wraps everything
// else as a payment upstream failure.
func (s *StripeClient) wrapTransportError(operation string, err error) error {
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamPayment,
		fmt.Sprintf("%s: Stripe request failed: %v", operation, err),
		err,
	)
}

// checkoutItemName renders the line-item label shown on the hosted page.
func checkoutItemName(params billing.CheckoutParams) string {
	if params.Kind == types.PaymentTrialFee {
		return "Huddle Pro trial fee"
	}
	return fmt.Sprintf("Huddle %s plan", params.Plan)
}

// ---------------------------------------------------------------------------
// Stripe Response Types
// ---------------------------------------------------------------------------

type stripeCheckoutSession struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
	Created       int64             `json:"created"`
}

// toPaymentEvent normalizes a paid checkout session into the PaymentEvent the
// activation handler consumes.
func (cs stripeCheckoutSession) toPaymentEvent() types.PaymentEvent {
	kind := types.PaymentSubscription
	if cs.Metadata["kind"] == string(types.PaymentTrialFee) {
		kind = types.PaymentTrialFee
	}

	var paidAt time.Time
	if cs.Created > 0 {
		paidAt = time.Unix(cs.Created, 0).UTC()
	}

	return types.PaymentEvent{
		Provider:  types.ProviderStripe,
		Reference: cs.ID,
		UserID:    cs.Metadata["user_id"],
		Plan:      types.PlanTier(cs.Metadata["plan"]),
		Kind:      kind,
		Amount:    cs.AmountTotal,
		Currency:  strings.ToUpper(cs.Currency),
		PaidAt:    paidAt,
	}
}

// ParseStripeWebhook decodes a verified webhook event body. Only
// checkout.session.completed carries a payment; other event types return the
// event name with a zero PaymentEvent. The caller must verify the signature
// first.
func ParseStripeWebhook(payload []byte) (event string, ev types.PaymentEvent, err error) {
	var envelope struct {
		Type string `json:"type"`
		Data struct {
			Object stripeCheckoutSession `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return "", types.PaymentEvent{}, types.NewAppError(
			types.ErrCodeValidationBody,
			"malformed Stripe webhook payload",
			err,
		)
	}
	if envelope.Type != EventStripeCheckoutCompleted {
		return envelope.Type, types.PaymentEvent{}, nil
	}
	return envelope.Type, envelope.Data.Object.toPaymentEvent(), nil
}
