package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"huddle/internal/billing"
	"huddle/internal/types"
)

// paystackAPIBase is the default Paystack API base URL.
// Overridable in tests via PaystackClientConfig.BaseURL.
const paystackAPIBase = "https://api.paystack.co"

// PaystackClientConfig holds the configuration for creating a PaystackClient.
type PaystackClientConfig struct {
	SecretKey   string
	CallbackURL string
	Currency    string
	BaseURL     string // Override for testing; defaults to paystackAPIBase
	Logger      *slog.Logger
}

// PaystackClient implements PaymentGateway against the Paystack REST API
// through BaseClient. The checkout metadata carries user_id, plan, and type;
// it round-trips through the gateway and comes back on both the verify
// response and the charge.success webhook, which is how the activation
// handler routes the payment.
type PaystackClient struct {
	base        *BaseClient
	secretKey   string
	callbackURL string
	currency    string
	baseURL     string
	logger      *slog.Logger
}

// NewPaystackClient creates a PaystackClient over the given HTTP client.
func NewPaystackClient(httpClient *http.Client, cfg PaystackClientConfig) *PaystackClient {
	base := NewBaseClient(
		httpClient,
		"paystack",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"Huddle/1.0",
	)
	return newPaystackClient(base, cfg)
}

// NewPaystackClientWithBase creates a PaystackClient with a pre-configured
// BaseClient. Useful in tests to control retry and breaker behavior.
func NewPaystackClientWithBase(base *BaseClient, cfg PaystackClientConfig) *PaystackClient {
	return newPaystackClient(base, cfg)
}

func newPaystackClient(base *BaseClient, cfg PaystackClientConfig) *PaystackClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = paystackAPIBase
	}
	currency := cfg.Currency
	if currency == "" {
		currency = "NGN"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PaystackClient{
		base:        base,
		secretKey:   cfg.SecretKey,
		callbackURL: cfg.CallbackURL,
		currency:    currency,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		logger:      logger,
	}
}

// InitializeCheckout creates a hosted payment page for the given purchase.
// The reference is generated here so the ledger key exists before the user
// ever reaches the gateway.
func (c *PaystackClient) InitializeCheckout(ctx context.Context, params billing.CheckoutParams) (types.CheckoutIntent, error) {
	reference := "hud_" + uuid.NewString()

	body := map[string]any{
		"email":        params.Email,
		"amount":       params.Amount,
		"currency":     c.currency,
		"reference":    reference,
		"callback_url": c.callbackURL,
		"metadata": map[string]any{
			"user_id": params.UserID,
			"plan":    string(params.Plan),
			"type":    string(params.Kind),
		},
	}

	resp, err := c.doPost(ctx, "/transaction/initialize", body)
	if err != nil {
		return types.CheckoutIntent{}, c.wrapTransportError("InitializeCheckout", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.CheckoutIntent{}, c.handleErrorResponse(resp, "InitializeCheckout")
	}

	var envelope paystackInitResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return types.CheckoutIntent{}, types.NewAppError(
			types.ErrCodeUpstreamPayment,
			"failed to decode Paystack initialize response",
			err,
		)
	}
	if !envelope.Status {
		return types.CheckoutIntent{}, types.NewAppError(
			types.ErrCodeUpstreamPayment,
			fmt.Sprintf("InitializeCheckout: Paystack rejected the transaction: %s", envelope.Message),
			nil,
		)
	}

	c.logger.InfoContext(ctx, "paystack checkout initialized",
		"reference", envelope.Data.Reference,
		"user_id", params.UserID,
		"plan", string(params.Plan),
		"kind", string(params.Kind),
	)

	return types.CheckoutIntent{
		CheckoutURL: envelope.Data.AuthorizationURL,
		Reference:   envelope.Data.Reference,
		AccessCode:  envelope.Data.AccessCode,
	}, nil
}

// VerifyTransaction confirms a payment by reference and normalizes it into a
// PaymentEvent. A transaction the gateway knows about but that did not
// succeed fails with ErrCodePaymentVerificationFailed.
func (c *PaystackClient) VerifyTransaction(ctx context.Context, reference string) (types.PaymentEvent, error) {
	resp, err := c.doGet(ctx, "/transaction/verify/"+url.PathEscape(reference))
	if err != nil {
		return types.PaymentEvent{}, c.wrapTransportError("VerifyTransaction", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return types.PaymentEvent{}, types.NewAppError(
			types.ErrCodePaymentVerificationFailed,
			fmt.Sprintf("transaction %s not found at Paystack", reference),
			nil,
		)
	}
	if resp.StatusCode != http.StatusOK {
		return types.PaymentEvent{}, c.handleErrorResponse(resp, "VerifyTransaction")
	}

	var envelope paystackVerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return types.PaymentEvent{}, types.NewAppError(
			types.ErrCodeUpstreamPayment,
			"failed to decode Paystack verify response",
			err,
		)
	}
	if !envelope.Status || envelope.Data.Status != "success" {
		return types.PaymentEvent{}, types.NewAppError(
			types.ErrCodePaymentVerificationFailed,
			fmt.Sprintf("transaction %s is %q, not successful", reference, envelope.Data.Status),
			nil,
		)
	}

	return envelope.Data.toPaymentEvent(), nil
}

// doGet performs an authenticated GET request to the Paystack API.
func (c *PaystackClient) doGet(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	return c.base.Do(req)
}

// doPost performs an authenticated POST request with a JSON body.
func (c *PaystackClient) doPost(ctx context.Context, path string, body any) (*http.Response, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")
	return c.base.Do(req)
}

// handleErrorResponse maps a non-2xx Paystack response to an AppError.
func (c *PaystackClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var provErr struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &provErr)

	return types.NewAppError(
		types.ErrCodeUpstreamPayment,
		fmt.Sprintf("%s: Paystack returned %d: %s", operation, resp.StatusCode, provErr.Message),
		nil,
	)
}

// wrapTransportError passes BaseClient AppErrors through and wraps everything
// else as a payment upstream failure.
func (c *PaystackClient) wrapTransportError(operation string, err error) error {
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamPayment,
		fmt.Sprintf("%s: Paystack request failed: %v", operation, err),
		err,
	)
}

// ---------------------------------------------------------------------------
// Paystack Response Types
// ---------------------------------------------------------------------------

type paystackInitResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

type paystackVerifyResponse struct {
	Status  bool                    `json:"status"`
	Message string                  `json:"message"`
	Data    paystackTransactionData `json:"data"`
}

// paystackTransactionData is the shared transaction shape returned by both
// the verify endpoint and the charge.success webhook body.
type paystackTransactionData struct {
	Status    string           `json:"status"`
	Reference string           `json:"reference"`
	Amount    int64            `json:"amount"`
	Currency  string           `json:"currency"`
	PaidAt    string           `json:"paid_at"`
	Metadata  paystackMetadata `json:"metadata"`
}

type paystackMetadata struct {
	UserID string `json:"user_id"`
	Plan   string `json:"plan"`
	Type   string `json:"type"`
}

// toPaymentEvent normalizes a Paystack transaction into the PaymentEvent the
// activation handler consumes.
func (d paystackTransactionData) toPaymentEvent() types.PaymentEvent {
	kind := types.PaymentSubscription
	if d.Metadata.Type == string(types.PaymentTrialFee) {
		kind = types.PaymentTrialFee
	}

	var paidAt time.Time
	if t, err := time.Parse(time.RFC3339, d.PaidAt); err == nil {
		paidAt = t
	}

	return types.PaymentEvent{
		Provider:  types.ProviderPaystack,
		Reference: d.Reference,
		UserID:    d.Metadata.UserID,
		Plan:      types.PlanTier(d.Metadata.Plan),
		Kind:      kind,
		Amount:    d.Amount,
		Currency:  d.Currency,
		PaidAt:    paidAt,
	}
}

// ParsePaystackWebhook decodes a verified charge.success webhook body into a
// PaymentEvent. The caller must verify the signature first.
func ParsePaystackWebhook(payload []byte) (event string, ev types.PaymentEvent, err error) {
	var envelope struct {
		Event string                  `json:"event"`
		Data  paystackTransactionData `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return "", types.PaymentEvent{}, types.NewAppError(
			types.ErrCodeValidationBody,
			"malformed Paystack webhook payload",
			err,
		)
	}
	return envelope.Event, envelope.Data.toPaymentEvent(), nil
}
