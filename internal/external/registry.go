package external

import (
	"log/slog"
	"net/http"
	"time"

	"huddle/internal/config"
)

// ClientRegistry holds all external service clients. It is the single point
// of access for the rest of the application to reach third-party services
// (identity provider, Paystack, Stripe, video transport).
type ClientRegistry struct {
	Identity IdentityDirectory
	Paystack PaymentGateway
	// Stripe is the alternate card gateway; nil when not configured.
	Stripe PaymentGateway
	Video  VideoService

	// Verifiers
	PaystackVerifier WebhookVerifier
	StripeVerifier   WebhookVerifier
}

// NewClientRegistry initializes all external service clients. If
// cfg.IsTestMode is true or cfg.Environment is "local", the registry is
// populated with stub implementations that log actions without requiring real
// credentials. Otherwise, real client implementations are initialized with
// strict per-provider timeouts.
func NewClientRegistry(cfg *config.Config, logger *slog.Logger) (*ClientRegistry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	useStubs := cfg.IsTestMode || cfg.Environment == "local"
	if useStubs {
		logger.Info("initializing external clients in STUB mode",
			"is_test_mode", cfg.IsTestMode,
			"environment", cfg.Environment,
		)
		return newStubRegistry(logger), nil
	}

	logger.Info("initializing external clients in PRODUCTION mode",
		"environment", cfg.Environment,
	)
	return newProductionRegistry(cfg, logger), nil
}

// newStubRegistry creates a ClientRegistry populated entirely with stubs so
// the application can boot locally without any external credentials.
func newStubRegistry(logger *slog.Logger) *ClientRegistry {
	stubLogger := logger.With("mode", "stub")

	return &ClientRegistry{
		Identity:         NewStubIdentityDirectory(stubLogger),
		Paystack:         NewStubPaymentGateway(stubLogger, "paystack"),
		Stripe:           NewStubPaymentGateway(stubLogger, "stripe"),
		Video:            NewStubVideoService(stubLogger),
		PaystackVerifier: NewStubWebhookVerifier(stubLogger),
		StripeVerifier:   NewStubWebhookVerifier(stubLogger),
	}
}

// newProductionRegistry creates a ClientRegistry with real clients configured
// with strict timeouts and the shared resilience stack.
func newProductionRegistry(cfg *config.Config, logger *slog.Logger) *ClientRegistry {
	reg := &ClientRegistry{}

	identityHTTPClient := &http.Client{Timeout: 10 * time.Second}
	reg.Identity = NewIdentityClient(identityHTTPClient, IdentityClientConfig{
		BaseURL:        cfg.Identity.BaseURL,
		ServiceRoleKey: cfg.Identity.ServiceRoleKey.Unmask(),
		Logger:         logger.With("client", "identity"),
	})

	paymentHTTPClient := &http.Client{Timeout: 20 * time.Second}
	reg.Paystack = NewPaystackClient(paymentHTTPClient, PaystackClientConfig{
		SecretKey:   cfg.Payments.PaystackSecretKey.Unmask(),
		CallbackURL: cfg.Payments.PaystackCallbackURL,
		Currency:    cfg.Payments.Currency,
		Logger:      logger.With("client", "paystack"),
	})
	reg.PaystackVerifier = &PaystackVerifier{}

	// Stripe is optional; without a secret key the alternate gateway is off.
	if cfg.Payments.StripeSecretKey.Unmask() != "" {
		reg.Stripe = NewStripeClient(paymentHTTPClient, StripeClientConfig{
			SecretKey:  cfg.Payments.StripeSecretKey.Unmask(),
			SuccessURL: cfg.Server.AppURL + "/billing/success",
			CancelURL:  cfg.Server.AppURL + "/billing/cancel",
			Logger:     logger.With("client", "stripe"),
		})
		reg.StripeVerifier = &StripeVerifier{}
	}

	videoHTTPClient := &http.Client{Timeout: 10 * time.Second}
	reg.Video = NewVideoClient(videoHTTPClient, VideoClientConfig{
		BaseURL:   cfg.Video.BaseURL,
		APIKey:    cfg.Video.APIKey,
		APISecret: cfg.Video.APISecret.Unmask(),
		TokenTTL:  cfg.Video.TokenTTL,
		Logger:    logger.With("client", "video"),
	})

	return reg
}
