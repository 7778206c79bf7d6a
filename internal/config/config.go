// Package config defines the global configuration structure for the Huddle
// backend. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup (fail fast).
package config

import (
	"time"

	"huddle/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the Huddle backend.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require
// (Least Privilege principle).
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"huddle-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	IsTestMode  bool   `envconfig:"IS_TEST_MODE" default:"false"`

	// Domain Configurations
	Server   ServerConfig
	Database DatabaseConfig
	AWS      AWSConfig
	Identity IdentityConfig
	Payments PaymentsConfig
	Video    VideoConfig
	Security SecurityConfig
	Events   EventsConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public URLs for payment callbacks and redirects (no trailing slash)
	APIExternalURL string `envconfig:"API_EXTERNAL_URL" validate:"required,url"` // e.g., https://api.huddle.app
	AppURL         string `envconfig:"APP_URL" validate:"required,url"`          // e.g., https://huddle.app
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	// Resolved from SSM or Env
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`     // Fail fast when pool exhausted
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"` // Detect dead connections during failover
}

// AWSConfig holds AWS regional configuration and optional endpoint overrides.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// IdentityConfig holds the hosted identity provider's admin API credentials.
// The provider stores each user's entitlement metadata; the service account
// key grants the admin surface used to read and write it.
type IdentityConfig struct {
	BaseURL        string       `envconfig:"IDENTITY_BASE_URL" validate:"required,url"`
	ServiceRoleKey SecretString `envconfig:"IDENTITY_SERVICE_ROLE_KEY" validate:"required"`
	JWTSecret      SecretString `envconfig:"IDENTITY_JWT_SECRET" validate:"required,min=32"`
}

// PaymentsConfig holds payment gateway credentials. Paystack is the primary
// gateway; Stripe is the alternate card gateway and is optional.
type PaymentsConfig struct {
	PaystackSecretKey   SecretString `envconfig:"PAYSTACK_SECRET_KEY" validate:"required"`
	PaystackCallbackURL string       `envconfig:"PAYSTACK_CALLBACK_URL" validate:"required,url"`
	Currency            string       `envconfig:"PAYMENT_CURRENCY" default:"NGN"`

	StripeSecretKey     SecretString `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET"`
}

// VideoConfig holds the hosted video transport provider's credentials, used
// to mint user tokens and read call state.
type VideoConfig struct {
	BaseURL   string       `envconfig:"VIDEO_BASE_URL" default:"https://video.stream-io-api.com"`
	APIKey    string       `envconfig:"VIDEO_API_KEY" validate:"required"`
	APISecret SecretString `envconfig:"VIDEO_API_SECRET" validate:"required"`
	// Lifetime of minted user tokens.
	TokenTTL time.Duration `envconfig:"VIDEO_TOKEN_TTL" default:"1h"`
}

// SecurityConfig holds security-related configuration including CORS settings.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	// Requests per minute per actor for the decision endpoints.
	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`
}

// EventsConfig holds the integration event queue settings. The queue URL is
// optional; without it lifecycle events are not published.
type EventsConfig struct {
	QueueURL string `envconfig:"SQS_LIFECYCLE_EVENTS"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
