package core

import (
	"context"
	"time"

	"huddle/internal/types"
)

// Authenticator decouples the HTTP layer from specific auth mechanisms
// (JWT verification, API key lookups), allowing for easy mocking in tests.
type Authenticator interface {
	// ResolveToken inspects a bearer token and returns the Actor it
	// represents. API keys are recognized by their "hk_" prefix; anything
	// else is treated as an identity-provider JWT.
	//
	// Distinct error codes:
	//   - ErrCodeAuthTokenInvalid: malformed, not found, or signature mismatch.
	//   - ErrCodeAuthTokenExpired: token exists but has expired.
	//   - ErrCodeAuthKeyRevoked: API key exists but was revoked.
	ResolveToken(ctx context.Context, token string) (*types.Actor, error)
}

// MetricsCollector defines the interface for recording API telemetry.
// Implementations record request latency and count metrics to CloudWatch
// or equivalent backends.
type MetricsCollector interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
}
