package core

import (
	"context"
	"sync"

	"huddle/internal/types"
)

// --- MockAuthenticator ---

// MockAuthenticator implements the Authenticator interface for testing.
// It allows injecting a predefined Actor for a given token, or returning
// a fixed error to simulate authentication failures.
//
// Usage:
//
//	mock := &MockAuthenticator{
//	    Actor: &types.Actor{ID: "user_test123", Type: types.ActorTypeUser},
//	}
//	actor, err := mock.ResolveToken(ctx, "some-jwt")
//
// To simulate an error:
//
//	mock := &MockAuthenticator{
//	    Err: types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid token", nil),
//	}
type MockAuthenticator struct {
	// Actor is the predefined Actor returned on successful token resolution.
	// If nil and Err is also nil, ResolveToken returns (nil, nil).
	Actor *types.Actor

	// Err is the error returned by ResolveToken. When set, Actor is ignored.
	Err error

	// ResolveTokenFunc optionally overrides the default behavior. When set,
	// it takes precedence over Actor and Err.
	ResolveTokenFunc func(ctx context.Context, token string) (*types.Actor, error)

	mu sync.Mutex

	// Calls records every token passed to ResolveToken for assertions.
	Calls []string
}

// ResolveToken implements the Authenticator interface.
func (m *MockAuthenticator) ResolveToken(ctx context.Context, token string) (*types.Actor, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, token)
	m.mu.Unlock()

	if m.ResolveTokenFunc != nil {
		return m.ResolveTokenFunc(ctx, token)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Actor, nil
}

// --- MockRateLimiter ---

// MockRateLimiter implements types.RateLimiter for testing.
// It allows injecting a predefined result or error.
type MockRateLimiter struct {
	// Info is the RateLimitInfo returned by Allow.
	Info types.RateLimitInfo

	// Allowed is the verdict returned by Allow.
	Allowed bool

	// Err is the error returned by Allow. The Info and Allowed values are
	// still returned alongside it.
	Err error

	// AllowFunc optionally overrides the default behavior.
	AllowFunc func(ctx context.Context, actorID, action string) (types.RateLimitInfo, bool, error)

	mu sync.Mutex

	// Calls records every invocation for assertions.
	Calls []RateLimitCall
}

// RateLimitCall records the arguments of a single Allow invocation.
type RateLimitCall struct {
	ActorID string
	Action  string
}

// Allow implements types.RateLimiter.
func (m *MockRateLimiter) Allow(ctx context.Context, actorID string, action string) (types.RateLimitInfo, bool, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, RateLimitCall{ActorID: actorID, Action: action})
	m.mu.Unlock()

	if m.AllowFunc != nil {
		return m.AllowFunc(ctx, actorID, action)
	}
	return m.Info, m.Allowed, m.Err
}

// Compile-time interface assertions.
var (
	_ Authenticator     = (*MockAuthenticator)(nil)
	_ types.RateLimiter = (*MockRateLimiter)(nil)
)
