package core

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"huddle/internal/types"
)

// RateLimit enforces per-actor request throttling via the types.RateLimiter
// configured on the server.
//
// Authenticated requests are keyed by actor ID; unauthenticated requests
// (the webhook endpoints) are keyed by client IP so a misbehaving gateway
// integration cannot flood the service.
//
// If no RateLimiter is configured (e.g., during tests), the middleware passes
// through without rate limiting. On limiter errors the middleware fails open:
// a limiter outage must not block all API traffic.
//
// On every request (allowed or not), the middleware sets standard rate limit
// response headers:
//   - X-RateLimit-Limit: The maximum number of requests in the window.
//   - X-RateLimit-Remaining: The number of requests remaining.
//   - X-RateLimit-Reset: Unix timestamp when the window resets.
//
// When rate limited, the middleware also sets:
//   - Retry-After: Seconds until the rate limit window resets.
func (s *Server) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.RateLimiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := "ip:" + extractClientIP(r)
		actor, ok := types.GetActor(r.Context())
		if ok {
			key = actor.ID
		}

		info, allowed, err := s.RateLimiter.Allow(r.Context(), key, r.Method+" "+r.URL.Path)
		if err != nil {
			s.Logger.Error("rate limiter error",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			next.ServeHTTP(w, r)
			return
		}

		setRateLimitHeaders(w, info)

		if !allowed {
			s.Logger.Warn("rate limit exceeded",
				slog.String("key", key),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)

			retryAfter := int(time.Until(info.ResetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

			requestID := types.GetRequestID(r.Context())
			resp := APIErrorResponse{
				Error: ErrorDetail{
					Code:      string(types.ErrCodeRateLimit),
					Message:   "Rate limit exceeded. Please retry after the reset time.",
					RequestID: requestID,
				},
			}
			JSON(w, r, http.StatusTooManyRequests, resp)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// setRateLimitHeaders writes the standard X-RateLimit-* headers to the response.
func setRateLimitHeaders(w http.ResponseWriter, info types.RateLimitInfo) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))
}

// MemoryRateLimiter is a fixed-window in-memory implementation of
// types.RateLimiter, suitable for single-instance deployments and tests.
// Windows are one minute long and keyed by actor.
type MemoryRateLimiter struct {
	limit int
	clock types.Clock

	mu      sync.Mutex
	windows map[string]*rateWindow
}

type rateWindow struct {
	count   int
	resetAt time.Time
}

// NewMemoryRateLimiter creates a limiter allowing perMinute requests per key.
// A nil clock defaults to the real clock.
func NewMemoryRateLimiter(perMinute int, clock types.Clock) *MemoryRateLimiter {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &MemoryRateLimiter{
		limit:   perMinute,
		clock:   clock,
		windows: make(map[string]*rateWindow),
	}
}

// Allow implements types.RateLimiter.
func (l *MemoryRateLimiter) Allow(_ context.Context, actorID string, _ string) (types.RateLimitInfo, bool, error) {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[actorID]
	if !ok || !now.Before(w.resetAt) {
		w = &rateWindow{resetAt: now.Truncate(time.Minute).Add(time.Minute)}
		l.windows[actorID] = w
	}

	w.count++
	remaining := l.limit - w.count
	if remaining < 0 {
		remaining = 0
	}

	info := types.RateLimitInfo{
		Limit:     l.limit,
		Remaining: remaining,
		ResetAt:   w.resetAt,
	}
	return info, w.count <= l.limit, nil
}

var _ types.RateLimiter = (*MemoryRateLimiter)(nil)
