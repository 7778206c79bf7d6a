package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-jwt/jwt/v5"

	"huddle/internal/types"
)

// TokenAuthenticator resolves bearer tokens to Actors. It recognizes two
// token families:
//
//   - API keys ("hk_live_..." / "hk_test_..."): verified against the bcrypt
//     hash stored for the key's prefix. API keys act with admin authority
//     for the server-to-server surface.
//   - Identity-provider JWTs: HS256 tokens signed with the identity
//     provider's shared secret. Claims carry the user ID (sub), email, and
//     role.
type TokenAuthenticator struct {
	keys      *KeyService
	jwtSecret []byte
	logger    *slog.Logger
}

// NewTokenAuthenticator creates an authenticator. The keys service may be nil
// when API key auth is not configured; JWT resolution still works.
func NewTokenAuthenticator(keys *KeyService, jwtSecret string, logger *slog.Logger) *TokenAuthenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenAuthenticator{
		keys:      keys,
		jwtSecret: []byte(jwtSecret),
		logger:    logger,
	}
}

// ResolveToken resolves a bearer token to an Actor.
func (a *TokenAuthenticator) ResolveToken(ctx context.Context, token string) (*types.Actor, error) {
	if IsAPIKey(token) {
		return a.resolveAPIKey(ctx, token)
	}
	return a.resolveJWT(token)
}

func (a *TokenAuthenticator) resolveAPIKey(ctx context.Context, token string) (*types.Actor, error) {
	if a.keys == nil {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "api key authentication is not configured", nil)
	}

	key, err := a.keys.VerifyKey(ctx, token)
	if err != nil {
		return nil, err
	}

	return &types.Actor{
		ID:         key.ID,
		Type:       types.ActorTypeAPIKey,
		Role:       types.RoleAdmin,
		IsTestMode: types.IsTestKey(token),
	}, nil
}

func (a *TokenAuthenticator) resolveJWT(token string) (*types.Actor, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.jwtSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, types.NewAppError(types.ErrCodeAuthTokenExpired, "token has expired", err)
		}
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid token", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid token claims", nil)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "token is missing a subject", nil)
	}

	email, _ := claims["email"].(string)
	role := types.RoleMember
	if r, _ := claims["role"].(string); r == string(types.RoleAdmin) {
		role = types.RoleAdmin
	}

	return &types.Actor{
		ID:    sub,
		Type:  types.ActorTypeUser,
		Email: email,
		Role:  role,
	}, nil
}
