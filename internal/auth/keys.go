// Package auth implements bearer token resolution for the Huddle API:
// identity-provider JWTs for end users and bcrypt-hashed API keys for
// server-to-server integrations.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"huddle/internal/types"
)

// bcryptCost is the bcrypt cost factor used for API key secret hashing.
const bcryptCost = 12

const (
	liveKeyScheme = "hk_live_"
	testKeyScheme = "hk_test_"

	// keyPrefixLen is the length of the stored lookup prefix, including the
	// scheme. The prefix is shown in dashboards so keys can be identified
	// without exposing the secret.
	keyPrefixLen = 16
)

// APIKeyRepo defines the data access methods needed for API key operations.
type APIKeyRepo interface {
	Create(ctx context.Context, key *types.APIKey) error
	GetByPrefix(ctx context.Context, prefix string) (*types.APIKey, error)
	List(ctx context.Context) ([]types.APIKey, error)
	TouchLastUsed(ctx context.Context, id string) error
	Revoke(ctx context.Context, id string) error
}

// SecretHasher abstracts bcrypt operations for testability.
type SecretHasher interface {
	CompareHashAndSecret(hashedSecret, secret string) error
	GenerateFromSecret(secret string) (string, error)
}

// bcryptHasher is the production implementation of SecretHasher.
type bcryptHasher struct{}

func (b *bcryptHasher) CompareHashAndSecret(hashedSecret, secret string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedSecret), []byte(secret))
}

func (b *bcryptHasher) GenerateFromSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// KeyService issues and manages API keys. The plaintext secret is returned
// exactly once at creation; only the bcrypt hash and the lookup prefix are
// persisted.
type KeyService struct {
	repo   APIKeyRepo
	hasher SecretHasher
	clock  types.Clock
	logger *slog.Logger
}

// NewKeyService creates a KeyService. A nil hasher defaults to bcrypt, a nil
// clock to the real clock, and a nil logger to slog.Default().
func NewKeyService(repo APIKeyRepo, hasher SecretHasher, clock types.Clock, logger *slog.Logger) *KeyService {
	if hasher == nil {
		hasher = &bcryptHasher{}
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KeyService{repo: repo, hasher: hasher, clock: clock, logger: logger}
}

// IssueKey creates a new API key and returns the key record together with the
// plaintext secret. Test-mode keys carry the hk_test_ scheme and resolve to
// test-mode actors.
func (s *KeyService) IssueKey(ctx context.Context, name, createdBy string, testMode bool) (*types.APIKey, string, error) {
	if name == "" {
		return nil, "", types.NewAppError(types.ErrCodeValidationMissingField, "key name is required", nil)
	}

	secret, err := generateSecret(testMode)
	if err != nil {
		return nil, "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate key material", err)
	}

	hash, err := s.hasher.GenerateFromSecret(secret)
	if err != nil {
		return nil, "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to hash key secret", err)
	}

	key := &types.APIKey{
		ID:         uuid.NewString(),
		Name:       name,
		Prefix:     secret[:keyPrefixLen],
		SecretHash: hash,
		CreatedBy:  createdBy,
		CreatedAt:  s.clock.Now(),
	}

	if err := s.repo.Create(ctx, key); err != nil {
		return nil, "", err
	}

	s.logger.Info("api key issued",
		"key_id", key.ID,
		"prefix", key.Prefix,
		"created_by", createdBy,
	)
	return key, secret, nil
}

// VerifyKey resolves a presented API key secret to its stored record.
// It returns distinct errors for unknown, revoked, and mismatched keys.
func (s *KeyService) VerifyKey(ctx context.Context, secret string) (*types.APIKey, error) {
	if len(secret) < keyPrefixLen {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "malformed api key", nil)
	}

	key, err := s.repo.GetByPrefix(ctx, secret[:keyPrefixLen])
	if err != nil {
		return nil, err
	}
	if key.RevokedAt != nil {
		return nil, types.NewAppError(types.ErrCodeAuthKeyRevoked, "api key has been revoked", nil)
	}

	if err := s.hasher.CompareHashAndSecret(key.SecretHash, secret); err != nil {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid api key", nil)
	}

	if err := s.repo.TouchLastUsed(ctx, key.ID); err != nil {
		// Stale last_used_at is cosmetic; the key itself verified.
		s.logger.Warn("failed to update key last_used_at", "key_id", key.ID, "error", err)
	}

	return key, nil
}

// ListKeys returns all API keys. Secret hashes are cleared before returning
// so they never reach a response body.
func (s *KeyService) ListKeys(ctx context.Context) ([]types.APIKey, error) {
	keys, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range keys {
		keys[i].SecretHash = ""
	}
	return keys, nil
}

// RevokeKey revokes the key with the given ID.
func (s *KeyService) RevokeKey(ctx context.Context, id string) error {
	if err := s.repo.Revoke(ctx, id); err != nil {
		return err
	}
	s.logger.Info("api key revoked", "key_id", id)
	return nil
}

// generateSecret produces a new API key secret: scheme plus 32 hex characters
// of cryptographic randomness.
func generateSecret(testMode bool) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	scheme := liveKeyScheme
	if testMode {
		scheme = testKeyScheme
	}
	return scheme + hex.EncodeToString(b), nil
}

// IsAPIKey reports whether a bearer token is an API key rather than a JWT.
func IsAPIKey(token string) bool {
	return strings.HasPrefix(token, "hk_")
}
