package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"huddle/internal/types"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

// fakeKeyRepo is an in-memory APIKeyRepo.
type fakeKeyRepo struct {
	keys    map[string]*types.APIKey // keyed by prefix
	touched []string
	getErr  error
}

func newFakeKeyRepo() *fakeKeyRepo {
	return &fakeKeyRepo{keys: make(map[string]*types.APIKey)}
}

func (r *fakeKeyRepo) Create(_ context.Context, key *types.APIKey) error {
	r.keys[key.Prefix] = key
	return nil
}

func (r *fakeKeyRepo) GetByPrefix(_ context.Context, prefix string) (*types.APIKey, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	key, ok := r.keys[prefix]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundAPIKey, "api key not found", nil)
	}
	cp := *key
	return &cp, nil
}

func (r *fakeKeyRepo) List(_ context.Context) ([]types.APIKey, error) {
	out := make([]types.APIKey, 0, len(r.keys))
	for _, k := range r.keys {
		out = append(out, *k)
	}
	return out, nil
}

func (r *fakeKeyRepo) TouchLastUsed(_ context.Context, id string) error {
	r.touched = append(r.touched, id)
	return nil
}

func (r *fakeKeyRepo) Revoke(_ context.Context, id string) error {
	for _, k := range r.keys {
		if k.ID == id {
			now := testNow
			k.RevokedAt = &now
			return nil
		}
	}
	return types.NewAppError(types.ErrCodeNotFoundAPIKey, "api key not found", nil)
}

// fastHasher avoids bcrypt's cost in tests that don't exercise hashing itself.
type fastHasher struct{}

func (fastHasher) CompareHashAndSecret(hashedSecret, secret string) error {
	if hashedSecret != "hashed:"+secret {
		return errors.New("mismatch")
	}
	return nil
}

func (fastHasher) GenerateFromSecret(secret string) (string, error) {
	return "hashed:" + secret, nil
}

func newTestKeyService(repo *fakeKeyRepo) *KeyService {
	return NewKeyService(repo, fastHasher{}, fixedClock{now: testNow}, nil)
}

func assertErrorCode(t *testing.T, err error, want types.ErrorCode) {
	t.Helper()
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError with code %s, got %v", want, err)
	}
	if appErr.Code != want {
		t.Fatalf("error code = %s, want %s", appErr.Code, want)
	}
}

func TestIssueKey(t *testing.T) {
	repo := newFakeKeyRepo()
	svc := newTestKeyService(repo)

	key, secret, err := svc.IssueKey(context.Background(), "ci-deployer", "admin-1", false)
	if err != nil {
		t.Fatalf("IssueKey: %v", err)
	}

	if !strings.HasPrefix(secret, "hk_live_") {
		t.Errorf("secret = %q, want hk_live_ scheme", secret)
	}
	if key.Prefix != secret[:keyPrefixLen] {
		t.Errorf("prefix = %q, want first %d chars of secret", key.Prefix, keyPrefixLen)
	}
	if key.SecretHash == secret || key.SecretHash == "" {
		t.Error("secret stored unhashed")
	}
	if key.CreatedBy != "admin-1" || !key.CreatedAt.Equal(testNow) {
		t.Errorf("key = %+v", key)
	}
	if _, ok := repo.keys[key.Prefix]; !ok {
		t.Error("key not persisted")
	}
}

func TestIssueKeyTestMode(t *testing.T) {
	svc := newTestKeyService(newFakeKeyRepo())

	_, secret, err := svc.IssueKey(context.Background(), "staging-probe", "admin-1", true)
	if err != nil {
		t.Fatalf("IssueKey: %v", err)
	}
	if !strings.HasPrefix(secret, "hk_test_") {
		t.Errorf("secret = %q, want hk_test_ scheme", secret)
	}
	if !types.IsTestKey(secret) {
		t.Error("test key not recognized by IsTestKey")
	}
}

func TestIssueKeyRequiresName(t *testing.T) {
	svc := newTestKeyService(newFakeKeyRepo())

	_, _, err := svc.IssueKey(context.Background(), "", "admin-1", false)
	assertErrorCode(t, err, types.ErrCodeValidationMissingField)
}

func TestVerifyKeyRoundTrip(t *testing.T) {
	repo := newFakeKeyRepo()
	svc := newTestKeyService(repo)
	ctx := context.Background()

	issued, secret, err := svc.IssueKey(ctx, "ci-deployer", "admin-1", false)
	if err != nil {
		t.Fatalf("IssueKey: %v", err)
	}

	key, err := svc.VerifyKey(ctx, secret)
	if err != nil {
		t.Fatalf("VerifyKey: %v", err)
	}
	if key.ID != issued.ID {
		t.Errorf("resolved key %s, want %s", key.ID, issued.ID)
	}
	if len(repo.touched) != 1 || repo.touched[0] != issued.ID {
		t.Errorf("last_used_at touches = %v", repo.touched)
	}
}

func TestVerifyKeyWrongSecret(t *testing.T) {
	repo := newFakeKeyRepo()
	svc := newTestKeyService(repo)
	ctx := context.Background()

	_, secret, _ := svc.IssueKey(ctx, "ci-deployer", "admin-1", false)

	// Same prefix, different tail.
	forged := secret[:keyPrefixLen] + strings.Repeat("0", len(secret)-keyPrefixLen)
	_, err := svc.VerifyKey(ctx, forged)
	assertErrorCode(t, err, types.ErrCodeAuthTokenInvalid)
}

func TestVerifyKeyUnknownPrefix(t *testing.T) {
	svc := newTestKeyService(newFakeKeyRepo())

	_, err := svc.VerifyKey(context.Background(), "hk_live_00000000ffffffffffffffffffffffff")
	assertErrorCode(t, err, types.ErrCodeNotFoundAPIKey)
}

func TestVerifyKeyMalformed(t *testing.T) {
	svc := newTestKeyService(newFakeKeyRepo())

	_, err := svc.VerifyKey(context.Background(), "hk_live")
	assertErrorCode(t, err, types.ErrCodeAuthTokenInvalid)
}

func TestVerifyKeyRevoked(t *testing.T) {
	repo := newFakeKeyRepo()
	svc := newTestKeyService(repo)
	ctx := context.Background()

	issued, secret, _ := svc.IssueKey(ctx, "ci-deployer", "admin-1", false)
	if err := svc.RevokeKey(ctx, issued.ID); err != nil {
		t.Fatalf("RevokeKey: %v", err)
	}

	_, err := svc.VerifyKey(ctx, secret)
	assertErrorCode(t, err, types.ErrCodeAuthKeyRevoked)
}

func TestListKeysStripsHashes(t *testing.T) {
	repo := newFakeKeyRepo()
	svc := newTestKeyService(repo)
	ctx := context.Background()

	_, _, _ = svc.IssueKey(ctx, "a", "admin-1", false)
	_, _, _ = svc.IssueKey(ctx, "b", "admin-1", true)

	keys, err := svc.ListKeys(ctx)
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("len = %d, want 2", len(keys))
	}
	for _, k := range keys {
		if k.SecretHash != "" {
			t.Errorf("key %s leaked its secret hash", k.ID)
		}
	}
}

func TestBcryptHasherRoundTrip(t *testing.T) {
	h := &bcryptHasher{}

	hash, err := h.GenerateFromSecret("hk_live_deadbeef")
	if err != nil {
		t.Fatalf("GenerateFromSecret: %v", err)
	}
	if err := h.CompareHashAndSecret(hash, "hk_live_deadbeef"); err != nil {
		t.Errorf("valid secret rejected: %v", err)
	}
	if err := h.CompareHashAndSecret(hash, "hk_live_wrong"); err == nil {
		t.Error("wrong secret accepted")
	}
}

func TestGenerateSecretUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s, err := generateSecret(false)
		if err != nil {
			t.Fatalf("generateSecret: %v", err)
		}
		if seen[s] {
			t.Fatal("duplicate secret generated")
		}
		seen[s] = true
	}
}
