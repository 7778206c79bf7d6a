package external

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"huddle/internal/billing"
	"huddle/internal/types"
)

// Stub implementations let the application boot in local/test mode without
// real credentials. They log every action and keep just enough in-memory
// state for end-to-end flows to be coherent: a checkout initialized against
// the stub gateway can be verified against it, and entitlement writes stick.

// ---------------------------------------------------------------------------
// Identity
// ---------------------------------------------------------------------------

// StubIdentityDirectory is an in-memory IdentityDirectory. Unknown users are
// auto-provisioned on first read so local flows never trip over a missing
// directory entry.
type StubIdentityDirectory struct {
	logger *slog.Logger

	mu    sync.Mutex
	users map[string]types.DirectoryUser
}

// NewStubIdentityDirectory creates an empty stub directory.
func NewStubIdentityDirectory(logger *slog.Logger) *StubIdentityDirectory {
	return &StubIdentityDirectory{
		logger: logger,
		users:  make(map[string]types.DirectoryUser),
	}
}

func (s *StubIdentityDirectory) GetUser(_ context.Context, userID string) (types.DirectoryUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		user = types.DirectoryUser{
			ID:        userID,
			Email:     userID + "@stub.local",
			Role:      types.RoleMember,
			CreatedAt: time.Now().UTC(),
			Entitlement: types.UserEntitlement{
				UserID: userID,
				Plan:   types.PlanFree,
			},
		}
		s.users[userID] = user
		s.logger.Info("stub identity: auto-provisioned user", "user_id", userID)
	}
	return user, nil
}

func (s *StubIdentityDirectory) ListUsers(_ context.Context, _, _ int) ([]types.DirectoryUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]types.DirectoryUser, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	return users, nil
}

func (s *StubIdentityDirectory) CreateUser(_ context.Context, email, _ string, role types.UserRole) (types.DirectoryUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := types.DirectoryUser{
		ID:        uuid.NewString(),
		Email:     email,
		Role:      role,
		CreatedAt: time.Now().UTC(),
		Entitlement: types.UserEntitlement{
			Plan: types.PlanFree,
		},
	}
	user.Entitlement.UserID = user.ID
	s.users[user.ID] = user
	s.logger.Info("stub identity: created user", "user_id", user.ID, "email", email, "role", string(role))
	return user, nil
}

func (s *StubIdentityDirectory) PutEntitlement(_ context.Context, userID string, ent types.UserEntitlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		user = types.DirectoryUser{ID: userID, Role: types.RoleMember, CreatedAt: time.Now().UTC()}
	}
	ent.UserID = userID
	user.Entitlement = ent
	s.users[userID] = user
	s.logger.Info("stub identity: entitlement written",
		"user_id", userID,
		"plan", string(ent.Plan),
		"active", ent.Active,
	)
	return nil
}

func (s *StubIdentityDirectory) SetRole(_ context.Context, userID string, role types.UserRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	user.Role = role
	s.users[userID] = user
	s.logger.Info("stub identity: role updated", "user_id", userID, "role", string(role))
	return nil
}

// ---------------------------------------------------------------------------
// Payments
// ---------------------------------------------------------------------------

// StubPaymentGateway is an in-memory PaymentGateway. Initialized checkouts
// are remembered by reference so VerifyTransaction can return the matching
// successful payment, mirroring the real verify flow.
type StubPaymentGateway struct {
	logger   *slog.Logger
	provider types.PaymentProvider

	mu       sync.Mutex
	payments map[string]types.PaymentEvent
}

// NewStubPaymentGateway creates a stub gateway reporting as the given
// provider ("paystack" or "stripe").
func NewStubPaymentGateway(logger *slog.Logger, provider string) *StubPaymentGateway {
	return &StubPaymentGateway{
		logger:   logger,
		provider: types.PaymentProvider(provider),
		payments: make(map[string]types.PaymentEvent),
	}
}

func (s *StubPaymentGateway) InitializeCheckout(_ context.Context, params billing.CheckoutParams) (types.CheckoutIntent, error) {
	reference := fmt.Sprintf("stub_%s_%s", s.provider, uuid.NewString())

	s.mu.Lock()
	s.payments[reference] = types.PaymentEvent{
		Provider:  s.provider,
		Reference: reference,
		UserID:    params.UserID,
		Plan:      params.Plan,
		Kind:      params.Kind,
		Amount:    params.Amount,
		Currency:  "NGN",
		PaidAt:    time.Now().UTC(),
	}
	s.mu.Unlock()

	s.logger.Info("stub gateway: checkout initialized",
		"provider", string(s.provider),
		"reference", reference,
		"user_id", params.UserID,
		"plan", string(params.Plan),
		"kind", string(params.Kind),
	)
	return types.CheckoutIntent{
		CheckoutURL: "https://checkout.stub.local/" + reference,
		Reference:   reference,
	}, nil
}

func (s *StubPaymentGateway) VerifyTransaction(_ context.Context, reference string) (types.PaymentEvent, error) {
	s.mu.Lock()
	ev, ok := s.payments[reference]
	s.mu.Unlock()

	if !ok {
		return types.PaymentEvent{}, types.NewAppError(
			types.ErrCodePaymentVerificationFailed,
			fmt.Sprintf("stub gateway has no transaction %s", reference),
			nil,
		)
	}
	s.logger.Info("stub gateway: transaction verified", "reference", reference)
	return ev, nil
}

// ---------------------------------------------------------------------------
// Video
// ---------------------------------------------------------------------------

// StubVideoService is a VideoService that mints predictable tokens and
// reports empty calls.
type StubVideoService struct {
	logger *slog.Logger
}

// NewStubVideoService creates a stub video service.
func NewStubVideoService(logger *slog.Logger) *StubVideoService {
	return &StubVideoService{logger: logger}
}

func (s *StubVideoService) MintUserToken(userID string) (string, error) {
	if userID == "" {
		return "", types.NewAppError(
			types.ErrCodeValidationMissingField,
			"user ID is required to mint a video token",
			nil,
		)
	}
	return "stub-video-token-" + userID, nil
}

func (s *StubVideoService) CreateCall(_ context.Context, callID, createdBy string) error {
	s.logger.Info("stub video: call created", "call_id", callID, "created_by", createdBy)
	return nil
}

func (s *StubVideoService) GetCall(_ context.Context, callID string) (types.CallSnapshot, error) {
	return types.CallSnapshot{CallID: callID, ParticipantCount: 0}, nil
}

func (s *StubVideoService) ListRecordings(_ context.Context, callID string) ([]types.Recording, error) {
	s.logger.Info("stub video: recordings listed", "call_id", callID)
	return nil, nil
}

// ---------------------------------------------------------------------------
// Webhook Verification
// ---------------------------------------------------------------------------

// StubWebhookVerifier accepts every payload. Local webhook testing only.
type StubWebhookVerifier struct {
	logger *slog.Logger
}

// NewStubWebhookVerifier creates a verifier that always succeeds.
func NewStubWebhookVerifier(logger *slog.Logger) *StubWebhookVerifier {
	return &StubWebhookVerifier{logger: logger}
}

func (s *StubWebhookVerifier) Verify(payload []byte, _ string, _ string) error {
	s.logger.Info("stub verifier: accepting webhook payload", "bytes", len(payload))
	return nil
}
