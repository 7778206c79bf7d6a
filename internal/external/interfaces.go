package external

import (
	"context"

	"huddle/internal/billing"
	"huddle/internal/types"
)

// ---------------------------------------------------------------------------
// Identity Integration
// ---------------------------------------------------------------------------

// IdentityDirectory abstracts the hosted identity provider's admin API. Users
// and their entitlement metadata live with the provider; this service holds
// no local users table. The GetUser/PutEntitlement subset satisfies
// billing.IdentityStore.
type IdentityDirectory interface {
	// GetUser returns the user with their entitlement projected out of the
	// provider's metadata bag.
	GetUser(ctx context.Context, userID string) (types.DirectoryUser, error)

	// ListUsers returns a page of users for the admin directory. Page numbers
	// start at 1.
	ListUsers(ctx context.Context, page, perPage int) ([]types.DirectoryUser, error)

	// CreateUser provisions a new user with the given role.
	CreateUser(ctx context.Context, email, password string, role types.UserRole) (types.DirectoryUser, error)

	// PutEntitlement overwrites the user's entitlement metadata wholesale.
	PutEntitlement(ctx context.Context, userID string, ent types.UserEntitlement) error

	// SetRole updates the user's application role.
	SetRole(ctx context.Context, userID string, role types.UserRole) error
}

// ---------------------------------------------------------------------------
// Payment Integration (Paystack primary, Stripe alternate)
// ---------------------------------------------------------------------------

// PaymentGateway abstracts a hosted checkout provider. InitializeCheckout
// satisfies billing.CheckoutGateway; VerifyTransaction backs the synchronous
// verify endpoint, producing the same normalized PaymentEvent the webhook
// path does.
type PaymentGateway interface {
	InitializeCheckout(ctx context.Context, params billing.CheckoutParams) (types.CheckoutIntent, error)

	// VerifyTransaction confirms a payment by reference. A transaction that
	// exists but did not succeed returns ErrCodePaymentVerificationFailed.
	VerifyTransaction(ctx context.Context, reference string) (types.PaymentEvent, error)
}

// WebhookVerifier abstracts webhook signature checking for a gateway.
type WebhookVerifier interface {
	// Verify validates a webhook payload against the provided signature
	// header and signing secret. Returns nil on success.
	Verify(payload []byte, header string, secret string) error
}

// Gateway event type constants prevent magic strings in webhook handlers.
const (
	EventPaystackChargeSuccess   = "charge.success"
	EventStripeCheckoutCompleted = "checkout.session.completed"
)

// ---------------------------------------------------------------------------
// Video Transport Integration
// ---------------------------------------------------------------------------

// VideoService abstracts the hosted video transport provider. Calls are
// identified by the meeting ID; the provider owns the live call state and
// recordings.
type VideoService interface {
	// MintUserToken issues a short-lived client token the browser SDK uses to
	// join calls as the given user.
	MintUserToken(userID string) (token string, err error)

	// CreateCall registers a call with the provider under the meeting ID.
	CreateCall(ctx context.Context, callID, createdBy string) error

	// GetCall returns the live snapshot of a call. The entitlement paths only
	// read the participant count.
	GetCall(ctx context.Context, callID string) (types.CallSnapshot, error)

	// ListRecordings returns the stored recordings for a call.
	ListRecordings(ctx context.Context, callID string) ([]types.Recording, error)
}
