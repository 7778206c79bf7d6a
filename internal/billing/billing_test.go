package billing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"huddle/internal/types"
)

// Shared test doubles for the billing package.

type nopLogger struct{}

func (nopLogger) Info(string, ...any)        {}
func (nopLogger) Error(string, ...any)       {}
func (nopLogger) Warn(string, ...any)        {}
func (l nopLogger) With(...any) types.Logger { return l }

// fixedClock returns a constant instant from Now.
type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

// staticCatalog is a CatalogSource serving a fixed catalog.
type staticCatalog struct {
	catalog types.PlanCatalog
}

func (s staticCatalog) Resolve(context.Context) types.PlanCatalog { return s.catalog }

func defaultSource() CatalogSource {
	return staticCatalog{catalog: DefaultCatalog()}
}

// fakeIdentity is an in-memory IdentityStore recording writes.
type fakeIdentity struct {
	users    map[string]types.DirectoryUser
	puts     []types.UserEntitlement
	getErr   error
	putErr   error
}

func newFakeIdentity(users ...types.DirectoryUser) *fakeIdentity {
	m := make(map[string]types.DirectoryUser, len(users))
	for _, u := range users {
		m[u.ID] = u
	}
	return &fakeIdentity{users: m}
}

func (f *fakeIdentity) GetUser(_ context.Context, userID string) (types.DirectoryUser, error) {
	if f.getErr != nil {
		return types.DirectoryUser{}, f.getErr
	}
	u, ok := f.users[userID]
	if !ok {
		return types.DirectoryUser{}, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return u, nil
}

func (f *fakeIdentity) PutEntitlement(_ context.Context, userID string, ent types.UserEntitlement) error {
	if f.putErr != nil {
		return f.putErr
	}
	u := f.users[userID]
	u.Entitlement = ent
	f.users[userID] = u
	f.puts = append(f.puts, ent)
	return nil
}

// fakeLedger records references and reports duplicates.
type fakeLedger struct {
	seen map[string]bool
	err  error
}

func newFakeLedger() *fakeLedger { return &fakeLedger{seen: map[string]bool{}} }

func (f *fakeLedger) Record(_ context.Context, ev types.PaymentEvent) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen[ev.Reference] {
		return false, nil
	}
	f.seen[ev.Reference] = true
	return true, nil
}

// fakePublisher captures published lifecycle events.
type fakePublisher struct {
	events []types.LifecycleEvent
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, event types.LifecycleEvent, _ string, _ map[string]any) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

// fakeGateway returns a canned checkout intent.
type fakeGateway struct {
	intent types.CheckoutIntent
	params []CheckoutParams
	err    error
}

func (f *fakeGateway) InitializeCheckout(_ context.Context, params CheckoutParams) (types.CheckoutIntent, error) {
	f.params = append(f.params, params)
	if f.err != nil {
		return types.CheckoutIntent{}, f.err
	}
	return f.intent, nil
}

// fakeCatalogRepo is an in-memory CatalogRepo.
type fakeCatalogRepo struct {
	raw    json.RawMessage
	getErr error
	setErr error
	setBy  string
}

func (f *fakeCatalogRepo) GetOverride(context.Context) (json.RawMessage, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.raw, nil
}

func (f *fakeCatalogRepo) SetOverride(_ context.Context, catalog types.PlanCatalog, updatedBy string) error {
	if f.setErr != nil {
		return f.setErr
	}
	raw, err := json.Marshal(catalog)
	if err != nil {
		return err
	}
	f.raw = raw
	f.setBy = updatedBy
	return nil
}

var errInfra = errors.New("connection refused")

func adminContext() context.Context {
	return types.WithActor(context.Background(), types.Actor{
		ID:   "admin-1",
		Type: types.ActorTypeUser,
		Role: types.RoleAdmin,
	})
}
