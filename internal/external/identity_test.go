package external

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"huddle/internal/types"
)

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

func newTestIdentityClient(t *testing.T, serverURL string) *IdentityClient {
	t.Helper()
	base := NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"test-identity",
		RetryPolicy{
			MaxRetries: 0, // No retries in tests for deterministic behavior
			MinWait:    1 * time.Millisecond,
			MaxWait:    10 * time.Millisecond,
		},
		"Huddle-Test/1.0",
		WithSleepFunc(noopSleep),
	)
	return NewIdentityClientWithBase(base, IdentityClientConfig{
		BaseURL:        serverURL,
		ServiceRoleKey: "service-role-test-key",
	})
}

// ---------------------------------------------------------------------------
// GetUser Tests
// ---------------------------------------------------------------------------

func TestGetUser_ProjectsEntitlement(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/users/user-1" {
			t.Errorf("expected path /admin/users/user-1, got %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer service-role-test-key" {
			t.Errorf("expected service role bearer token, got %s", auth)
		}
		if apikey := r.Header.Get("apikey"); apikey != "service-role-test-key" {
			t.Errorf("expected apikey header, got %s", apikey)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":            "user-1",
			"email":         "alice@example.com",
			"created_at":    "2026-01-10T09:00:00Z",
			"user_metadata": map[string]any{"name": "Alice"},
			"app_metadata": map[string]any{
				"role": "admin",
				"billing": map[string]any{
					"plan":   "pro",
					"active": true,
				},
			},
		})
	}))
	defer server.Close()

	client := newTestIdentityClient(t, server.URL)

	user, err := client.GetUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if user.ID != "user-1" {
		t.Errorf("expected ID user-1, got %s", user.ID)
	}
	if user.Name != "Alice" {
		t.Errorf("expected name Alice, got %s", user.Name)
	}
	if user.Role != types.RoleAdmin {
		t.Errorf("expected admin role, got %s", user.Role)
	}
	if user.Entitlement.Plan != types.PlanPro {
		t.Errorf("expected pro plan, got %s", user.Entitlement.Plan)
	}
	if !user.Entitlement.Active {
		t.Error("expected active entitlement")
	}
	if user.Entitlement.UserID != "user-1" {
		t.Errorf("expected entitlement user ID forced to user-1, got %s", user.Entitlement.UserID)
	}
}

func TestGetUser_MissingEntitlementProjectsFree(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":    "user-2",
			"email": "bob@example.com",
		})
	}))
	defer server.Close()

	client := newTestIdentityClient(t, server.URL)

	user, err := client.GetUser(context.Background(), "user-2")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if user.Role != types.RoleMember {
		t.Errorf("expected member role, got %s", user.Role)
	}
	if user.Entitlement.Plan != types.PlanFree {
		t.Errorf("expected free plan for missing entitlement, got %s", user.Entitlement.Plan)
	}
	if user.Entitlement.Active {
		t.Error("expected inactive entitlement for missing document")
	}
}

func TestGetUser_CorruptPlanProjectsFree(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":    "user-3",
			"email": "eve@example.com",
			"app_metadata": map[string]any{
				"billing": map[string]any{
					"plan":   "platinum-deluxe",
					"active": true,
				},
			},
		})
	}))
	defer server.Close()

	client := newTestIdentityClient(t, server.URL)

	user, err := client.GetUser(context.Background(), "user-3")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	// An unknown tier must never grant elevated limits.
	if user.Entitlement.Plan != types.PlanFree {
		t.Errorf("expected unknown plan coerced to free, got %s", user.Entitlement.Plan)
	}
}

func TestGetUser_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestIdentityClient(t, server.URL)

	_, err := client.GetUser(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error for missing user, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeNotFoundUser {
		t.Errorf("expected %s, got %s", types.ErrCodeNotFoundUser, appErr.Code)
	}
}

func TestGetUser_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"msg":"invalid service role key"}`))
	}))
	defer server.Close()

	client := newTestIdentityClient(t, server.URL)

	_, err := client.GetUser(context.Background(), "user-1")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeUpstreamIdentity {
		t.Errorf("expected %s, got %s", types.ErrCodeUpstreamIdentity, appErr.Code)
	}
}

// ---------------------------------------------------------------------------
// ListUsers Tests
// ---------------------------------------------------------------------------

func TestListUsers_PaginationDefaults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("page"); got != "1" {
			t.Errorf("expected default page 1, got %s", got)
		}
		if got := r.URL.Query().Get("per_page"); got != "50" {
			t.Errorf("expected default per_page 50, got %s", got)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"users": []map[string]any{
				{"id": "u1", "email": "a@example.com"},
				{"id": "u2", "email": "b@example.com", "app_metadata": map[string]any{
					"billing": map[string]any{"plan": "pro", "active": true},
				}},
			},
		})
	}))
	defer server.Close()

	client := newTestIdentityClient(t, server.URL)

	users, err := client.ListUsers(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
	if users[0].Entitlement.Plan != types.PlanFree {
		t.Errorf("expected free plan for u1, got %s", users[0].Entitlement.Plan)
	}
	if users[1].Entitlement.Plan != types.PlanPro {
		t.Errorf("expected pro plan for u2, got %s", users[1].Entitlement.Plan)
	}
}

// ---------------------------------------------------------------------------
// CreateUser Tests
// ---------------------------------------------------------------------------

func TestCreateUser_ConfirmsEmailAndSetsRole(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}

		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "new@example.com" {
			t.Errorf("expected email new@example.com, got %v", body["email"])
		}
		if body["email_confirm"] != true {
			t.Error("expected email_confirm true")
		}
		am, _ := body["app_metadata"].(map[string]any)
		if am["role"] != "admin" {
			t.Errorf("expected role admin in app_metadata, got %v", am["role"])
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"id":           "new-user-id",
			"email":        "new@example.com",
			"app_metadata": map[string]any{"role": "admin"},
		})
	}))
	defer server.Close()

	client := newTestIdentityClient(t, server.URL)

	user, err := client.CreateUser(context.Background(), "new@example.com", "s3cret-pass", types.RoleAdmin)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if user.ID != "new-user-id" {
		t.Errorf("expected ID new-user-id, got %s", user.ID)
	}
	if user.Role != types.RoleAdmin {
		t.Errorf("expected admin role, got %s", user.Role)
	}
}

// ---------------------------------------------------------------------------
// PutEntitlement Tests
// ---------------------------------------------------------------------------

func TestPutEntitlement_WritesBillingKeyWholesale(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		if r.URL.Path != "/admin/users/user-9" {
			t.Errorf("expected path /admin/users/user-9, got %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&captured)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestIdentityClient(t, server.URL)

	ent := types.UserEntitlement{
		UserID: "someone-else", // must be overwritten with the path user
		Plan:   types.PlanPro,
		Active: true,
	}
	if err := client.PutEntitlement(context.Background(), "user-9", ent); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	am, _ := captured["app_metadata"].(map[string]any)
	billing, _ := am["billing"].(map[string]any)
	if billing == nil {
		t.Fatalf("expected app_metadata.billing in request body, got %v", captured)
	}
	if billing["user_id"] != "user-9" {
		t.Errorf("expected entitlement user_id forced to user-9, got %v", billing["user_id"])
	}
	if billing["plan"] != "pro" {
		t.Errorf("expected plan pro, got %v", billing["plan"])
	}
}

func TestPutEntitlement_UserNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestIdentityClient(t, server.URL)

	err := client.PutEntitlement(context.Background(), "ghost", types.UserEntitlement{Plan: types.PlanPro})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeNotFoundUser {
		t.Errorf("expected %s, got %s", types.ErrCodeNotFoundUser, appErr.Code)
	}
}

// ---------------------------------------------------------------------------
// SetRole Tests
// ---------------------------------------------------------------------------

func TestSetRole_WritesRoleKey(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestIdentityClient(t, server.URL)

	if err := client.SetRole(context.Background(), "user-1", types.RoleAdmin); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	am, _ := captured["app_metadata"].(map[string]any)
	if am["role"] != "admin" {
		t.Errorf("expected role admin in app_metadata, got %v", am["role"])
	}
	if _, hasBilling := am["billing"]; hasBilling {
		t.Error("role update must not touch the billing key")
	}
}
