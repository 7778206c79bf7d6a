package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"huddle/internal/types"
)

// entitlementMetadataKey is the app_metadata key the entitlement document
// lives under. The provider merges top-level app_metadata keys on update, so
// writing this key replaces the whole entitlement wholesale without touching
// unrelated metadata.
const entitlementMetadataKey = "billing"

// IdentityClientConfig holds the configuration for creating an IdentityClient.
type IdentityClientConfig struct {
	BaseURL        string
	ServiceRoleKey string
	Logger         *slog.Logger
}

// IdentityClient talks to the hosted identity provider's admin REST API. The
// provider is the system of record for users; each user's entitlement is a
// JSON document in their app_metadata bag, projected into the strongly-typed
// types.UserEntitlement at this boundary.
type IdentityClient struct {
	base           *BaseClient
	baseURL        string
	serviceRoleKey string
	logger         *slog.Logger
}

// NewIdentityClient creates an IdentityClient over the given HTTP client.
func NewIdentityClient(httpClient *http.Client, cfg IdentityClientConfig) *IdentityClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"identity",
		DefaultRetryPolicy(),
		"Huddle/1.0",
	)

	return &IdentityClient{
		base:           base,
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		serviceRoleKey: cfg.ServiceRoleKey,
		logger:         logger,
	}
}

// NewIdentityClientWithBase creates an IdentityClient with a pre-configured
// BaseClient. Useful in tests to control retry and breaker behavior.
func NewIdentityClientWithBase(base *BaseClient, cfg IdentityClientConfig) *IdentityClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityClient{
		base:           base,
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		serviceRoleKey: cfg.ServiceRoleKey,
		logger:         logger,
	}
}

// GetUser returns the user with their entitlement projected out of the
// metadata bag. A user with no entitlement document gets the zero projection:
// free plan, inactive, no trial.
func (c *IdentityClient) GetUser(ctx context.Context, userID string) (types.DirectoryUser, error) {
	resp, err := c.doJSON(ctx, http.MethodGet, "/admin/users/"+url.PathEscape(userID), nil)
	if err != nil {
		return types.DirectoryUser{}, c.wrapTransportError("GetUser", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return types.DirectoryUser{}, types.NewAppError(
			types.ErrCodeNotFoundUser,
			fmt.Sprintf("user %s not found in identity provider", userID),
			nil,
		)
	}
	if resp.StatusCode != http.StatusOK {
		return types.DirectoryUser{}, c.handleErrorResponse(resp, "GetUser")
	}

	var raw identityUser
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return types.DirectoryUser{}, types.NewAppError(
			types.ErrCodeUpstreamIdentity,
			"failed to decode identity user response",
			err,
		)
	}
	return projectUser(raw), nil
}

// ListUsers returns a page of users for the admin directory. Page numbers
// start at 1.
func (c *IdentityClient) ListUsers(ctx context.Context, page, perPage int) ([]types.DirectoryUser, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 50
	}

	path := fmt.Sprintf("/admin/users?page=%d&per_page=%d", page, perPage)
	resp, err := c.doJSON(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, c.wrapTransportError("ListUsers", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp, "ListUsers")
	}

	var list identityUserList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamIdentity,
			"failed to decode identity user list response",
			err,
		)
	}

	users := make([]types.DirectoryUser, 0, len(list.Users))
	for _, raw := range list.Users {
		users = append(users, projectUser(raw))
	}
	return users, nil
}

// CreateUser provisions a new user with the given role. The email is marked
// confirmed so the account is immediately usable.
func (c *IdentityClient) CreateUser(ctx context.Context, email, password string, role types.UserRole) (types.DirectoryUser, error) {
	body := map[string]any{
		"email":         email,
		"password":      password,
		"email_confirm": true,
		"app_metadata": map[string]any{
			"role": string(role),
		},
	}

	resp, err := c.doJSON(ctx, http.MethodPost, "/admin/users", body)
	if err != nil {
		return types.DirectoryUser{}, c.wrapTransportError("CreateUser", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return types.DirectoryUser{}, c.handleErrorResponse(resp, "CreateUser")
	}

	var raw identityUser
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return types.DirectoryUser{}, types.NewAppError(
			types.ErrCodeUpstreamIdentity,
			"failed to decode identity user creation response",
			err,
		)
	}
	return projectUser(raw), nil
}

// PutEntitlement overwrites the user's entitlement document wholesale. The
// write is an unconditional replace of the billing key; last writer wins.
func (c *IdentityClient) PutEntitlement(ctx context.Context, userID string, ent types.UserEntitlement) error {
	ent.UserID = userID
	body := map[string]any{
		"app_metadata": map[string]any{
			entitlementMetadataKey: ent,
		},
	}

	resp, err := c.doJSON(ctx, http.MethodPut, "/admin/users/"+url.PathEscape(userID), body)
	if err != nil {
		return c.wrapTransportError("PutEntitlement", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return types.NewAppError(
			types.ErrCodeNotFoundUser,
			fmt.Sprintf("user %s not found in identity provider", userID),
			nil,
		)
	}
	if resp.StatusCode != http.StatusOK {
		return c.handleErrorResponse(resp, "PutEntitlement")
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// SetRole updates the user's application role in the metadata bag.
func (c *IdentityClient) SetRole(ctx context.Context, userID string, role types.UserRole) error {
	body := map[string]any{
		"app_metadata": map[string]any{
			"role": string(role),
		},
	}

	resp, err := c.doJSON(ctx, http.MethodPut, "/admin/users/"+url.PathEscape(userID), body)
	if err != nil {
		return c.wrapTransportError("SetRole", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return types.NewAppError(
			types.ErrCodeNotFoundUser,
			fmt.Sprintf("user %s not found in identity provider", userID),
			nil,
		)
	}
	if resp.StatusCode != http.StatusOK {
		return c.handleErrorResponse(resp, "SetRole")
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// doJSON performs an authenticated request with an optional JSON body.
func (c *IdentityClient) doJSON(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceRoleKey)
	req.Header.Set("apikey", c.serviceRoleKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.base.Do(req)
}

// handleErrorResponse maps a non-2xx identity provider response to an AppError.
func (c *IdentityClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var provErr struct {
		Message string `json:"msg"`
		Error   string `json:"error"`
	}
	_ = json.Unmarshal(body, &provErr)

	msg := provErr.Message
	if msg == "" {
		msg = provErr.Error
	}
	return types.NewAppError(
		types.ErrCodeUpstreamIdentity,
		fmt.Sprintf("%s: identity provider returned %d: %s", operation, resp.StatusCode, msg),
		nil,
	)
}

// wrapTransportError passes BaseClient AppErrors through and wraps everything
// else as an identity upstream failure.
func (c *IdentityClient) wrapTransportError(operation string, err error) error {
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamIdentity,
		fmt.Sprintf("%s: identity request failed: %v", operation, err),
		err,
	)
}

// ---------------------------------------------------------------------------
// Provider Response Types and Projection
// ---------------------------------------------------------------------------

type identityUser struct {
	ID           string          `json:"id"`
	Email        string          `json:"email"`
	CreatedAt    time.Time       `json:"created_at"`
	UserMetadata json.RawMessage `json:"user_metadata"`
	AppMetadata  json.RawMessage `json:"app_metadata"`
}

type identityUserList struct {
	Users []identityUser `json:"users"`
}

// appMetadata is the typed slice of the provider's metadata bag this service
// reads. Unknown keys are ignored so other services can share the bag.
type appMetadata struct {
	Role    string                 `json:"role"`
	Billing *types.UserEntitlement `json:"billing"`
}

type userMetadata struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
}

// projectUser converts a provider user record into the admin-facing
// DirectoryUser, validating the entitlement document at the boundary. A
// missing or malformed entitlement projects to the zero value: free plan,
// inactive, no trial. Elevated limits are never granted from corrupt data.
func projectUser(raw identityUser) types.DirectoryUser {
	user := types.DirectoryUser{
		ID:        raw.ID,
		Email:     raw.Email,
		Role:      types.RoleMember,
		CreatedAt: raw.CreatedAt,
		Entitlement: types.UserEntitlement{
			UserID: raw.ID,
			Plan:   types.PlanFree,
		},
	}

	var um userMetadata
	if len(raw.UserMetadata) > 0 && json.Unmarshal(raw.UserMetadata, &um) == nil {
		user.Name = um.Name
		if user.Name == "" {
			user.Name = um.FullName
		}
	}

	var am appMetadata
	if len(raw.AppMetadata) > 0 && json.Unmarshal(raw.AppMetadata, &am) == nil {
		if am.Role == string(types.RoleAdmin) {
			user.Role = types.RoleAdmin
		}
		if am.Billing != nil {
			ent := *am.Billing
			ent.UserID = raw.ID
			if !types.ValidPlan(ent.Plan) {
				ent.Plan = types.PlanFree
			}
			user.Entitlement = ent
		}
	}

	return user
}
