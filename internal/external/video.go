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

	"github.com/golang-jwt/jwt/v5"

	"huddle/internal/types"
)

// videoCallType is the provider call type all meetings use.
const videoCallType = "default"

// VideoClientConfig holds the configuration for creating a VideoClient.
type VideoClientConfig struct {
	BaseURL   string
	APIKey    string
	APISecret string
	TokenTTL  time.Duration
	Logger    *slog.Logger
}

// VideoClient talks to the hosted video transport provider. Server-to-server
// requests authenticate with a JWT minted from the API secret; user tokens
// for the browser SDK are minted the same way with the user's ID and a short
// TTL.
type VideoClient struct {
	base      *BaseClient
	baseURL   string
	apiKey    string
	apiSecret []byte
	tokenTTL  time.Duration
	logger    *slog.Logger
	nowFn     func() time.Time
}

// NewVideoClient creates a VideoClient over the given HTTP client.
func NewVideoClient(httpClient *http.Client, cfg VideoClientConfig) *VideoClient {
	base := NewBaseClient(
		httpClient,
		"video",
		DefaultRetryPolicy(),
		"Huddle/1.0",
	)
	return newVideoClient(base, cfg)
}

// NewVideoClientWithBase creates a VideoClient with a pre-configured
// BaseClient. Useful in tests to control retry and breaker behavior.
func NewVideoClientWithBase(base *BaseClient, cfg VideoClientConfig) *VideoClient {
	return newVideoClient(base, cfg)
}

func newVideoClient(base *BaseClient, cfg VideoClientConfig) *VideoClient {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &VideoClient{
		base:      base,
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		apiSecret: []byte(cfg.APISecret),
		tokenTTL:  ttl,
		logger:    logger,
		nowFn:     time.Now,
	}
}

// MintUserToken issues a short-lived HS256 token the browser SDK presents to
// join calls as the given user.
func (c *VideoClient) MintUserToken(userID string) (string, error) {
	if userID == "" {
		return "", types.NewAppError(
			types.ErrCodeValidationMissingField,
			"user ID is required to mint a video token",
			nil,
		)
	}

	now := c.nowFn()
	claims := jwt.MapClaims{
		"user_id": userID,
		"iat":     now.Unix(),
		"exp":     now.Add(c.tokenTTL).Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.apiSecret)
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to sign video user token",
			err,
		)
	}
	return token, nil
}

// CreateCall registers a call with the provider under the meeting ID. The
// provider treats repeated creates for the same ID as get-or-create, so this
// is safe to retry.
func (c *VideoClient) CreateCall(ctx context.Context, callID, createdBy string) error {
	body := map[string]any{
		"data": map[string]any{
			"created_by_id": createdBy,
		},
	}

	resp, err := c.doJSON(ctx, http.MethodPost, c.callPath(callID, ""), body)
	if err != nil {
		return c.wrapTransportError("CreateCall", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return c.handleErrorResponse(resp, "CreateCall")
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// GetCall returns the live snapshot of a call. The entitlement paths only
// read the participant count.
func (c *VideoClient) GetCall(ctx context.Context, callID string) (types.CallSnapshot, error) {
	resp, err := c.doJSON(ctx, http.MethodGet, c.callPath(callID, ""), nil)
	if err != nil {
		return types.CallSnapshot{}, c.wrapTransportError("GetCall", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return types.CallSnapshot{}, types.NewAppError(
			types.ErrCodeNotFoundMeeting,
			fmt.Sprintf("call %s not found at video provider", callID),
			nil,
		)
	}
	if resp.StatusCode != http.StatusOK {
		return types.CallSnapshot{}, c.handleErrorResponse(resp, "GetCall")
	}

	var call videoCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&call); err != nil {
		return types.CallSnapshot{}, types.NewAppError(
			types.ErrCodeUpstreamVideo,
			"failed to decode video call response",
			err,
		)
	}

	return types.CallSnapshot{
		CallID:           callID,
		ParticipantCount: len(call.Session.Participants),
	}, nil
}

// ListRecordings returns the stored recordings for a call.
func (c *VideoClient) ListRecordings(ctx context.Context, callID string) ([]types.Recording, error) {
	resp, err := c.doJSON(ctx, http.MethodGet, c.callPath(callID, "/recordings"), nil)
	if err != nil {
		return nil, c.wrapTransportError("ListRecordings", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp, "ListRecordings")
	}

	var list videoRecordingList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamVideo,
			"failed to decode video recordings response",
			err,
		)
	}

	recordings := make([]types.Recording, 0, len(list.Recordings))
	for _, r := range list.Recordings {
		recordings = append(recordings, types.Recording{
			Filename:  r.Filename,
			URL:       r.URL,
			StartedAt: r.StartTime,
			EndedAt:   r.EndTime,
		})
	}
	return recordings, nil
}

// callPath builds the provider path for a call plus an optional subresource,
// including the API key query parameter the provider requires on every
// request.
func (c *VideoClient) callPath(callID, suffix string) string {
	return fmt.Sprintf("/video/call/%s/%s%s?api_key=%s",
		videoCallType, url.PathEscape(callID), suffix, url.QueryEscape(c.apiKey))
}

// doJSON performs a server-authenticated request with an optional JSON body.
func (c *VideoClient) doJSON(ctx context.Context, method, path string, body any) (*http.Response, error) {
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

	serverToken, err := c.mintServerToken()
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", serverToken)
	req.Header.Set("stream-auth-type", "jwt")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.base.Do(req)
}

// mintServerToken issues the short-lived server-side JWT the provider
// requires on admin requests.
func (c *VideoClient) mintServerToken() (string, error) {
	now := c.nowFn()
	claims := jwt.MapClaims{
		"iss": "huddle-server",
		"iat": now.Unix(),
		"exp": now.Add(5 * time.Minute).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.apiSecret)
}

// handleErrorResponse maps a non-2xx provider response to an AppError.
func (c *VideoClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var provErr struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &provErr)

	return types.NewAppError(
		types.ErrCodeUpstreamVideo,
		fmt.Sprintf("%s: video provider returned %d: %s", operation, resp.StatusCode, provErr.Message),
		nil,
	)
}

// wrapTransportError passes BaseClient AppErrors through and wraps everything
// else as a video upstream failure.
func (c *VideoClient) wrapTransportError(operation string, err error) error {
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamVideo,
		fmt.Sprintf("%s: video request failed: %v", operation, err),
		err,
	)
}

// ---------------------------------------------------------------------------
// Video Provider Response Types
// ---------------------------------------------------------------------------

type videoCallResponse struct {
	Call struct {
		ID string `json:"id"`
	} `json:"call"`
	Session struct {
		Participants []struct {
			UserID string `json:"user_id"`
		} `json:"participants"`
	} `json:"session"`
}

type videoRecordingList struct {
	Recordings []struct {
		Filename  string    `json:"filename"`
		URL       string    `json:"url"`
		StartTime time.Time `json:"start_time"`
		EndTime   time.Time `json:"end_time"`
	} `json:"recordings"`
}
