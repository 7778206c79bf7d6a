package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All handlers MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationMissingField  ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidPlan   ErrorCode = "validation_invalid_plan"
	ErrCodeValidationInvalidEmail  ErrorCode = "validation_invalid_email"
	ErrCodeValidationCatalogShape  ErrorCode = "validation_invalid_catalog"
	ErrCodeValidationInvalidScore  ErrorCode = "validation_invalid_quality_score"
	ErrCodeValidationInvalidAmount ErrorCode = "validation_invalid_amount"
	ErrCodeValidationBody          ErrorCode = "validation_invalid_body"

	// Auth (401)
	ErrCodeAuthTokenMissing     ErrorCode = "auth_token_missing"
	ErrCodeAuthTokenInvalid     ErrorCode = "auth_token_invalid"
	ErrCodeAuthTokenExpired     ErrorCode = "auth_token_expired"
	ErrCodeAuthKeyRevoked       ErrorCode = "auth_key_revoked"
	ErrCodeAuthInvalidSignature ErrorCode = "auth_invalid_webhook_signature"

	// Permission (403)
	ErrCodePermissionRole ErrorCode = "permission_role_insufficient"

	// Entitlement denials (403). These double as Decision reasons; when a
	// handler surfaces a denial as an error they stay recoverable, never fatal.
	ErrCodeEntitlementParticipantLimit ErrorCode = "entitlement_participant_limit_reached"
	ErrCodeEntitlementTimeLimit        ErrorCode = "entitlement_meeting_time_limit_reached"
	ErrCodeEntitlementUpgradeRequired  ErrorCode = "entitlement_upgrade_required"

	// Rate limiting (429)
	ErrCodeRateLimit ErrorCode = "rate_limit_exceeded"

	// Not Found (404)
	ErrCodeNotFoundUser    ErrorCode = "not_found_user"
	ErrCodeNotFoundMeeting ErrorCode = "not_found_meeting"
	ErrCodeNotFoundAPIKey  ErrorCode = "not_found_api_key"

	// Conflict (409)
	ErrCodeConflictConcurrent ErrorCode = "conflict_concurrent_modification"

	// Config store
	ErrCodeConfigUnavailable    ErrorCode = "config_unavailable"
	ErrCodeConfigNoAdmin        ErrorCode = "config_no_admin_principal"
	ErrCodeConfigMissingSetting ErrorCode = "config_missing_setting"

	// Billing / payments
	ErrCodeTrialChargeDisabled       ErrorCode = "billing_trial_charge_disabled"
	ErrCodePaymentVerificationFailed ErrorCode = "billing_payment_verification_failed"
	ErrCodePaymentDeclined           ErrorCode = "billing_payment_declined"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamIdentity   ErrorCode = "upstream_identity_unavailable"
	ErrCodeUpstreamPayment    ErrorCode = "upstream_payment_unavailable"
	ErrCodeUpstreamVideo      ErrorCode = "upstream_video_unavailable"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the API layer to translate AppErrors into HTTP responses.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized // 401
	case strings.HasPrefix(s, "permission_"):
		return http.StatusForbidden // 403
	case strings.HasPrefix(s, "entitlement_"):
		return http.StatusForbidden // 403
	case s == string(ErrCodeRateLimit):
		return http.StatusTooManyRequests // 429
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict // 409
	case s == string(ErrCodeConfigUnavailable):
		return http.StatusServiceUnavailable // 503
	case s == string(ErrCodeConfigNoAdmin):
		return http.StatusConflict // 409
	case s == string(ErrCodeConfigMissingSetting):
		return http.StatusInternalServerError // 500
	case s == string(ErrCodeTrialChargeDisabled):
		return http.StatusConflict // 409
	case s == string(ErrCodePaymentVerificationFailed),
		s == string(ErrCodePaymentDeclined):
		return http.StatusPaymentRequired // 402
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the standard application error type used throughout the platform.
// All domain and handler errors should be expressed as AppError to enable
// consistent error formatting, HTTP status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
// This is useful for adding context without mutating the original error.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with the given code, message,
// underlying error, and structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
