package apperrors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type ErrorType string

const (
	ErrAuthMissing          ErrorType = "AUTH_MISSING"
	ErrAuthFormatInvalid    ErrorType = "AUTH_FORMAT_INVALID"
	ErrTokenInvalid         ErrorType = "TOKEN_INVALID"
	ErrTokenExpired         ErrorType = "TOKEN_EXPIRED"
	ErrTenantClaimMissing   ErrorType = "TENANT_CLAIM_MISSING"
	ErrUserClaimMissing     ErrorType = "USER_CLAIM_MISSING"
	ErrTenantNotFound       ErrorType = "TENANT_NOT_FOUND"
	ErrTenantDeleted        ErrorType = "TENANT_DELETED"
	ErrSubscriptionInactive ErrorType = "SUBSCRIPTION_INACTIVE"
	ErrPermissionDenied     ErrorType = "PERMISSION_DENIED"
	ErrAdminRequired        ErrorType = "ADMIN_REQUIRED"
	ErrOwnerRequired        ErrorType = "OWNER_REQUIRED"
	ErrTenantViolation      ErrorType = "TENANT_VIOLATION"
	ErrAuthConfig           ErrorType = "AUTH_CONFIG_ERROR"
	ErrTenantLookup         ErrorType = "TENANT_LOOKUP_UNAVAILABLE"
	ErrRateLimited          ErrorType = "RATE_LIMITED"
	ErrInvalidRequest       ErrorType = "INVALID_REQUEST"
	ErrInternal             ErrorType = "INTERNAL_ERROR"
	ErrNotFound             ErrorType = "NOT_FOUND"
	ErrIdempotencyConflict  ErrorType = "IDEMPOTENCY_CONFLICT"
)

// AppError is the standard error struct for the application.
// It renders as {"success":false,"error":...,"code":...} plus any details.
type AppError struct {
	Type       ErrorType
	Message    string
	Details    map[string]any
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, len(e.Details)+3)
	for k, v := range e.Details {
		body[k] = v
	}
	body["success"] = false
	body["code"] = e.Type
	body["error"] = e.PublicMessage()
	return json.Marshal(body)
}

// PublicMessage hides internal detail for server side failures.
func (e *AppError) PublicMessage() string {
	if e.HTTPStatus >= http.StatusInternalServerError {
		switch e.Type {
		case ErrAuthConfig:
			return "authentication is not configured"
		case ErrTenantLookup:
			return "community lookup unavailable, retry later"
		default:
			return "internal server error"
		}
	}
	return e.Message
}

// WithDetail returns e after attaching a response field.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
	}
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func NewTokenExpired(expiredAt time.Time) *AppError {
	return New(ErrTokenExpired, "token has expired", nil).
		WithDetail("expiredAt", expiredAt.UTC().Format(time.RFC3339))
}

func NewTokenInvalid(details string, cause error) *AppError {
	return New(ErrTokenInvalid, "token is invalid", cause).WithDetail("details", details)
}

func NewTenantDeleted(deletedAt time.Time) *AppError {
	return New(ErrTenantDeleted, "community has been deleted", nil).
		WithDetail("deletedAt", deletedAt.UTC().Format(time.RFC3339))
}

func NewSubscriptionInactive(status, tier string) *AppError {
	return New(ErrSubscriptionInactive, "community subscription is not active", nil).
		WithDetail("subscriptionStatus", status).
		WithDetail("tier", tier)
}

func NewPermissionDenied(permission string) *AppError {
	return New(ErrPermissionDenied, "missing required permission", nil).
		WithDetail("requiredPermission", permission)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrAuthMissing, ErrAuthFormatInvalid, ErrTokenInvalid, ErrTokenExpired:
		return http.StatusUnauthorized
	case ErrTenantClaimMissing, ErrUserClaimMissing, ErrTenantDeleted, ErrSubscriptionInactive,
		ErrPermissionDenied, ErrAdminRequired, ErrOwnerRequired, ErrTenantViolation:
		return http.StatusForbidden
	case ErrTenantNotFound, ErrNotFound:
		return http.StatusNotFound
	case ErrIdempotencyConflict:
		return http.StatusConflict
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrTenantLookup:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
