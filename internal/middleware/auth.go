package middleware

import (
	"context"
	"time"

	"github.com/GoPolymarket/guildgate/internal/model"
	"github.com/GoPolymarket/guildgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/guildgate/internal/service"
	"github.com/GoPolymarket/guildgate/internal/tenancy"
	"github.com/gin-gonic/gin"
)

const (
	HeaderAuthorization = "Authorization"
	ContextTenantKey    = "tenant"
)

// Authenticator validates an Authorization header value.
type Authenticator interface {
	Validate(ctx context.Context, header string) (tenancy.Claims, *model.Community, error)
}

// FailedAuthRecorder receives every rejected credential.
type FailedAuthRecorder interface {
	RecordFailedAuth(info service.RequestInfo, communityID, userID, code string, statusCode int) bool
}

// RequireAuth rejects the request unless the credential is valid, then
// publishes the TenantContext on the request context.
func RequireAuth(v Authenticator, audit FailedAuthRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		authenticate(c, v, audit)
	}
}

// OptionalAuth lets requests without an Authorization header through as
// anonymous. A header that is present must still be valid.
func OptionalAuth(v Authenticator, audit FailedAuthRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(HeaderAuthorization) == "" {
			c.Request = c.Request.WithContext(tenancy.WithAnonymous(c.Request.Context()))
			c.Next()
			return
		}
		authenticate(c, v, audit)
	}
}

func authenticate(c *gin.Context, v Authenticator, audit FailedAuthRecorder) {
	received := time.Now().UTC()
	claims, community, err := v.Validate(c.Request.Context(), c.GetHeader(HeaderAuthorization))
	if err != nil {
		appErr := apperrors.Wrap(err)
		if audit != nil {
			audit.RecordFailedAuth(RequestInfoFrom(c), "", "", string(appErr.Type), appErr.HTTPStatus)
		}
		c.Error(appErr)
		c.Abort()
		return
	}

	tc := tenancy.Establish(claims, community, tenancy.RequestMeta{
		RequestID: c.GetString(ContextRequestID),
		Received:  received,
	})
	c.Request = c.Request.WithContext(tenancy.WithContext(c.Request.Context(), tc))
	c.Set(ContextTenantKey, tc)
	c.Header(HeaderRequestID, tc.RequestID)
	c.Next()
}

// TenantFrom returns the context published by RequireAuth.
func TenantFrom(c *gin.Context) (tenancy.TenantContext, error) {
	return tenancy.Current(c.Request.Context())
}
