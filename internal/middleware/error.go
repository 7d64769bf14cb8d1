package middleware

import (
	"errors"

	"github.com/GoPolymarket/guildgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/guildgate/internal/pkg/logger"
	"github.com/GoPolymarket/guildgate/internal/tenancy"
	"github.com/gin-gonic/gin"
)

func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only handle if there are errors
		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		appErr := ToAppError(c.Errors.Last().Err)

		logFields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"code", appErr.Type,
			"client_ip", c.ClientIP(),
			"request_id", RequestIDFrom(c),
		}

		if appErr.HTTPStatus >= 500 {
			logger.LogError(c.Request.Context(), appErr, "Internal Server Error", logFields...)
		} else {
			logger.Warn(appErr.Message, logFields...)
		}

		c.JSON(appErr.HTTPStatus, appErr)
	}
}

// ToAppError maps any handler error onto a response code.
func ToAppError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var violation *tenancy.TenantViolationError
	if errors.As(err, &violation) {
		switch violation.Reason {
		case tenancy.ReasonPermission:
			return apperrors.NewPermissionDenied(violation.Resource)
		case tenancy.ReasonAdminRequired:
			return apperrors.New(apperrors.ErrAdminRequired, "admin role required", err)
		case tenancy.ReasonOwnerRequired:
			return apperrors.New(apperrors.ErrOwnerRequired, "owner role required", err)
		default:
			return apperrors.New(apperrors.ErrTenantViolation, "operation is outside the caller's community", err).
				WithDetail("reason", string(violation.Reason))
		}
	}

	var noCtx *tenancy.NoContextError
	if errors.As(err, &noCtx) {
		return apperrors.New(apperrors.ErrTenantViolation, "tenant context required", err).
			WithDetail("reason", string(tenancy.ReasonMissingContext))
	}

	// Unknown error, wrap as Internal
	return apperrors.New(apperrors.ErrInternal, err.Error(), err)
}
