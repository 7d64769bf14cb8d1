package middleware

import (
	"github.com/GoPolymarket/guildgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/guildgate/internal/pkg/metrics"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type LimiterSource interface {
	GetLimiter(communityID string) *rate.Limiter
}

// RateLimit applies the caller community's token bucket. Use after RequireAuth.
func RateLimit(src LimiterSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		tc, err := TenantFrom(c)
		if err != nil {
			c.Error(err)
			c.Abort()
			return
		}

		limiter := src.GetLimiter(tc.CommunityID)
		if limiter == nil {
			// 社区尚未注册限流器时放行
			c.Next()
			return
		}

		if !limiter.Allow() {
			metrics.RateLimited.WithLabelValues(tc.CommunityID).Inc()
			c.Header("Retry-After", "1")
			c.Error(apperrors.New(apperrors.ErrRateLimited, "rate limit exceeded", nil).
				WithDetail("retryAfter", "1s"))
			c.Abort()
			return
		}

		c.Next()
	}
}
