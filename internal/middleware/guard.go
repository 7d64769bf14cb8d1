package middleware

import (
	"context"

	"github.com/GoPolymarket/guildgate/internal/model"
	"github.com/GoPolymarket/guildgate/internal/pkg/metrics"
	"github.com/GoPolymarket/guildgate/internal/service"
	"github.com/GoPolymarket/guildgate/internal/tenancy"
	"github.com/gin-gonic/gin"
)

// CrossTenantRecorder receives attempts to reach another community.
type CrossTenantRecorder interface {
	RecordCrossTenantAttempt(tc tenancy.TenantContext, info service.RequestInfo, targetCommunityID, resourceType, resourceID string) bool
}

// ContextMember holds the caller's *model.Member once a guard has loaded it.
const ContextMember = "member"

func RequirePermission(g *tenancy.Guard, permission string) gin.HandlerFunc {
	return guarded(g, func(ctx context.Context, m *model.Member) error {
		return tenancy.CheckPermission(ctx, m, permission)
	})
}

func RequireAdmin(g *tenancy.Guard) gin.HandlerFunc {
	return guarded(g, tenancy.CheckAdmin)
}

func RequireOwner(g *tenancy.Guard) gin.HandlerFunc {
	return guarded(g, tenancy.CheckOwner)
}

// guarded loads the caller's membership once, keeps it on the gin context for
// the audit record, then applies check.
func guarded(g *tenancy.Guard, check func(context.Context, *model.Member) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		m, err := g.Member(ctx)
		if err == nil {
			if m != nil {
				c.Set(ContextMember, m)
			}
			err = check(ctx, m)
		}
		if err != nil {
			c.Error(err)
			c.Abort()
			return
		}
		c.Next()
	}
}

// MemberFrom returns the member stashed by a guard, if any.
func MemberFrom(c *gin.Context) *model.Member {
	if val, exists := c.Get(ContextMember); exists {
		if m, ok := val.(*model.Member); ok {
			return m
		}
	}
	return nil
}

// EnforceCommunityParam rejects routes whose path names a community other
// than the caller's, and reports the attempt.
func EnforceCommunityParam(param string, recorder CrossTenantRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		tc, err := TenantFrom(c)
		if err != nil {
			c.Error(err)
			c.Abort()
			return
		}
		target := c.Param(param)
		if target == tc.CommunityID {
			c.Next()
			return
		}

		metrics.TenantViolations.WithLabelValues(string(tenancy.ReasonCommunityMismatch)).Inc()
		if recorder != nil {
			recorder.RecordCrossTenantAttempt(tc, RequestInfoFrom(c), target, "Community", target)
		}
		c.Error(&tenancy.TenantViolationError{
			Reason:   tenancy.ReasonCommunityMismatch,
			Expected: tc.CommunityID,
			Got:      target,
			Resource: "community",
		})
		c.Abort()
	}
}
