package handler

import (
	"context"
	"net/http"

	"github.com/GoPolymarket/guildgate/internal/middleware"
	"github.com/GoPolymarket/guildgate/internal/model"
	"github.com/GoPolymarket/guildgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/guildgate/internal/tenancy"
	"github.com/gin-gonic/gin"
)

type CommunityResolver interface {
	Resolve(ctx context.Context, id string) (*model.Community, error)
}

type CommunityHandler struct {
	communities CommunityResolver
}

func NewCommunityHandler(communities CommunityResolver) *CommunityHandler {
	return &CommunityHandler{communities: communities}
}

// Me GET /v1/me
func (h *CommunityHandler) Me(c *gin.Context) {
	tc, err := middleware.TenantFrom(c)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, model.MeResponse{
		CommunityID:      tc.CommunityID,
		UserID:           tc.UserID,
		UserRole:         string(tc.UserRole),
		SubscriptionTier: tc.SubscriptionTier,
		ExternalGuildID:  tc.ExternalGuildID,
		RequestID:        tc.RequestID,
	})
}

// Public GET /public/community, reachable without credentials.
func (h *CommunityHandler) Public(c *gin.Context) {
	if tenancy.IsAnonymous(c.Request.Context()) {
		c.JSON(http.StatusOK, gin.H{"anonymous": true})
		return
	}
	tc, err := middleware.TenantFrom(c)
	if err != nil {
		c.Error(err)
		return
	}
	community, err := h.communities.Resolve(c.Request.Context(), tc.CommunityID)
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, "community lookup failed", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"anonymous":       false,
		"id":              community.ID,
		"name":            community.Name,
		"tier":            community.SubscriptionTier,
		"externalGuildId": community.ExternalGuildID,
	})
}
