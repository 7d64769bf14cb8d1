package handler

import (
	"errors"
	"net/http"

	"github.com/GoPolymarket/guildgate/internal/middleware"
	"github.com/GoPolymarket/guildgate/internal/model"
	"github.com/GoPolymarket/guildgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/guildgate/internal/service"
	"github.com/gin-gonic/gin"
)

type MemberHandler struct {
	svc *service.MemberService
}

func NewMemberHandler(svc *service.MemberService) *MemberHandler {
	return &MemberHandler{svc: svc}
}

func (h *MemberHandler) List(c *gin.Context) {
	members, err := h.svc.List(c.Request.Context(), queryInt(c, "limit", 100), queryInt(c, "offset", 0))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": members})
}

func (h *MemberHandler) UpdateRole(c *gin.Context) {
	var req model.UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	before, after, err := h.svc.UpdateRole(c.Request.Context(), c.Param("userId"), req.Role)
	switch {
	case errors.Is(err, service.ErrMemberNotFound):
		c.Error(apperrors.New(apperrors.ErrNotFound, "member not found", nil))
		return
	case errors.Is(err, service.ErrOwnerRoleFixed):
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	case err != nil:
		c.Error(err)
		return
	}
	middleware.SetAuditSnapshot(c, before, after)
	c.JSON(http.StatusOK, gin.H{"success": true, "data": after})
}
