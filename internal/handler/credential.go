package handler

import (
	"errors"
	"net/http"

	"github.com/GoPolymarket/guildgate/internal/middleware"
	"github.com/GoPolymarket/guildgate/internal/model"
	"github.com/GoPolymarket/guildgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/guildgate/internal/service"
	"github.com/GoPolymarket/guildgate/internal/tenancy"
	"github.com/gin-gonic/gin"
)

type CredentialHandler struct {
	svc   *service.CredentialService
	audit *service.AuditService
}

func NewCredentialHandler(svc *service.CredentialService, audit *service.AuditService) *CredentialHandler {
	return &CredentialHandler{svc: svc, audit: audit}
}

func (h *CredentialHandler) Create(c *gin.Context) {
	tc, err := middleware.TenantFrom(c)
	if err != nil {
		c.Error(err)
		return
	}
	op := service.CredentialOp{Action: service.ActionCredentialCreate, Operation: model.OperationCreate}

	var req model.CreateCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, tc, op, apperrors.NewInvalidRequest(err.Error()))
		return
	}
	cred, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		h.fail(c, tc, op, err)
		return
	}

	op.CredentialID = cred.ID
	op.StatusCode = http.StatusCreated
	op.After = cred
	h.record(c, tc, op)
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": cred})
}

func (h *CredentialHandler) List(c *gin.Context) {
	tc, err := middleware.TenantFrom(c)
	if err != nil {
		c.Error(err)
		return
	}
	op := service.CredentialOp{Action: service.ActionCredentialRead, Operation: model.OperationRead}
	creds, err := h.svc.List(c.Request.Context())
	if err != nil {
		h.fail(c, tc, op, err)
		return
	}
	op.StatusCode = http.StatusOK
	h.record(c, tc, op)
	c.JSON(http.StatusOK, gin.H{"success": true, "data": creds})
}

func (h *CredentialHandler) Delete(c *gin.Context) {
	tc, err := middleware.TenantFrom(c)
	if err != nil {
		c.Error(err)
		return
	}
	id := c.Param("id")
	op := service.CredentialOp{Action: service.ActionCredentialDelete, Operation: model.OperationDelete, CredentialID: id}

	deleted, err := h.svc.Delete(c.Request.Context(), id)
	if errors.Is(err, service.ErrCredentialNotFound) {
		h.fail(c, tc, op, apperrors.New(apperrors.ErrNotFound, "credential not found", nil))
		return
	}
	if err != nil {
		h.fail(c, tc, op, err)
		return
	}

	op.StatusCode = http.StatusOK
	op.Before = deleted
	h.record(c, tc, op)
	c.JSON(http.StatusOK, gin.H{"success": true, "status": "deleted"})
}

func (h *CredentialHandler) fail(c *gin.Context, tc tenancy.TenantContext, op service.CredentialOp, err error) {
	appErr := middleware.ToAppError(err)
	op.StatusCode = appErr.HTTPStatus
	op.Status = model.AuditFailure
	if appErr.HTTPStatus == http.StatusUnauthorized || appErr.HTTPStatus == http.StatusForbidden {
		op.Status = model.AuditBlocked
	}
	h.record(c, tc, op)
	c.Error(appErr)
}

func (h *CredentialHandler) record(c *gin.Context, tc tenancy.TenantContext, op service.CredentialOp) {
	if h.audit == nil {
		return
	}
	h.audit.RecordCredentialOperation(tc, middleware.RequestInfoFrom(c), op)
	middleware.MarkAudited(c)
}
