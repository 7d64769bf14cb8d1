package handler

import (
	"net/http"

	"github.com/GoPolymarket/guildgate/internal/model"
	"github.com/GoPolymarket/guildgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/guildgate/internal/tenancy"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type AuditHandler struct {
	db *gorm.DB
}

func NewAuditHandler(db *gorm.DB) *AuditHandler {
	return &AuditHandler{db: db}
}

// List GET /v1/communities/:communityId/audit
func (h *AuditHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	scope, err := tenancy.NewScope(ctx, h.db)
	if err != nil {
		c.Error(err)
		return
	}

	limit := queryInt(c, "limit", 100)
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	from, to, err := timeRange(c)
	if err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	f := tenancy.Filter{
		Where:  map[string]any{},
		Order:  `"timestamp" DESC`,
		Limit:  limit,
		Offset: queryInt(c, "offset", 0),
	}
	if risk := c.Query("risk"); risk != "" {
		f.Where["risk_level"] = risk
	}
	if status := c.Query("status"); status != "" {
		f.Where["status"] = status
	}
	if c.Query("review") == "true" {
		f.Where["requires_review"] = true
	}
	if from != nil {
		f.Conds = append(f.Conds, tenancy.Cond{Query: `"timestamp" >= ?`, Args: []any{from.UTC()}})
	}
	if to != nil {
		f.Conds = append(f.Conds, tenancy.Cond{Query: `"timestamp" <= ?`, Args: []any{to.UTC()}})
	}

	records := make([]model.AuditRecord, 0)
	if err := scope.Find(ctx, &records, f); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": records})
}
