package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/GoPolymarket/guildgate/internal/ledger"
	"github.com/GoPolymarket/guildgate/internal/middleware"
	"github.com/GoPolymarket/guildgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/guildgate/internal/pkg/logger"
	"github.com/gin-gonic/gin"
)

// LedgerHandler exposes the caller's own chain. The chain id always comes
// from the tenant context, never from the request.
type LedgerHandler struct {
	ledger *ledger.Ledger
}

func NewLedgerHandler(l *ledger.Ledger) *LedgerHandler {
	return &LedgerHandler{ledger: l}
}

func (h *LedgerHandler) filter(c *gin.Context) (ledger.Filter, bool) {
	tc, err := middleware.TenantFrom(c)
	if err != nil {
		c.Error(err)
		return ledger.Filter{}, false
	}
	from, to, err := timeRange(c)
	if err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return ledger.Filter{}, false
	}
	return ledger.Filter{
		ChainID: tc.CommunityID,
		ActorID: c.Query("actor"),
		Action:  c.Query("action"),
		Status:  c.Query("status"),
		From:    from,
		To:      to,
		Limit:   queryInt(c, "limit", 100),
		Offset:  queryInt(c, "offset", 0),
	}, true
}

// Query GET /v1/ledger
func (h *LedgerHandler) Query(c *gin.Context) {
	f, ok := h.filter(c)
	if !ok {
		return
	}
	entries, err := h.ledger.Query(c.Request.Context(), f)
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, "ledger query failed", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": entries})
}

// Count GET /v1/ledger/count
func (h *LedgerHandler) Count(c *gin.Context) {
	f, ok := h.filter(c)
	if !ok {
		return
	}
	n, err := h.ledger.Count(c.Request.Context(), f)
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, "ledger count failed", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": n})
}

// Verify GET /v1/ledger/verify. A broken chain is a 200 with valid=false.
func (h *LedgerHandler) Verify(c *gin.Context) {
	f, ok := h.filter(c)
	if !ok {
		return
	}
	res, err := h.ledger.VerifyIntegrity(c.Request.Context(), ledger.VerifyFilter{
		ChainID: f.ChainID,
		From:    f.From,
		To:      f.To,
	})
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, "ledger verification failed", err))
		return
	}
	if !res.Valid {
		logger.Warn("Ledger integrity check failed", "chain_id", res.ChainID, "entry_id", res.EntryID, "reason", res.Reason)
	}
	c.JSON(http.StatusOK, res)
}

// Export GET /v1/ledger/export streams CSV.
func (h *LedgerHandler) Export(c *gin.Context) {
	f, ok := h.filter(c)
	if !ok {
		return
	}
	filename := fmt.Sprintf("ledger-%s-%s.csv", f.ChainID, time.Now().UTC().Format("20060102"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)

	rows, err := h.ledger.ExportCSV(c.Request.Context(), c.Writer, f)
	if err != nil {
		// headers are already sent, the client sees a truncated file
		logger.LogError(c.Request.Context(), err, "Ledger export aborted", "chain_id", f.ChainID, "rows", rows)
		return
	}
	logger.Info("Ledger exported", "chain_id", f.ChainID, "rows", rows)
}
