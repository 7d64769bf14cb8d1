package handler

import (
	"net/http"

	"github.com/GoPolymarket/guildgate/internal/config"
	"github.com/GoPolymarket/guildgate/internal/ledger"
	"github.com/GoPolymarket/guildgate/internal/middleware"
	"github.com/GoPolymarket/guildgate/internal/model"
	"github.com/GoPolymarket/guildgate/internal/service"
	"github.com/GoPolymarket/guildgate/internal/tenancy"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

const (
	PermissionCredentialsManage = "credentials.manage"
	PermissionAuditRead         = "audit.read"
)

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Config      *config.Config
	DB          *gorm.DB
	Ledger      *ledger.Ledger
	Directory   *service.CommunityDirectory
	Validator   middleware.Authenticator
	Audit       *service.AuditService
	Idempotency middleware.IdempotencyStore
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()

	// Global Middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.ErrorHandler())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "guildgate", "audit": d.Audit.Stats()})
	})
	if d.Config != nil && d.Config.Metrics.Enabled {
		r.GET(d.Config.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	idem := d.Idempotency
	if idem == nil {
		idem = middleware.NewInMemIdempotencyStore(0)
	}

	guard := tenancy.NewGuard(d.DB)
	communityH := NewCommunityHandler(d.Directory)
	memberH := NewMemberHandler(service.NewMemberService(d.DB))
	credentialH := NewCredentialHandler(service.NewCredentialService(d.DB), d.Audit)
	auditH := NewAuditHandler(d.DB)
	ledgerH := NewLedgerHandler(d.Ledger)

	audit := func(action, resourceType string, opts ...middleware.AuditOption) gin.HandlerFunc {
		return middleware.Audit(d.Audit, action, resourceType, opts...)
	}

	// API V1 Routes
	v1 := r.Group("/v1")
	v1.Use(middleware.RequireAuth(d.Validator, d.Audit))
	v1.Use(middleware.RateLimit(d.Directory))
	{
		v1.GET("/me", communityH.Me)

		v1.GET("/members", audit(service.ActionMemberList, "Member"), memberH.List)
		v1.PATCH("/members/:userId/role",
			audit(service.ActionMemberRoleUpdate, "Member", middleware.WithResourceParam("userId")),
			middleware.RequireAdmin(guard),
			memberH.UpdateRole)

		v1.POST("/credentials",
			audit(service.ActionCredentialCreate, service.ResourceCredential),
			middleware.RequirePermission(guard, PermissionCredentialsManage),
			middleware.Idempotency(idem),
			credentialH.Create)
		v1.GET("/credentials",
			audit(service.ActionCredentialRead, service.ResourceCredential),
			middleware.RequirePermission(guard, PermissionCredentialsManage),
			credentialH.List)
		v1.DELETE("/credentials/:id",
			audit(service.ActionCredentialDelete, service.ResourceCredential, middleware.WithResourceParam("id")),
			middleware.RequireOwner(guard),
			credentialH.Delete)

		v1.GET("/communities/:communityId/audit",
			middleware.EnforceCommunityParam("communityId", d.Audit),
			audit(service.ActionAuditRead, "AuditRecord"),
			middleware.RequirePermission(guard, PermissionAuditRead),
			auditH.List)

		v1.GET("/ledger", audit(service.ActionLedgerRead, "Ledger"), middleware.RequireAdmin(guard), ledgerH.Query)
		v1.GET("/ledger/count", audit(service.ActionLedgerRead, "Ledger"), middleware.RequireAdmin(guard), ledgerH.Count)
		v1.GET("/ledger/verify",
			audit(service.ActionLedgerVerify, "Ledger", middleware.WithOperation(model.OperationExecute)),
			middleware.RequireAdmin(guard),
			ledgerH.Verify)
		v1.GET("/ledger/export", audit(service.ActionLedgerExport, "Ledger"), middleware.RequireAdmin(guard), ledgerH.Export)
	}

	public := r.Group("/public")
	public.Use(middleware.OptionalAuth(d.Validator, d.Audit))
	{
		public.GET("/community", communityH.Public)
	}

	return r
}
