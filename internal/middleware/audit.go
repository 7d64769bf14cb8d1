package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/GoPolymarket/guildgate/internal/model"
	"github.com/GoPolymarket/guildgate/internal/service"
	"github.com/GoPolymarket/guildgate/internal/tenancy"
	"github.com/gin-gonic/gin"
)

const (
	ContextAuditSnapshot = "audit_snapshot"
	ContextAuditHandled  = "audit_handled"
	maxAuditBody         = 64 << 10
)

// AuditRecorder is the non-blocking sink of audit records.
type AuditRecorder interface {
	Record(rec *model.AuditRecord) bool
}

type auditOptions struct {
	operation     model.Operation
	resourceParam string
}

type AuditOption func(*auditOptions)

// WithOperation overrides the operation derived from the HTTP method.
func WithOperation(op model.Operation) AuditOption {
	return func(s *auditOptions) { s.operation = op }
}

// WithResourceParam takes the resource id from a route parameter.
func WithResourceParam(name string) AuditOption {
	return func(s *auditOptions) { s.resourceParam = name }
}

type auditSnapshot struct {
	before     any
	after      any
	resourceID string
}

// SetAuditSnapshot lets a handler hand the before/after state of the
// resource it changed to the audit wrapper. Snapshots are redacted.
func SetAuditSnapshot(c *gin.Context, before, after any) {
	snap := snapshotOf(c)
	snap.before = before
	snap.after = after
}

// MarkAudited tells the wrapper the handler already recorded this request
// through one of the AuditService helpers.
func MarkAudited(c *gin.Context) {
	c.Set(ContextAuditHandled, true)
}

// SetAuditResourceID records the id of a resource created by the handler.
func SetAuditResourceID(c *gin.Context, id string) {
	snapshotOf(c).resourceID = id
}

func snapshotOf(c *gin.Context) *auditSnapshot {
	if val, exists := c.Get(ContextAuditSnapshot); exists {
		if snap, ok := val.(*auditSnapshot); ok {
			return snap
		}
	}
	snap := &auditSnapshot{}
	c.Set(ContextAuditSnapshot, snap)
	return snap
}

// Audit records the wrapped route as action on resourceType once the handler
// has finished. The record is queued, never awaited.
func Audit(rec AuditRecorder, action, resourceType string, opts ...AuditOption) gin.HandlerFunc {
	opt := auditOptions{}
	for _, o := range opts {
		o(&opt)
	}

	return func(c *gin.Context) {
		start := time.Now()

		// 读取请求体 (并写回以便后续 Bind 使用)
		var body []byte
		if isMutation(c.Request.Method) && c.Request.Body != nil {
			body, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		c.Next()

		if c.GetBool(ContextAuditHandled) {
			return
		}
		status := responseStatus(c)
		entry := &model.AuditRecord{
			Action:       action,
			ResourceType: resourceType,
			Operation:    opt.operation,
			Status:       outcome(status),
			StatusCode:   status,
			DurationMs:   time.Since(start).Milliseconds(),
			Timestamp:    start.UTC(),
		}
		if entry.Operation == "" {
			entry.Operation = operationFor(c.Request.Method)
		}
		if opt.resourceParam != "" {
			entry.ResourceID = c.Param(opt.resourceParam)
		}

		info := RequestInfoFrom(c)
		entry.RequestID = info.RequestID
		entry.IPAddress = info.IPAddress
		entry.UserAgent = info.UserAgent
		entry.Endpoint = info.Endpoint
		entry.HTTPMethod = info.HTTPMethod
		entry.Username = info.Username

		if tc, err := tenancy.Current(c.Request.Context()); err == nil {
			entry.CommunityID = tc.CommunityID
			entry.UserID = tc.UserID
			entry.UserRole = string(tc.UserRole)
		}

		if val, exists := c.Get(ContextAuditSnapshot); exists {
			if snap, ok := val.(*auditSnapshot); ok {
				entry.DataBefore = service.RedactSnapshot(snap.before)
				entry.DataAfter = service.RedactSnapshot(snap.after)
				if snap.resourceID != "" {
					entry.ResourceID = snap.resourceID
				}
			}
		}
		if entry.DataAfter == "" && len(body) > 0 {
			if len(body) > maxAuditBody {
				entry.DataAfter = `{"truncated":true}`
			} else {
				entry.DataAfter = service.RedactJSON(body)
			}
		}

		rec.Record(entry)
	}
}

// responseStatus reads the status the client will see. Errors queued on the
// context are rendered by ErrorHandler after this wrapper returns.
func responseStatus(c *gin.Context) int {
	if !c.Writer.Written() && len(c.Errors) > 0 {
		return ToAppError(c.Errors.Last().Err).HTTPStatus
	}
	return c.Writer.Status()
}

func outcome(status int) model.AuditStatus {
	switch {
	case status >= 200 && status < 400:
		return model.AuditSuccess
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return model.AuditBlocked
	default:
		return model.AuditFailure
	}
}

func operationFor(method string) model.Operation {
	switch method {
	case http.MethodGet, http.MethodHead:
		return model.OperationRead
	case http.MethodPost:
		return model.OperationCreate
	case http.MethodPut, http.MethodPatch:
		return model.OperationUpdate
	case http.MethodDelete:
		return model.OperationDelete
	default:
		return model.OperationExecute
	}
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
