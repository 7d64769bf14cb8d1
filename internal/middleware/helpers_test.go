package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/GoPolymarket/guildgate/internal/model"
	"github.com/GoPolymarket/guildgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/guildgate/internal/service"
	"github.com/GoPolymarket/guildgate/internal/tenancy"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubAuth accepts "Bearer <community>/<user>/<role>".
type stubAuth struct{}

func (stubAuth) Validate(_ context.Context, header string) (tenancy.Claims, *model.Community, error) {
	token, appErr := service.ExtractBearerToken(header)
	if appErr != nil {
		return tenancy.Claims{}, nil, appErr
	}
	parts := strings.Split(token, "/")
	if len(parts) != 3 {
		return tenancy.Claims{}, nil, apperrors.NewTokenInvalid("bad stub token", nil)
	}
	return tenancy.Claims{CommunityID: parts[0], UserID: parts[1], Role: model.Role(parts[2])},
		&model.Community{ID: parts[0], SubscriptionTier: "pro"}, nil
}

type failedAuth struct {
	code   string
	status int
	info   service.RequestInfo
}

type crossTenant struct {
	caller tenancy.TenantContext
	target string
}

// recorder captures everything the middleware reports.
type recorder struct {
	mu      sync.Mutex
	records []*model.AuditRecord
	auth    []failedAuth
	cross   []crossTenant
}

func (r *recorder) Record(rec *model.AuditRecord) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return true
}

func (r *recorder) RecordFailedAuth(info service.RequestInfo, _, _ string, code string, statusCode int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auth = append(r.auth, failedAuth{code: code, status: statusCode, info: info})
	return true
}

func (r *recorder) RecordCrossTenantAttempt(tc tenancy.TenantContext, _ service.RequestInfo, target, _, _ string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cross = append(r.cross, crossTenant{caller: tc, target: target})
	return true
}

func newEngine(rec *recorder) *gin.Engine {
	r := gin.New()
	r.Use(RequestID())
	r.Use(ErrorHandler())
	r.Use(RequireAuth(stubAuth{}, rec))
	return r
}

func do(t *testing.T, h http.Handler, method, path, token string, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set(HeaderAuthorization, "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}
