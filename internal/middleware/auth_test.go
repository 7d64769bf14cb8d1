package middleware

import (
	"net/http"
	"testing"

	"github.com/GoPolymarket/guildgate/internal/tenancy"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireAuthMissingHeader(t *testing.T) {
	rec := &recorder{}
	r := newEngine(rec)
	called := false
	r.GET("/x", func(c *gin.Context) { called = true })

	w := do(t, r, http.MethodGet, "/x", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, called)

	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "AUTH_MISSING", body["code"])
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))

	require.Len(t, rec.auth, 1)
	assert.Equal(t, "AUTH_MISSING", rec.auth[0].code)
	assert.Equal(t, http.StatusUnauthorized, rec.auth[0].status)
	assert.Equal(t, "/x", rec.auth[0].info.Endpoint)
	assert.Equal(t, w.Header().Get(HeaderRequestID), rec.auth[0].info.RequestID)
}

func TestRequireAuthInvalidToken(t *testing.T) {
	rec := &recorder{}
	r := newEngine(rec)
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := do(t, r, http.MethodGet, "/x", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "TOKEN_INVALID", decode(t, w)["code"])
}

func TestRequireAuthPublishesContext(t *testing.T) {
	r := newEngine(&recorder{})
	var seen tenancy.TenantContext
	r.GET("/x", func(c *gin.Context) {
		tc, err := TenantFrom(c)
		require.NoError(t, err)
		seen = tc
		fromKey, ok := c.Get(ContextTenantKey)
		require.True(t, ok)
		assert.Equal(t, tc, fromKey)
		c.Status(http.StatusNoContent)
	})

	w := do(t, r, http.MethodGet, "/x", "alpha/u1/admin", "", HeaderRequestID, "client-chosen")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "alpha", seen.CommunityID)
	assert.Equal(t, "u1", seen.UserID)
	assert.EqualValues(t, "admin", seen.UserRole)
	assert.Equal(t, "pro", seen.SubscriptionTier)
	assert.NotEqual(t, "client-chosen", seen.RequestID)
	assert.Equal(t, seen.RequestID, w.Header().Get(HeaderRequestID))
}

func TestOptionalAuth(t *testing.T) {
	rec := &recorder{}
	r := gin.New()
	r.Use(RequestID(), ErrorHandler(), OptionalAuth(stubAuth{}, rec))
	r.GET("/p", func(c *gin.Context) {
		_, err := TenantFrom(c)
		var noCtx *tenancy.NoContextError
		if assert.ErrorAs(t, err, &noCtx) {
			c.JSON(http.StatusOK, gin.H{"anonymous": noCtx.Anonymous})
			return
		}
		c.Status(http.StatusOK)
	})

	w := do(t, r, http.MethodGet, "/p", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["anonymous"])
	assert.Empty(t, rec.auth)

	w = do(t, r, http.MethodGet, "/p", "bad", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Len(t, rec.auth, 1)
}
