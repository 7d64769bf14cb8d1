package middleware

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func idempotentEngine(store IdempotencyStore, calls *atomic.Int32, status *atomic.Int32) *gin.Engine {
	r := newEngine(&recorder{})
	r.POST("/creds", Idempotency(store), func(c *gin.Context) {
		n := calls.Add(1)
		c.JSON(int(status.Load()), gin.H{"call": n})
	})
	return r
}

func TestIdempotencyReplaysResponse(t *testing.T) {
	var calls, status atomic.Int32
	status.Store(http.StatusCreated)
	r := idempotentEngine(NewInMemIdempotencyStore(0), &calls, &status)

	first := do(t, r, http.MethodPost, "/creds", "alpha/u1/admin", `{}`, HeaderIdempotencyKey, "k1")
	require.Equal(t, http.StatusCreated, first.Code)

	replay := do(t, r, http.MethodPost, "/creds", "alpha/u1/admin", `{}`, HeaderIdempotencyKey, "k1")
	assert.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, "true", replay.Header().Get("Idempotent-Replay"))
	assert.JSONEq(t, first.Body.String(), replay.Body.String())
	assert.EqualValues(t, 1, calls.Load())

	// keys are per community
	other := do(t, r, http.MethodPost, "/creds", "beta/u1/admin", `{}`, HeaderIdempotencyKey, "k1")
	assert.Equal(t, http.StatusCreated, other.Code)
	assert.Empty(t, other.Header().Get("Idempotent-Replay"))
	assert.EqualValues(t, 2, calls.Load())

	// no key, no replay
	do(t, r, http.MethodPost, "/creds", "alpha/u1/admin", `{}`)
	assert.EqualValues(t, 3, calls.Load())
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	var calls, status atomic.Int32
	status.Store(http.StatusInternalServerError)
	r := idempotentEngine(NewInMemIdempotencyStore(0), &calls, &status)

	do(t, r, http.MethodPost, "/creds", "alpha/u1/admin", `{}`, HeaderIdempotencyKey, "k1")
	status.Store(http.StatusCreated)
	w := do(t, r, http.MethodPost, "/creds", "alpha/u1/admin", `{}`, HeaderIdempotencyKey, "k1")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.EqualValues(t, 2, calls.Load())
}

func TestIdempotencyConflictWhileInProgress(t *testing.T) {
	var calls, status atomic.Int32
	status.Store(http.StatusCreated)
	store := NewInMemIdempotencyStore(0)
	_, hit, err := store.GetOrLock(context.Background(), "alpha:k1")
	require.NoError(t, err)
	require.False(t, hit)

	r := idempotentEngine(store, &calls, &status)
	w := do(t, r, http.MethodPost, "/creds", "alpha/u1/admin", `{}`, HeaderIdempotencyKey, "k1")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "IDEMPOTENCY_CONFLICT", decode(t, w)["code"])
	assert.Zero(t, calls.Load())
}
