package middleware

import (
	"net/http"
	"testing"

	"github.com/GoPolymarket/guildgate/internal/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

type limiterMap map[string]*rate.Limiter

func (m limiterMap) GetLimiter(id string) *rate.Limiter { return m[id] }

func TestRateLimit(t *testing.T) {
	limiters := limiterMap{"slow": rate.NewLimiter(rate.Limit(0.001), 1)}
	r := newEngine(&recorder{})
	r.Use(RateLimit(limiters))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	before := testutil.ToFloat64(metrics.RateLimited.WithLabelValues("slow"))

	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/x", "slow/u1/member", "").Code)
	w := do(t, r, http.MethodGet, "/x", "slow/u1/member", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	body := decode(t, w)
	assert.Equal(t, "RATE_LIMITED", body["code"])
	assert.Equal(t, "1s", body["retryAfter"])
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.RateLimited.WithLabelValues("slow")))

	// communities without a limiter pass
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/x", "other/u1/member", "").Code)
	}
}
