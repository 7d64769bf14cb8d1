package middleware

import (
	"github.com/GoPolymarket/guildgate/internal/service"
	"github.com/GoPolymarket/guildgate/internal/tenancy"
	"github.com/gin-gonic/gin"
)

const (
	HeaderRequestID  = "X-Request-ID"
	ContextRequestID = "request_id"
)

// RequestID assigns every request a server generated id. Incoming
// X-Request-ID headers are ignored.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := tenancy.NewRequestID()
		c.Set(ContextRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

func RequestIDFrom(c *gin.Context) string {
	if tc, err := tenancy.Current(c.Request.Context()); err == nil {
		return tc.RequestID
	}
	return c.GetString(ContextRequestID)
}

// RequestInfoFrom collects the transport details an audit record needs.
func RequestInfoFrom(c *gin.Context) service.RequestInfo {
	return service.RequestInfo{
		RequestID:  RequestIDFrom(c),
		IPAddress:  c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
		Endpoint:   c.Request.URL.Path,
		HTTPMethod: c.Request.Method,
		Username:   usernameFrom(c),
	}
}

func usernameFrom(c *gin.Context) string {
	if m := MemberFrom(c); m != nil {
		return m.Username
	}
	return ""
}
