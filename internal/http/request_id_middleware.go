package http

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// requestIDHeader is the header carrying the request correlation ID.
const requestIDHeader = "X-Request-ID"

// RequestID attaches a correlation ID to every request, reusing the
// caller's when present.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("requestID", id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

// RequestIDFromContext returns the correlation ID for the request.
func RequestIDFromContext(c *gin.Context) string {
	value, ok := c.Get("requestID")
	if !ok {
		return ""
	}
	id, _ := value.(string)
	return id
}
