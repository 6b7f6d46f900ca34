package http

import (
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/verdantbox/admin-api/internal/util"
)

// RequestLogger logs each request with structured fields once the
// handler chain has finished.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		entry := log.WithFields(log.Fields{
			"request_id": RequestIDFromContext(c),
			"method":     c.Request.Method,
			"path":       path,
			"status":     status,
			"duration":   time.Since(start),
			"client_ip":  c.ClientIP(),
		})
		if query != "" {
			entry = entry.WithField("query", util.MaskSensitiveQuery(query))
		}
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			entry.Error("server error")
		case status >= 400:
			entry.Warn("client error")
		default:
			entry.Info("request")
		}
	}
}
