package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Logger protokolliert jede Anfrage über logrus. Der SSE-Endpunkt wird
// erst beim Schließen der Verbindung protokolliert.
func Logger(logger *log.Entry) gin.HandlerFunc {
	if logger == nil {
		logger = log.WithField("component", "http")
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).Round(time.Millisecond),
			"client":   c.ClientIP(),
		})
		switch {
		case c.Writer.Status() >= 500:
			entry.Error(c.Errors.String())
		case c.Writer.Status() >= 400:
			entry.Warn("request failed")
		default:
			entry.Debug("request")
		}
	}
}
