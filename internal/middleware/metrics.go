package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/visual-health-insight/internal/metrics"
)

// unmatchedRoute labels requests that matched no route so path cardinality stays bounded.
const unmatchedRoute = "unmatched"

// Metrics records request counts and latency per route template.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = unmatchedRoute
		}
		status := strconv.Itoa(c.Writer.Status())

		m.RequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		m.RequestTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		if c.Writer.Status() >= 400 {
			m.ErrorTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		}
	}
}
