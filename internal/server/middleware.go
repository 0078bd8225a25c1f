package server

import (
	"time"

	"github.com/gin-gonic/gin"
	obsmetrics "github.com/natebag/MLG-BETA/internal/observability/metrics"
)

// MetricsMiddleware records request counts and latency by matched route.
func MetricsMiddleware(httpMetrics *obsmetrics.HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if httpMetrics == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		httpMetrics.Observe(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
