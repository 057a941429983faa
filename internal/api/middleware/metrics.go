package middleware

import (
	"strconv"
	"time"

	"github.com/vesperino/portalforge-backend/pkg/metrics"
	"github.com/gin-gonic/gin"
)

// MetricsMiddleware Prometheus指标中间件
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}

		metrics.APIRequestsTotal.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()

		metrics.APIRequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(time.Since(startTime).Seconds())
	}
}
