package middleware

import (
	"time"

	"stack-keeper/services"

	"github.com/gin-gonic/gin"
)

/**
 * HTTP request accounting middleware
 * @description
 * - Counts requests and records handling duration per route
 * - Requests answered with a 4xx/5xx status count as errors
 * - Feeds the totals surfaced by the health endpoint
 */
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}

		services.IncrementRequestCount(route)
		services.RecordRequestDuration(route, duration)
		if c.Writer.Status() >= 400 {
			services.IncrementErrorCount(route)
		}
	}
}
