// Package middleware holds the gin middleware specific to this API.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/acoustic-workbench-api/internal/service"
)

const unmatchedRoute = "unmatched"

// Metrics records request counts and latency per route template. Requests
// that match no route share one label so scanners cannot grow the series.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
