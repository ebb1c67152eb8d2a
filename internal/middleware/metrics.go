package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ims-admission-api/internal/service"
)

// Metrics records request duration and count per route template. A nil
// MetricsService is tolerated; its methods drop observations themselves.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			// Unmatched paths aggregate under one label. Raw URLs would
			// blow up label cardinality and can carry export tokens.
			path = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
