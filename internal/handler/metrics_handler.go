package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ims-admission-api/internal/models"
	"github.com/noah-isme/ims-admission-api/internal/service"
)

// MetricsHandler serves the operational endpoints mounted outside the API
// prefix: liveness, the Prometheus scrape, and the JSON counter snapshot.
type MetricsHandler struct {
	metrics *service.MetricsService
	started time.Time
}

// NewMetricsHandler records the boot time so Health can report uptime.
func NewMetricsHandler(metrics *service.MetricsService) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, started: time.Now()}
}

// Prometheus serves the scrape endpoint. A nil metrics service answers 503
// from Handler itself.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health reports liveness plus which backend answered. The legacy Node
// service serves the same path during the cutover, so the payload has to
// say whose it is.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"backend": models.BackendGo,
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	})
}

// Snapshot returns aggregated counters as JSON for the ops dashboard.
func (h *MetricsHandler) Snapshot(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}
