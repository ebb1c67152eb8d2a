package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ims-admission-api/internal/models"
)

// CutoverHealthService is the slice of the cutover service the internal
// endpoints need: health probes for both backends plus the routing decision
// for the caller's segment.
type CutoverHealthService interface {
	PingLegacy(ctx context.Context) (models.CutoverPingResult, error)
	PingGo(ctx context.Context) (models.CutoverPingResult, error)
	HeadersForRequest(r *http.Request) models.CutoverHeaders
}

// CutoverHandler answers the internal endpoints the migration dashboard
// polls while traffic shifts off the Node backend.
type CutoverHandler struct {
	service CutoverHealthService
}

// NewCutoverHandler accepts a nil service; every endpoint then reports 503.
func NewCutoverHandler(svc CutoverHealthService) *CutoverHandler {
	return &CutoverHandler{service: svc}
}

// PingLegacy reports the health status of the legacy Node backend.
func (h *CutoverHandler) PingLegacy(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	h.probe(c, h.service.PingLegacy)
}

// PingGo probes this API's own health endpoint end to end, exercising the
// same path the load balancer uses.
func (h *CutoverHandler) PingGo(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	h.probe(c, h.service.PingGo)
}

// Status reports the rollout stage and which backend the caller's segment
// routes to under the current flags. The timestamp lets a dashboard order
// snapshots taken while the flags are being flipped.
func (h *CutoverHandler) Status(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"routing":     h.service.HeadersForRequest(c.Request),
		"observed_at": time.Now().UTC(),
	})
}

// ready guards the method-value binding in the ping endpoints; taking
// h.service.PingLegacy off a nil interface would panic before any later
// check could run.
func (h *CutoverHandler) ready(c *gin.Context) bool {
	if h == nil || h.service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cutover service unavailable"})
		return false
	}
	return true
}

func (h *CutoverHandler) probe(c *gin.Context, ping func(context.Context) (models.CutoverPingResult, error)) {
	result, err := ping(c.Request.Context())
	if err != nil {
		c.Header("X-Cutover-Error", err.Error())
	}
	if err != nil || !result.Reachable {
		c.JSON(http.StatusServiceUnavailable, result)
		return
	}
	c.JSON(http.StatusOK, result)
}
