package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ims-admission-api/internal/models"
	"github.com/noah-isme/ims-admission-api/internal/service"
)

const (
	cutoverContextKey = "cutover_headers"

	servedByHeader = "X-Served-By"
)

// CutoverStage stamps every response with the rollout position (stage,
// client segment, owning backend) and mirrors the same headers onto the
// request so the shadow mirror forwards them when it replays traffic to the
// legacy backend. The full routing decision is kept on the context for
// handlers that branch on it.
func CutoverStage(cutoverSvc *service.CutoverService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cutoverSvc == nil {
			c.Next()
			return
		}
		headers := cutoverSvc.HeadersForRequest(c.Request)
		stamp := map[string]string{
			headers.StageHeader:   string(headers.Stage),
			headers.SegmentHeader: headers.Segment,
			servedByHeader:        headers.Backend,
		}
		for key, value := range stamp {
			if key == "" || value == "" {
				continue
			}
			c.Writer.Header().Set(key, value)
			c.Request.Header.Set(key, value)
		}
		c.Set(cutoverContextKey, headers)
		c.Next()
	}
}

// CutoverMetadata returns the routing decision recorded for this request.
// The zero value means the middleware is not installed, which handlers
// treat as the legacy stage.
func CutoverMetadata(c *gin.Context) models.CutoverHeaders {
	if c == nil {
		return models.CutoverHeaders{}
	}
	if value, exists := c.Get(cutoverContextKey); exists {
		if headers, ok := value.(models.CutoverHeaders); ok {
			return headers
		}
	}
	return models.CutoverHeaders{}
}
