package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/ims-admission-api/internal/models"
	"github.com/noah-isme/ims-admission-api/internal/repository"
	"github.com/noah-isme/ims-admission-api/pkg/middleware/requestid"
)

// Audit records an audit row after each successful request on the wrapped
// group. The write runs on a detached context so a client hanging up right
// after the response cannot cancel it, and failures are only logged; the
// response has already been written by then.
func Audit(repo *repository.AuditLogRepository, logger *zap.Logger, action, resource string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		var userID *string
		if claims := ClaimsFrom(c); claims != nil {
			userID = &claims.UserID
		}
		var resourceID *string
		if id := c.Param("id"); id != "" {
			resourceID = &id
		}
		var reqID *string
		if id := requestid.Value(c); id != "" {
			reqID = &id
		}

		body, _ := json.Marshal(map[string]interface{}{
			"path":    c.FullPath(),
			"method":  c.Request.Method,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
		})

		entry := &models.AuditLog{
			UserID:     userID,
			Action:     action,
			Resource:   resource,
			ResourceID: resourceID,
			RequestID:  reqID,
			NewValues:  body,
			IPAddress:  c.ClientIP(),
			UserAgent:  c.GetHeader("User-Agent"),
		}
		if err := repo.CreateAuditLog(context.WithoutCancel(c.Request.Context()), entry); err != nil {
			logger.Warn("audit log write failed",
				zap.String("action", action),
				zap.String("resource", resource),
				zap.Error(err))
		}
	}
}
