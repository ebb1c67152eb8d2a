package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/ims-admission-api/internal/middleware"
	"github.com/noah-isme/ims-admission-api/internal/models"
	"github.com/noah-isme/ims-admission-api/internal/stream"
	appErrors "github.com/noah-isme/ims-admission-api/pkg/errors"
	"github.com/noah-isme/ims-admission-api/pkg/response"
)

// StreamHandler upgrades dashboard connections onto the transition hub.
type StreamHandler struct {
	hub    *stream.Hub
	logger *zap.Logger
}

// NewStreamHandler constructs the handler.
func NewStreamHandler(hub *stream.Hub, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{hub: hub, logger: logger}
}

// Serve godoc
// @Summary Subscribe to live transition events over websocket
// @Tags Stream
// @Success 101 {string} string "Switching Protocols"
// @Router /stream [get]
func (h *StreamHandler) Serve(c *gin.Context) {
	if h.hub == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "stream hub not configured"))
		return
	}
	claims := middleware.ClaimsFrom(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	user := models.UserInfo{
		ID:       claims.UserID,
		Email:    claims.Email,
		FullName: claims.FullName,
		Role:     claims.Role,
	}
	if err := h.hub.Serve(c.Writer, c.Request, user); err != nil {
		// The upgrader has already written an HTTP error to the client.
		h.logger.Warn("websocket upgrade failed", zap.Error(err), zap.String("user_id", user.ID))
	}
}
