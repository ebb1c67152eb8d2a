package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ims-admission-api/internal/dto"
	"github.com/noah-isme/ims-admission-api/internal/lifecycle"
	appErrors "github.com/noah-isme/ims-admission-api/pkg/errors"
	"github.com/noah-isme/ims-admission-api/pkg/response"
)

// LifecycleHandler serves the transition table itself so clients can render
// state diagrams and action menus without hard-coding the machine.
type LifecycleHandler struct {
	registry *lifecycle.Registry
}

// NewLifecycleHandler constructs the handler.
func NewLifecycleHandler(registry *lifecycle.Registry) *LifecycleHandler {
	return &LifecycleHandler{registry: registry}
}

// States godoc
// @Summary List lifecycle states
// @Tags Lifecycle
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /lifecycle/states [get]
func (h *LifecycleHandler) States(c *gin.Context) {
	if h.registry == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "lifecycle registry not configured"))
		return
	}
	states := h.registry.States()
	out := make([]dto.StateInfo, 0, len(states))
	for _, s := range states {
		out = append(out, dto.StateInfo{Status: s, Terminal: h.registry.IsTerminal(s)})
	}
	response.JSON(c, http.StatusOK, out, nil)
}

// Actions godoc
// @Summary List transition rules
// @Tags Lifecycle
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /lifecycle/actions [get]
func (h *LifecycleHandler) Actions(c *gin.Context) {
	if h.registry == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "lifecycle registry not configured"))
		return
	}
	rules := h.registry.Actions()
	out := make([]dto.ActionInfo, 0, len(rules))
	for _, rule := range rules {
		out = append(out, dto.ActionInfo{
			Action:       rule.Action,
			From:         rule.FromStates,
			To:           rule.To,
			Roles:        rule.Roles,
			RestorePrior: rule.RestorePrior,
		})
	}
	response.JSON(c, http.StatusOK, out, nil)
}
