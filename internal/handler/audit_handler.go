package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ims-admission-api/internal/models"
	appErrors "github.com/noah-isme/ims-admission-api/pkg/errors"
	"github.com/noah-isme/ims-admission-api/pkg/response"
)

type auditService interface {
	History(ctx context.Context, admissionID string) ([]models.TransitionEntry, error)
	Recent(ctx context.Context, filter models.TransitionFilter) ([]models.TransitionEntry, int, error)
	VerifyChain(ctx context.Context, admissionID string) (*models.ChainVerification, error)
	VerifyAll(ctx context.Context) (*models.ChainVerificationSummary, error)
}

// AuditHandler exposes the transition log and chain verification endpoints.
type AuditHandler struct {
	service auditService
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(service auditService) *AuditHandler {
	return &AuditHandler{service: service}
}

// History godoc
// @Summary Full transition history of one admission
// @Tags Audit
// @Produce json
// @Param id path string true "Admission ID"
// @Success 200 {object} response.Envelope
// @Router /admissions/{id}/transitions [get]
func (h *AuditHandler) History(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "audit service not configured"))
		return
	}
	entries, err := h.service.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Recent godoc
// @Summary Recent transitions across all admissions
// @Tags Audit
// @Produce json
// @Param admission_id query string false "Filter by admission"
// @Param action query string false "Filter by action"
// @Param actor_role query string false "Filter by actor role"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /transitions/recent [get]
func (h *AuditHandler) Recent(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "audit service not configured"))
		return
	}
	filter := models.TransitionFilter{
		AdmissionID: strings.TrimSpace(c.Query("admission_id")),
	}
	if raw := c.Query("action"); raw != "" {
		action := models.Action(strings.TrimSpace(raw))
		filter.Action = &action
	}
	if raw := c.Query("actor_role"); raw != "" {
		role := models.UserRole(strings.ToUpper(strings.TrimSpace(raw)))
		if !models.IsValidRole(role) {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown actor role filter"))
			return
		}
		filter.ActorRole = &role
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	filter.Page = page
	filter.PageSize = pageSize

	entries, total, err := h.service.Recent(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	pagination := &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}
	response.JSON(c, http.StatusOK, entries, pagination)
}

// VerifyChain godoc
// @Summary Verify the hash chain of one admission
// @Tags Audit
// @Produce json
// @Param id path string true "Admission ID"
// @Success 200 {object} response.Envelope
// @Router /admissions/{id}/chain/verify [get]
func (h *AuditHandler) VerifyChain(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "audit service not configured"))
		return
	}
	result, err := h.service.VerifyChain(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// VerifyAll godoc
// @Summary Verify the hash chains of every admission
// @Tags Audit
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /transitions/chain/verify [get]
func (h *AuditHandler) VerifyAll(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "audit service not configured"))
		return
	}
	summary, err := h.service.VerifyAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
