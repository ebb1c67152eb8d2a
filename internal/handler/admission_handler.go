package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ims-admission-api/internal/dto"
	"github.com/noah-isme/ims-admission-api/internal/lifecycle"
	"github.com/noah-isme/ims-admission-api/internal/middleware"
	"github.com/noah-isme/ims-admission-api/internal/models"
	"github.com/noah-isme/ims-admission-api/internal/service"
	appErrors "github.com/noah-isme/ims-admission-api/pkg/errors"
	"github.com/noah-isme/ims-admission-api/pkg/middleware/requestid"
	"github.com/noah-isme/ims-admission-api/pkg/response"
)

type admissionService interface {
	List(ctx context.Context, filter models.AdmissionFilter) ([]models.AdmissionRecord, int, bool, error)
	Get(ctx context.Context, id string) (*models.AdmissionRecord, bool, error)
	AvailableActions(ctx context.Context, id string, role models.UserRole) (*models.AdmissionRecord, []models.ActionOption, error)
	Transition(ctx context.Context, req lifecycle.Request, requestID string) (*service.TransitionOutcome, error)
}

// AdmissionHandler exposes the admission lifecycle endpoints.
type AdmissionHandler struct {
	service admissionService
}

// NewAdmissionHandler constructs the handler.
func NewAdmissionHandler(service admissionService) *AdmissionHandler {
	return &AdmissionHandler{service: service}
}

// List godoc
// @Summary List admissions
// @Tags Admissions
// @Produce json
// @Param status query string false "Filter by status"
// @Param payment_method query string false "Filter by payment method"
// @Param search query string false "Search by name or email"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Param sort query string false "Sort column"
// @Param order query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Router /admissions [get]
func (h *AdmissionHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "admission service not configured"))
		return
	}
	var filter models.AdmissionFilter
	if raw := c.Query("status"); raw != "" {
		status := models.AdmissionStatus(strings.ToUpper(strings.TrimSpace(raw)))
		if !models.IsValidStatus(status) {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown status filter"))
			return
		}
		filter.Status = &status
	}
	if raw := c.Query("payment_method"); raw != "" {
		method := models.PaymentMethod(strings.ToUpper(strings.TrimSpace(raw)))
		if !models.IsValidPaymentMethod(method) {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown payment method filter"))
			return
		}
		filter.PaymentMethod = &method
	}
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	// Clamped to the repository limits so the echoed pagination matches the
	// query that actually ran.
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	filter.Page = page
	filter.PageSize = pageSize

	records, total, cacheHit, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	pagination := &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}
	response.JSON(c, http.StatusOK, records, pagination, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get admission detail
// @Tags Admissions
// @Produce json
// @Param id path string true "Admission ID"
// @Success 200 {object} response.Envelope
// @Router /admissions/{id} [get]
func (h *AdmissionHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "admission service not configured"))
		return
	}
	record, cacheHit, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, record, nil, middleware.ExtractMeta(c))
}

// Actions godoc
// @Summary List actions available to the caller on a record
// @Tags Admissions
// @Produce json
// @Param id path string true "Admission ID"
// @Success 200 {object} response.Envelope
// @Router /admissions/{id}/actions [get]
func (h *AdmissionHandler) Actions(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "admission service not configured"))
		return
	}
	claims := middleware.ClaimsFrom(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	record, actions, err := h.service.AvailableActions(c.Request.Context(), c.Param("id"), claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.ActionsResponse{Status: record.Status, Actions: actions}, nil)
}

// Approve godoc
// @Summary Approve a pending admission
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Admission ID"
// @Param payload body dto.TransitionRequest false "Optional reason"
// @Success 200 {object} response.Envelope
// @Router /admissions/{id}/approve [post]
func (h *AdmissionHandler) Approve(c *gin.Context) { h.transition(c, models.ActionApproveAdmission) }

// Reject godoc
// @Summary Reject a pending admission
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Admission ID"
// @Param payload body dto.TransitionRequest false "Optional reason"
// @Success 200 {object} response.Envelope
// @Router /admissions/{id}/reject [post]
func (h *AdmissionHandler) Reject(c *gin.Context) { h.transition(c, models.ActionRejectAdmission) }

// VerifyFullPayment godoc
// @Summary Verify a full tuition payment
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Admission ID"
// @Param payload body dto.TransitionRequest false "Optional reason"
// @Success 200 {object} response.Envelope
// @Router /admissions/{id}/verify-full-payment [post]
func (h *AdmissionHandler) VerifyFullPayment(c *gin.Context) {
	h.transition(c, models.ActionVerifyFullPayment)
}

// VerifyInstallment godoc
// @Summary Verify an installment payment
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Admission ID"
// @Param payload body dto.TransitionRequest false "Optional reason"
// @Success 200 {object} response.Envelope
// @Router /admissions/{id}/verify-installment [post]
func (h *AdmissionHandler) VerifyInstallment(c *gin.Context) {
	h.transition(c, models.ActionVerifyInstallment)
}

// Enable godoc
// @Summary Restore access for a disabled student
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Admission ID"
// @Param payload body dto.TransitionRequest false "Optional reason"
// @Success 200 {object} response.Envelope
// @Router /admissions/{id}/enable [post]
func (h *AdmissionHandler) Enable(c *gin.Context) { h.transition(c, models.ActionEnableAccess) }

// Disable godoc
// @Summary Disable a student's access
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Admission ID"
// @Param payload body dto.TransitionRequest false "Optional reason"
// @Success 200 {object} response.Envelope
// @Router /admissions/{id}/disable [post]
func (h *AdmissionHandler) Disable(c *gin.Context) { h.transition(c, models.ActionDisableAccess) }

// MarkOverdue godoc
// @Summary Mark an installment as past due
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Admission ID"
// @Param payload body dto.TransitionRequest false "Optional reason"
// @Success 200 {object} response.Envelope
// @Router /admissions/{id}/mark-overdue [post]
func (h *AdmissionHandler) MarkOverdue(c *gin.Context) { h.transition(c, models.ActionMarkOverdue) }

// CollectPayment godoc
// @Summary Record a payment for an overdue installment
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Admission ID"
// @Param payload body dto.TransitionRequest false "Optional reason"
// @Success 200 {object} response.Envelope
// @Router /admissions/{id}/collect-payment [post]
func (h *AdmissionHandler) CollectPayment(c *gin.Context) {
	h.transition(c, models.ActionCollectPayment)
}

// Suspend godoc
// @Summary Suspend an active student
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Admission ID"
// @Param payload body dto.TransitionRequest false "Optional reason"
// @Success 200 {object} response.Envelope
// @Router /admissions/{id}/suspend [post]
func (h *AdmissionHandler) Suspend(c *gin.Context) { h.transition(c, models.ActionSuspendStudent) }

// Reactivate godoc
// @Summary Reactivate a suspended student
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Admission ID"
// @Param payload body dto.TransitionRequest false "Optional reason"
// @Success 200 {object} response.Envelope
// @Router /admissions/{id}/reactivate [post]
func (h *AdmissionHandler) Reactivate(c *gin.Context) {
	h.transition(c, models.ActionReactivateStudent)
}

// Drop godoc
// @Summary Drop a student from the program
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Admission ID"
// @Param payload body dto.TransitionRequest false "Optional reason"
// @Success 200 {object} response.Envelope
// @Router /admissions/{id}/drop [post]
func (h *AdmissionHandler) Drop(c *gin.Context) { h.transition(c, models.ActionDropStudent) }

// Complete godoc
// @Summary Mark a student's course as completed
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Admission ID"
// @Param payload body dto.TransitionRequest false "Optional reason"
// @Success 200 {object} response.Envelope
// @Router /admissions/{id}/complete [post]
func (h *AdmissionHandler) Complete(c *gin.Context) { h.transition(c, models.ActionCompleteCourse) }

// transition runs one action through the lifecycle service. Warnings from
// post-commit steps (notification, event publish) surface in the response
// meta; the transition itself has already been committed.
func (h *AdmissionHandler) transition(c *gin.Context, action models.Action) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "admission service not configured"))
		return
	}
	claims := middleware.ClaimsFrom(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.TransitionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid transition payload"))
			return
		}
	}
	outcome, err := h.service.Transition(c.Request.Context(), lifecycle.Request{
		RecordID:  c.Param("id"),
		Action:    action,
		ActorID:   claims.UserID,
		ActorRole: claims.Role,
		Reason:    strings.TrimSpace(req.Reason),
	}, requestid.Value(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetWarnings(c, outcome.Warnings)
	response.JSON(c, http.StatusOK, dto.TransitionResponse{Record: outcome.Record, Entry: outcome.Entry}, nil, middleware.ExtractMeta(c))
}
