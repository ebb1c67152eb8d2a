package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ims-admission-api/internal/dto"
	"github.com/noah-isme/ims-admission-api/internal/lifecycle"
	"github.com/noah-isme/ims-admission-api/internal/middleware"
	"github.com/noah-isme/ims-admission-api/internal/models"
	"github.com/noah-isme/ims-admission-api/internal/service"
	appErrors "github.com/noah-isme/ims-admission-api/pkg/errors"
)

type admissionServiceMock struct {
	records       []models.AdmissionRecord
	total         int
	cacheHit      bool
	listErr       error
	listFilter    *models.AdmissionFilter
	record        *models.AdmissionRecord
	getErr        error
	actions       []models.ActionOption
	actionsErr    error
	outcome       *service.TransitionOutcome
	transitionErr error
	gotRequest    *lifecycle.Request
	gotRequestID  string
}

func (m *admissionServiceMock) List(ctx context.Context, filter models.AdmissionFilter) ([]models.AdmissionRecord, int, bool, error) {
	m.listFilter = &filter
	return m.records, m.total, m.cacheHit, m.listErr
}

func (m *admissionServiceMock) Get(ctx context.Context, id string) (*models.AdmissionRecord, bool, error) {
	return m.record, m.cacheHit, m.getErr
}

func (m *admissionServiceMock) AvailableActions(ctx context.Context, id string, role models.UserRole) (*models.AdmissionRecord, []models.ActionOption, error) {
	return m.record, m.actions, m.actionsErr
}

func (m *admissionServiceMock) Transition(ctx context.Context, req lifecycle.Request, requestID string) (*service.TransitionOutcome, error) {
	m.gotRequest = &req
	m.gotRequestID = requestID
	return m.outcome, m.transitionErr
}

func decodeEnvelope(t *testing.T, body []byte) map[string]json.RawMessage {
	t.Helper()
	var envelope map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &envelope))
	return envelope
}

func TestAdmissionHandlerList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &admissionServiceMock{
		records:  []models.AdmissionRecord{{ID: "adm-1", Status: models.StatusActive}},
		total:    42,
		cacheHit: true,
	}
	handler := NewAdmissionHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/admissions?status=active&page=2&page_size=10", nil)

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)

	require.NotNil(t, mockSvc.listFilter)
	require.NotNil(t, mockSvc.listFilter.Status)
	require.Equal(t, models.StatusActive, *mockSvc.listFilter.Status)
	require.Equal(t, 2, mockSvc.listFilter.Page)
	require.Equal(t, 10, mockSvc.listFilter.PageSize)

	envelope := decodeEnvelope(t, w.Body.Bytes())
	var pagination models.Pagination
	require.NoError(t, json.Unmarshal(envelope["pagination"], &pagination))
	require.Equal(t, 42, pagination.TotalCount)
	require.Equal(t, 2, pagination.Page)

	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(envelope["meta"], &meta))
	require.Equal(t, true, meta["cache_hit"])
}

func TestAdmissionHandlerListRejectsUnknownStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAdmissionHandler(&admissionServiceMock{})

	c, w := newGinContext(http.MethodGet, "/admissions?status=LIMBO", nil)

	handler.List(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdmissionHandlerListClampsPageSize(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &admissionServiceMock{}
	handler := NewAdmissionHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/admissions?page_size=5000&page=0", nil)

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 20, mockSvc.listFilter.PageSize)
	require.Equal(t, 1, mockSvc.listFilter.Page)
}

func TestAdmissionHandlerGet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &admissionServiceMock{
		record: &models.AdmissionRecord{ID: "adm-1", Status: models.StatusPending},
	}
	handler := NewAdmissionHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/admissions/adm-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "adm-1"}}

	handler.Get(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "adm-1")
}

func TestAdmissionHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &admissionServiceMock{
		getErr: appErrors.Clone(appErrors.ErrNotFound, "admission not found"),
	}
	handler := NewAdmissionHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/admissions/ghost", nil)
	c.Params = gin.Params{{Key: "id", Value: "ghost"}}

	handler.Get(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmissionHandlerActions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &admissionServiceMock{
		record: &models.AdmissionRecord{ID: "adm-1", Status: models.StatusActive},
		actions: []models.ActionOption{
			{Action: models.ActionDisableAccess, To: models.StatusDisabled},
			{Action: models.ActionSuspendStudent, To: models.StatusSuspended},
		},
	}
	handler := NewAdmissionHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/admissions/adm-1/actions", nil)
	c.Params = gin.Params{{Key: "id", Value: "adm-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u-1", Role: models.RoleAdmin})

	handler.Actions(c)
	require.Equal(t, http.StatusOK, w.Code)

	envelope := decodeEnvelope(t, w.Body.Bytes())
	var data dto.ActionsResponse
	require.NoError(t, json.Unmarshal(envelope["data"], &data))
	require.Equal(t, models.StatusActive, data.Status)
	require.Len(t, data.Actions, 2)
}

func TestAdmissionHandlerActionsRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAdmissionHandler(&admissionServiceMock{})

	c, w := newGinContext(http.MethodGet, "/admissions/adm-1/actions", nil)
	c.Params = gin.Params{{Key: "id", Value: "adm-1"}}

	handler.Actions(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdmissionHandlerApprove(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &admissionServiceMock{
		outcome: &service.TransitionOutcome{
			Record: models.AdmissionRecord{ID: "adm-1", Status: models.StatusApproved},
			Entry:  &models.TransitionEntry{Seq: 1, Action: models.ActionApproveAdmission},
		},
	}
	handler := NewAdmissionHandler(mockSvc)

	payload, _ := json.Marshal(dto.TransitionRequest{Reason: "documents verified"})
	c, w := newGinContext(http.MethodPost, "/admissions/adm-1/approve", payload)
	c.Params = gin.Params{{Key: "id", Value: "adm-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.Approve(c)
	require.Equal(t, http.StatusOK, w.Code)

	require.NotNil(t, mockSvc.gotRequest)
	require.Equal(t, "adm-1", mockSvc.gotRequest.RecordID)
	require.Equal(t, models.ActionApproveAdmission, mockSvc.gotRequest.Action)
	require.Equal(t, "admin-1", mockSvc.gotRequest.ActorID)
	require.Equal(t, models.RoleAdmin, mockSvc.gotRequest.ActorRole)
	require.Equal(t, "documents verified", mockSvc.gotRequest.Reason)

	envelope := decodeEnvelope(t, w.Body.Bytes())
	var data dto.TransitionResponse
	require.NoError(t, json.Unmarshal(envelope["data"], &data))
	require.Equal(t, models.StatusApproved, data.Record.Status)
	require.NotNil(t, data.Entry)
}

func TestAdmissionHandlerTransitionWithoutBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &admissionServiceMock{
		outcome: &service.TransitionOutcome{
			Record: models.AdmissionRecord{ID: "adm-1", Status: models.StatusSuspended},
		},
	}
	handler := NewAdmissionHandler(mockSvc)

	c, w := newGinContext(http.MethodPost, "/admissions/adm-1/suspend", nil)
	c.Params = gin.Params{{Key: "id", Value: "adm-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.Suspend(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, models.ActionSuspendStudent, mockSvc.gotRequest.Action)
	require.Equal(t, "", mockSvc.gotRequest.Reason)
}

func TestAdmissionHandlerTransitionWarningsInMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &admissionServiceMock{
		outcome: &service.TransitionOutcome{
			Record:   models.AdmissionRecord{ID: "adm-1", Status: models.StatusApproved},
			Warnings: []string{"notification delivery failed"},
		},
	}
	handler := NewAdmissionHandler(mockSvc)

	c, w := newGinContext(http.MethodPost, "/admissions/adm-1/approve", nil)
	c.Params = gin.Params{{Key: "id", Value: "adm-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.Approve(c)
	require.Equal(t, http.StatusOK, w.Code)

	envelope := decodeEnvelope(t, w.Body.Bytes())
	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(envelope["meta"], &meta))
	warnings, ok := meta["warnings"].([]interface{})
	require.True(t, ok)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0], "notification")
}

func TestAdmissionHandlerTransitionDenied(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &admissionServiceMock{
		transitionErr: appErrors.Clone(appErrors.ErrInvalidTransition, "cannot verify payment for a DROPPED student"),
	}
	handler := NewAdmissionHandler(mockSvc)

	c, w := newGinContext(http.MethodPost, "/admissions/adm-1/verify-full-payment", nil)
	c.Params = gin.Params{{Key: "id", Value: "adm-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "fin-1", Role: models.RoleFinance})

	handler.VerifyFullPayment(c)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), "cannot verify payment for a DROPPED student")
}

func TestAdmissionHandlerTransitionRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &admissionServiceMock{}
	handler := NewAdmissionHandler(mockSvc)

	c, w := newGinContext(http.MethodPost, "/admissions/adm-1/drop", nil)
	c.Params = gin.Params{{Key: "id", Value: "adm-1"}}

	handler.Drop(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Nil(t, mockSvc.gotRequest)
}
