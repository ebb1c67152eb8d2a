package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ims-admission-api/internal/dto"
	"github.com/noah-isme/ims-admission-api/internal/lifecycle"
	"github.com/noah-isme/ims-admission-api/internal/models"
)

func TestLifecycleHandlerStates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry, err := lifecycle.DefaultRegistry()
	require.NoError(t, err)
	handler := NewLifecycleHandler(registry)

	c, w := newGinContext(http.MethodGet, "/lifecycle/states", nil)

	handler.States(c)
	require.Equal(t, http.StatusOK, w.Code)

	envelope := decodeEnvelope(t, w.Body.Bytes())
	var states []dto.StateInfo
	require.NoError(t, json.Unmarshal(envelope["data"], &states))
	require.Len(t, states, 11)

	byStatus := make(map[models.AdmissionStatus]dto.StateInfo, len(states))
	for _, s := range states {
		byStatus[s.Status] = s
	}
	require.True(t, byStatus[models.StatusDropped].Terminal)
	require.True(t, byStatus[models.StatusRejected].Terminal)
	require.True(t, byStatus[models.StatusCourseCompleted].Terminal)
	require.False(t, byStatus[models.StatusActive].Terminal)
}

func TestLifecycleHandlerActions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry, err := lifecycle.DefaultRegistry()
	require.NoError(t, err)
	handler := NewLifecycleHandler(registry)

	c, w := newGinContext(http.MethodGet, "/lifecycle/actions", nil)

	handler.Actions(c)
	require.Equal(t, http.StatusOK, w.Code)

	envelope := decodeEnvelope(t, w.Body.Bytes())
	var actions []dto.ActionInfo
	require.NoError(t, json.Unmarshal(envelope["data"], &actions))
	require.Len(t, actions, 12)

	byAction := make(map[models.Action]dto.ActionInfo, len(actions))
	for _, a := range actions {
		byAction[a.Action] = a
	}
	enable := byAction[models.ActionEnableAccess]
	require.True(t, enable.RestorePrior)
	require.Contains(t, enable.Roles, models.RoleSuperAdmin)

	approve := byAction[models.ActionApproveAdmission]
	require.Equal(t, models.StatusApproved, approve.To)
	require.Equal(t, []models.AdmissionStatus{models.StatusPending}, approve.From)
}
