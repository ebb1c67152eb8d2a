package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ims-admission-api/internal/models"
)

type stubCutoverService struct {
	legacyResult models.CutoverPingResult
	legacyErr    error
	goResult     models.CutoverPingResult
	goErr        error
	headers      models.CutoverHeaders
}

func (s stubCutoverService) PingLegacy(context.Context) (models.CutoverPingResult, error) {
	return s.legacyResult, s.legacyErr
}

func (s stubCutoverService) PingGo(context.Context) (models.CutoverPingResult, error) {
	return s.goResult, s.goErr
}

func (s stubCutoverService) HeadersForRequest(*http.Request) models.CutoverHeaders {
	return s.headers
}

func TestCutoverHandlerPingGo(t *testing.T) {
	handler := NewCutoverHandler(stubCutoverService{
		goResult: models.CutoverPingResult{
			Target:    "go",
			Reachable: true,
			Stage:     models.CutoverStageCanary,
			Duration:  time.Millisecond,
		},
	})

	c, w := newGinContext(http.MethodGet, "/internal/ping-go", nil)
	handler.PingGo(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"reachable":true`)
}

func TestCutoverHandlerPingLegacyUnreachable(t *testing.T) {
	handler := NewCutoverHandler(stubCutoverService{
		legacyResult: models.CutoverPingResult{Target: "legacy"},
		legacyErr:    errors.New("connection refused"),
	})

	c, w := newGinContext(http.MethodGet, "/internal/ping-legacy", nil)
	handler.PingLegacy(c)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	// The probe error rides a header so the body stays a plain ping result.
	assert.Equal(t, "connection refused", w.Header().Get("X-Cutover-Error"))
}

func TestCutoverHandlerStatus(t *testing.T) {
	handler := NewCutoverHandler(stubCutoverService{
		headers: models.CutoverHeaders{
			Stage:   models.CutoverStageCanary,
			Segment: "segment-17",
			Backend: models.BackendGo,
		},
	})

	c, w := newGinContext(http.MethodGet, "/internal/cutover/status", nil)
	handler.Status(c)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "canary")
	assert.Contains(t, body, "segment-17")
	assert.Contains(t, body, `"backend":"go"`)
	assert.Contains(t, body, "observed_at")
}

func TestCutoverHandlerWithoutService(t *testing.T) {
	handler := NewCutoverHandler(nil)

	for _, probe := range []func(*gin.Context){handler.PingLegacy, handler.PingGo, handler.Status} {
		c, w := newGinContext(http.MethodGet, "/internal/cutover/status", nil)
		probe(c)
		require.Equal(t, http.StatusServiceUnavailable, w.Code)
	}
}
