package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ims-admission-api/internal/models"
)

func rbacRouter(claims *models.JWTClaims, roles ...models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if claims != nil {
			c.Set(ContextUserKey, claims)
		}
	})
	router.GET("/", RequireRoles(roles...), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func TestRequireRolesAllowsListedRole(t *testing.T) {
	router := rbacRouter(&models.JWTClaims{UserID: "fin-1", Role: models.RoleFinance},
		models.RoleAdmin, models.RoleFinance)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestRequireRolesRejectsOtherRole(t *testing.T) {
	router := rbacRouter(&models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent},
		models.RoleAdmin, models.RoleFinance)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	if recorder.Code != http.StatusForbidden {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestRequireRolesRejectsAnonymous(t *testing.T) {
	router := rbacRouter(nil, models.RoleAdmin)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}
