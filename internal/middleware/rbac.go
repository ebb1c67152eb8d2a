package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ims-admission-api/internal/models"
	appErrors "github.com/noah-isme/ims-admission-api/pkg/errors"
	"github.com/noah-isme/ims-admission-api/pkg/response"
)

// RequireRoles lets the request through only when the authenticated user
// holds one of the given roles. Ownership rules (a report's creator polling
// its own job) live in the services, so this stays a pure role gate.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(c *gin.Context) {
		claims := ClaimsFrom(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// ClaimsFrom pulls the decoded JWT claims off the context, or nil when no
// auth middleware ran. Handlers and audit share this one accessor so the
// context key never leaks past this package.
func ClaimsFrom(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	claims, _ := value.(*models.JWTClaims)
	return claims
}
