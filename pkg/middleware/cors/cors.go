package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// The exposed headers let browser dashboards read the request id and the
// cutover stage markers off responses. The API surface is reads plus action
// endpoints, so only GET and POST ever cross origins.
const (
	allowMethods  = "GET, POST, OPTIONS"
	allowHeaders  = "Authorization, Content-Type, X-Requested-With, X-Request-ID, X-Client-Segment"
	exposeHeaders = "X-Request-ID, X-Cutover-Stage, X-Client-Segment, X-Served-By"
)

// New returns a CORS middleware honoring a list of allowed origins. An
// empty list allows every origin, which the dev environment relies on.
func New(allowedOrigins []string) gin.HandlerFunc {
	originSet := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		originSet[strings.TrimRight(origin, "/")] = struct{}{}
	}
	allowed := func(origin string) bool {
		if len(originSet) == 0 {
			return true
		}
		_, ok := originSet[strings.TrimRight(origin, "/")]
		return ok
	}

	return func(c *gin.Context) {
		header := c.Writer.Header()

		switch origin := c.GetHeader("Origin"); {
		case origin != "" && allowed(origin):
			header.Set("Access-Control-Allow-Origin", origin)
		case origin == "" && len(originSet) == 0:
			header.Set("Access-Control-Allow-Origin", "*")
		}

		header.Set("Vary", "Origin")
		header.Set("Access-Control-Allow-Credentials", "true")
		header.Set("Access-Control-Allow-Headers", allowHeaders)
		header.Set("Access-Control-Allow-Methods", allowMethods)
		header.Set("Access-Control-Expose-Headers", exposeHeaders)
		header.Set("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
