package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"github.com/goalforge/entitlement/internal/domain/valueobject"
	"github.com/goalforge/entitlement/internal/interfaces/http/response"
)

// DevGate guards the test/dev surface. The routes exist only outside
// production; an optional shared token adds a second check for deployed
// preview environments.
func DevGate(env valueobject.Environment, devToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !env.AllowsDevSurface() {
			response.Forbidden(c, "Not available in this environment")
			c.Abort()
			return
		}

		if devToken != "" {
			provided := c.GetHeader("X-Dev-Token")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(devToken)) != 1 {
				response.Unauthorized(c, "Invalid dev token")
				c.Abort()
				return
			}
		}

		c.Next()
	}
}
