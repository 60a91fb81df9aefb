package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codedrop-io/codedrop/internal/shared/constants"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
	"github.com/codedrop-io/codedrop/internal/shared/utils"
)

// RequireAdminKey guards admin endpoints with a shared key sent in the
// X-Admin-Key header. An empty configured key disables the endpoints.
func RequireAdminKey(apiKey string, log logger.Interface) gin.HandlerFunc {
	expected := []byte(apiKey)

	return func(c *gin.Context) {
		if len(expected) == 0 {
			utils.ErrorResponse(c, http.StatusForbidden, "admin API is disabled")
			c.Abort()
			return
		}

		provided := c.GetHeader(constants.HeaderAdminKey)
		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), expected) != 1 {
			log.Warnw("admin key rejected",
				"path", c.Request.URL.Path,
				"ip", c.ClientIP(),
			)
			utils.ErrorResponse(c, http.StatusUnauthorized, "invalid admin key")
			c.Abort()
			return
		}

		c.Next()
	}
}
