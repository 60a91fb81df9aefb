package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codedrop-io/codedrop/internal/shared/constants"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
	"github.com/codedrop-io/codedrop/internal/shared/utils"
)

// FeedTokenVerifier validates tokens presented by ingestion producers.
type FeedTokenVerifier interface {
	Verify(token string) (source string, err error)
}

type FeedTokenMiddleware struct {
	tokens FeedTokenVerifier
	logger logger.Interface
}

func NewFeedTokenMiddleware(tokens FeedTokenVerifier, logger logger.Interface) *FeedTokenMiddleware {
	return &FeedTokenMiddleware{
		tokens: tokens,
		logger: logger,
	}
}

// RequireFeedToken accepts the token from the X-Feed-Token header or as a
// Bearer token and stores the feed source name in the context.
func (m *FeedTokenMiddleware) RequireFeedToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(constants.HeaderFeedToken)
		if token == "" {
			token, _ = bearerToken(c)
		}

		if token == "" {
			utils.ErrorResponse(c, http.StatusUnauthorized, "missing feed token")
			c.Abort()
			return
		}

		source, err := m.tokens.Verify(token)
		if err != nil {
			m.logger.Warnw("feed token validation failed", "error", err, "ip", c.ClientIP())
			utils.ErrorResponse(c, http.StatusUnauthorized, "invalid feed token")
			c.Abort()
			return
		}

		c.Set(constants.ContextKeyFeedSource, source)
		c.Next()
	}
}
