package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/codedrop-io/codedrop/internal/infrastructure/auth"
	"github.com/codedrop-io/codedrop/internal/shared/constants"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
	"github.com/codedrop-io/codedrop/internal/shared/utils"
)

// AccountTokenVerifier validates client bearer tokens.
type AccountTokenVerifier interface {
	Verify(token string) (*auth.AccountClaims, error)
}

type AuthMiddleware struct {
	tokens AccountTokenVerifier
	logger logger.Interface
}

func NewAuthMiddleware(tokens AccountTokenVerifier, logger logger.Interface) *AuthMiddleware {
	return &AuthMiddleware{
		tokens: tokens,
		logger: logger,
	}
}

// RequireAccount authenticates the client account from the Authorization
// header and stores its ID in the context.
func (m *AuthMiddleware) RequireAccount() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			utils.ErrorResponse(c, http.StatusUnauthorized, "missing authorization token")
			c.Abort()
			return
		}

		claims, err := m.tokens.Verify(token)
		if err != nil {
			m.logger.Warnw("failed to verify account token", "error", err, "ip", c.ClientIP())
			utils.ErrorResponse(c, http.StatusUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(constants.ContextKeyAccountID, claims.AccountID)
		c.Set(constants.ContextKeyUsername, claims.Username)

		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader(constants.HeaderAuthorization)
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// AccountID returns the authenticated account ID set by RequireAccount.
func AccountID(c *gin.Context) (string, bool) {
	id := c.GetString(constants.ContextKeyAccountID)
	return id, id != ""
}
