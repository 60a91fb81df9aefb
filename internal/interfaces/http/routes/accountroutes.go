package routes

import (
	"github.com/gin-gonic/gin"

	accountHandlers "github.com/codedrop-io/codedrop/internal/interfaces/http/handlers/accounts"
	"github.com/codedrop-io/codedrop/internal/interfaces/http/middleware"
)

// AccountRouteConfig holds dependencies for the account routes.
type AccountRouteConfig struct {
	AccountHandler   *accountHandlers.Handler
	AuthMiddleware   *middleware.AuthMiddleware
	RateLimiter      *middleware.RateLimitMiddleware
	ConnectPerMinute int
}

// SetupAccountRoutes configures username connect and notification sync.
func SetupAccountRoutes(engine *gin.Engine, config *AccountRouteConfig) {
	api := engine.Group("/api")
	{
		api.POST("/auth/connect",
			config.RateLimiter.Limit("connect", config.ConnectPerMinute),
			config.AccountHandler.Connect)

		api.POST("/notifications/sync",
			config.AuthMiddleware.RequireAccount(),
			config.AccountHandler.SyncNotifications)
	}
}
