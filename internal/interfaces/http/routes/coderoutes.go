package routes

import (
	"github.com/gin-gonic/gin"

	codeHandlers "github.com/codedrop-io/codedrop/internal/interfaces/http/handlers/codes"
	"github.com/codedrop-io/codedrop/internal/interfaces/http/middleware"
)

// CodeRouteConfig holds dependencies for the client-facing code routes.
type CodeRouteConfig struct {
	CodeHandler    *codeHandlers.Handler
	AuthMiddleware *middleware.AuthMiddleware
	RateLimiter    *middleware.RateLimitMiddleware
	ClaimPerMinute int
}

// SetupCodeRoutes configures the polling snapshot, settings, heartbeat and
// claim-result routes.
func SetupCodeRoutes(engine *gin.Engine, config *CodeRouteConfig) {
	api := engine.Group("/api")
	{
		// Public: polling fallback
		api.GET("/codes", config.CodeHandler.ListCodes)
		api.GET("/settings", config.CodeHandler.GetSettings)

		// Account-authenticated
		api.POST("/heartbeat",
			config.AuthMiddleware.RequireAccount(),
			config.CodeHandler.Heartbeat)
		api.POST("/claim-result",
			config.AuthMiddleware.RequireAccount(),
			config.RateLimiter.Limit("claim", config.ClaimPerMinute),
			config.CodeHandler.ReportClaimResult)
	}
}
