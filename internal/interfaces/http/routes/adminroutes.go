package routes

import (
	"github.com/gin-gonic/gin"

	adminHandlers "github.com/codedrop-io/codedrop/internal/interfaces/http/handlers/admin"
	"github.com/codedrop-io/codedrop/internal/interfaces/http/middleware"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
)

// AdminRouteConfig holds dependencies for admin routes.
type AdminRouteConfig struct {
	CodeHandler      *adminHandlers.CodeHandler
	RateLimitHandler *adminHandlers.RateLimitHandler
	APIKey           string
	Logger           logger.Interface
}

// SetupAdminRoutes configures admin routes. Every route requires the admin
// API key.
func SetupAdminRoutes(engine *gin.Engine, config *AdminRouteConfig) {
	admin := engine.Group("/api/admin")
	admin.Use(middleware.RequireAdminKey(config.APIKey, config.Logger))
	{
		admin.POST("/codes", config.CodeHandler.CreateCode)
		admin.DELETE("/codes/:token", config.CodeHandler.DeleteCode)
		admin.POST("/turbo", config.CodeHandler.SetTurbo)
		admin.GET("/online", config.CodeHandler.ListOnline)
		admin.POST("/rate-limits/reset", config.RateLimitHandler.ResetRateLimit)
	}
}
