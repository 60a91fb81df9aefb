package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codedrop-io/codedrop/internal/interfaces/http/middleware"
	"github.com/codedrop-io/codedrop/internal/interfaces/http/routes"
)

const serviceName = "codedrop"

// Router represents the HTTP router configuration
type Router struct {
	*Container
}

// NewRouter wraps a fully wired Container.
func NewRouter(c *Container) *Router {
	return &Router{Container: c}
}

// SetupRoutes configures all HTTP routes
func (r *Router) SetupRoutes() {
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.RequestLogger(r.log))
	r.engine.Use(middleware.Recovery(r.log))
	r.engine.Use(middleware.CORS(r.cfg.Server.AllowedOrigins))
	r.engine.Use(middleware.SecurityHeaders())

	r.engine.GET("/health", r.healthCheck)

	routes.SetupCodeRoutes(r.engine, &routes.CodeRouteConfig{
		CodeHandler:    r.codeHandler,
		AuthMiddleware: r.authMiddleware,
		RateLimiter:    r.rateLimiter,
		ClaimPerMinute: r.cfg.RateLimit.ClaimPerMinute,
	})

	routes.SetupAccountRoutes(r.engine, &routes.AccountRouteConfig{
		AccountHandler:   r.accountHandler,
		AuthMiddleware:   r.authMiddleware,
		RateLimiter:      r.rateLimiter,
		ConnectPerMinute: r.cfg.RateLimit.ConnectPerMinute,
	})

	routes.SetupIngestRoutes(r.engine, &routes.IngestRouteConfig{
		IngestHandler:       r.ingestHandler,
		FeedTokenMiddleware: r.feedTokenMiddleware,
		RateLimiter:         r.rateLimiter,
		IngestPerMinute:     r.cfg.RateLimit.IngestPerMinute,
	})

	routes.SetupAdminRoutes(r.engine, &routes.AdminRouteConfig{
		CodeHandler:      r.adminCodeHandler,
		RateLimitHandler: r.adminRateLimitHandler,
		APIKey:           r.cfg.Admin.APIKey,
		Logger:           r.log,
	})

	routes.SetupLiveRoutes(r.engine, &routes.LiveRouteConfig{
		LiveHandler: r.liveHandler,
	})
}

func (r *Router) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": serviceName,
		"online":  r.hub.OnlineCount(),
		"codes":   len(r.codeCache.Snapshot()),
	})
}

// GetEngine returns the gin engine
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
