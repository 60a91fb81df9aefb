package routes

import (
	"github.com/gin-gonic/gin"

	ingestHandlers "github.com/codedrop-io/codedrop/internal/interfaces/http/handlers/ingest"
	"github.com/codedrop-io/codedrop/internal/interfaces/http/middleware"
)

// IngestRouteConfig holds dependencies for the ingestion route.
type IngestRouteConfig struct {
	IngestHandler       *ingestHandlers.Handler
	FeedTokenMiddleware *middleware.FeedTokenMiddleware
	RateLimiter         *middleware.RateLimitMiddleware
	IngestPerMinute     int
}

// SetupIngestRoutes configures the route feed collaborators post raw
// messages to.
func SetupIngestRoutes(engine *gin.Engine, config *IngestRouteConfig) {
	engine.POST("/api/ingest",
		config.FeedTokenMiddleware.RequireFeedToken(),
		config.RateLimiter.Limit("ingest", config.IngestPerMinute),
		config.IngestHandler.IngestMessage)
}
