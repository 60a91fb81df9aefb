package routes

import (
	"github.com/gin-gonic/gin"

	liveHandlers "github.com/codedrop-io/codedrop/internal/interfaces/http/handlers/live"
)

// LiveRouteConfig holds dependencies for the live channel route.
type LiveRouteConfig struct {
	LiveHandler *liveHandlers.Handler
}

// SetupLiveRoutes configures the WebSocket endpoint. Authentication happens
// in-band with the first frame, so no auth middleware is applied.
func SetupLiveRoutes(engine *gin.Engine, config *LiveRouteConfig) {
	engine.GET("/ws", config.LiveHandler.Connect)
}
