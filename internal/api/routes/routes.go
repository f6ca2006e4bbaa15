package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/veecodes14/ride-hailing/internal/api/handlers"
	"github.com/veecodes14/ride-hailing/internal/api/middleware"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, nrApp *newrelic.Application) {
	if nrApp != nil {
		r.Use(nrgin.Middleware(nrApp))
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "healthy"})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	v1.Use(middleware.Identity())
	{
		// WebSocket connection
		v1.GET("/ws", h.HandleWebSocket)

		// Ride lifecycle
		rides := v1.Group("/rides")
		{
			rides.POST("", h.RequestRide)
			rides.GET("/pending", h.ListPendingRides)
			rides.GET("/:id", h.GetRide)
			rides.POST("/:id/claim", h.ClaimRide)
			rides.POST("/:id/start", h.StartRide)
			rides.POST("/:id/complete", h.CompleteRide)
			rides.POST("/:id/cancel", h.CancelRide)
		}
	}
}
