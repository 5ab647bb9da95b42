package routes

import (
	"github.com/gin-gonic/gin"

	"dispatch_tracker/internal/controllers"
	"dispatch_tracker/internal/middleware"
)

// Deps are the handlers and middleware that need wiring at startup.
type Deps struct {
	TripStops *controllers.TripStopController
	Limiter   *middleware.RateLimiter
}

func SetupRouter(r *gin.Engine, deps Deps) *gin.Engine {
	r.Use(middleware.RequestID())
	if deps.Limiter != nil {
		r.Use(deps.Limiter.Middleware())
	}

	AuthRoutes(r)

	api := r.Group("/api")
	api.Use(middleware.RequireAuth())
	{
		ProfileRoutes(api)
		VehicleRoutes(api)
		PositionRoutes(api)
		OrderRoutes(api)
		TripRoutes(api, deps.TripStops)
	}
	AdminRoutes(r)

	return r
}
