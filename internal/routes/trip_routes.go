package routes

import (
	"github.com/gin-gonic/gin"

	"dispatch_tracker/internal/controllers"
)

func TripRoutes(api *gin.RouterGroup, tc *controllers.TripStopController) {
	trips := api.Group("/trips")
	{
		trips.POST("", controllers.CreateTrip)
		trips.GET("", controllers.ListTrips)
		trips.GET("/:id", controllers.GetTrip)
		trips.PUT("/:id", controllers.UpdateTrip)
		trips.DELETE("/:id", controllers.DeleteTrip)

		trips.GET("/:id/stops", tc.ListStops)
		trips.POST("/:id/stops", tc.AddStop)
		trips.POST("/:id/reorder-stops", tc.Reorder)
		trips.POST("/:id/orders", tc.AddOrder)
		trips.GET("/:id/completeness", tc.Completeness)
		trips.POST("/:id/notify-driver", tc.NotifyDriver)
		trips.GET("/:id/route", tc.Route)
		trips.GET("/:id/itinerary.pdf", tc.ItineraryPDF)
	}

	api.GET("/trip-stops/:id", tc.GetTripStop)
	api.PUT("/trip-stops/:id", tc.UpdateTripStop)
	api.DELETE("/trip-stops/:id", tc.DeleteStop)
}
