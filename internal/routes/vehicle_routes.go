package routes

import (
	"github.com/gin-gonic/gin"

	"dispatch_tracker/internal/controllers"
)

func VehicleRoutes(api *gin.RouterGroup) {
	vehicles := api.Group("/vehicles")
	{
		vehicles.POST("", controllers.CreateVehicle)
		vehicles.GET("", controllers.GetMyVehicles)
		vehicles.GET("/:id", controllers.GetVehicle)
		vehicles.PUT("/:id", controllers.UpdateVehicle)
		vehicles.DELETE("/:id", controllers.DeleteVehicle)
	}
}

func PositionRoutes(api *gin.RouterGroup) {
	positions := api.Group("/positions")
	{
		positions.POST("", controllers.CreatePosition)
		positions.GET("", controllers.ListPositions)
		positions.GET("/latest", controllers.LatestPositions)
	}
}
