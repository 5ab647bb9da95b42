package routes

import (
	"github.com/gin-gonic/gin"

	"dispatch_tracker/internal/controllers"
)

func OrderRoutes(api *gin.RouterGroup) {
	orders := api.Group("/orders")
	{
		orders.POST("", controllers.CreateOrder)
		orders.GET("", controllers.ListOrders)
		orders.GET("/:id", controllers.GetOrder)
		orders.PATCH("/:id/status", controllers.UpdateOrderStatus)
		orders.DELETE("/:id", controllers.DeleteOrder)
	}

	stops := api.Group("/stops")
	{
		stops.POST("", controllers.CreateStop)
		stops.GET("", controllers.ListStops)
	}
}
