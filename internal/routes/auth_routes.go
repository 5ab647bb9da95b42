package routes

import (
	"github.com/gin-gonic/gin"

	"dispatch_tracker/internal/controllers"
)

func AuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/signup", controllers.SignupUser)
		auth.POST("/login", controllers.LoginUser)
	}
}

func ProfileRoutes(api *gin.RouterGroup) {
	api.GET("/me", controllers.GetProfile)
	api.PUT("/me", controllers.UpdateProfile)
	api.PUT("/company", controllers.UpdateCompany)
}
