package routes

import (
	"github.com/labstack/echo/v4"

	"food-delivery/internal/controllers"
	"food-delivery/internal/entities"
	"food-delivery/pkg/middleware"
)

// runOrderRouter - по группе маршрутов на каждую роль. Все переходы идут
// через один движок, различаются только целевым статусом.
func runOrderRouter(secureGroup *echo.Group, orderCtrl *controllers.OrderController, authMW *middleware.AuthMiddleware) {
	customer := secureGroup.Group("/customer", authMW.RequireRole(entities.RoleCustomer))
	{
		customer.POST("/orders", orderCtrl.CreateOrder)
		customer.GET("/orders", orderCtrl.ListOrders)
		customer.GET("/orders/:id", orderCtrl.GetOrder)
		customer.POST("/orders/:id/cancel", orderCtrl.Transition(entities.StatusCancelled))
	}

	restaurant := secureGroup.Group("/restaurant", authMW.RequireRole(entities.RoleRestaurant))
	{
		restaurant.GET("/orders", orderCtrl.ListOrders)
		restaurant.GET("/orders/:id", orderCtrl.GetOrder)
		restaurant.POST("/orders/:id/review", orderCtrl.Transition(entities.StatusRestaurantReviewing))
		restaurant.POST("/orders/:id/accept", orderCtrl.Transition(entities.StatusPreparing))
		restaurant.POST("/orders/:id/reject", orderCtrl.Transition(entities.StatusCancelled))
		restaurant.POST("/orders/:id/ready", orderCtrl.Transition(entities.StatusAwaitingAgent))
	}

	agent := secureGroup.Group("/agent", authMW.RequireRole(entities.RoleAgent))
	{
		agent.GET("/orders/available", orderCtrl.ListAvailableJobs)
		agent.GET("/orders", orderCtrl.ListOrders)
		agent.GET("/orders/:id", orderCtrl.GetOrder)
		agent.POST("/orders/:id/claim", orderCtrl.Transition(entities.StatusAgentAssigned))
		agent.POST("/orders/:id/pickup", orderCtrl.Transition(entities.StatusPickedUp))
		agent.POST("/orders/:id/deliver", orderCtrl.Transition(entities.StatusDelivered))
	}

	admin := secureGroup.Group("/admin", authMW.RequireRole(entities.RoleAdmin))
	{
		admin.GET("/orders", orderCtrl.ListOrders)
		admin.GET("/orders/:id", orderCtrl.GetOrder)
		admin.POST("/orders/:id/status", orderCtrl.ChangeStatus)
	}
}
