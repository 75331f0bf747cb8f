package httpserver

import (
	"github.com/labstack/echo/v4"

	middleware "github.com/Skotchmaster/restaurant_orders/pkg/middleware/auth"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/live"
)

type Deps struct {
	OrderHandler *OrderHTTP
	MenuHandler  *MenuHTTP
	Health       *Health
	Live         *live.Hub
	JWTSecret    []byte
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", d.Health.Live)
	e.GET("/health/ready", d.Health.Ready)

	authMW := middleware.NewTenantMiddleware(d.JWTSecret)

	orders := e.Group("/orders", authMW.RequireTenant)
	orders.POST("", d.OrderHandler.CreateOrder)
	orders.GET("", d.OrderHandler.ListOrders)
	if d.Live != nil {
		orders.GET("/live", d.Live.ServeWS)
	}
	orders.GET("/:id", d.OrderHandler.GetOrder)
	orders.PATCH("/:id/status", d.OrderHandler.UpdateStatus)
	orders.PATCH("/:id/payment", d.OrderHandler.UpdatePayment)
	orders.DELETE("/:id", d.OrderHandler.DeleteOrder)

	menu := e.Group("/menu/items", authMW.RequireTenant)
	menu.GET("", d.MenuHandler.ListItems)
	menu.GET("/:id", d.MenuHandler.GetItem)

	menuAdmin := menu.Group("", authMW.RequireAdmin)
	menuAdmin.POST("", d.MenuHandler.CreateItem)
	menuAdmin.PATCH("/:id", d.MenuHandler.PatchItem)
	menuAdmin.DELETE("/:id", d.MenuHandler.DeleteItem)

	admin := e.Group("/admin", authMW.RequireAdmin)
	admin.POST("/reconcile", d.OrderHandler.Reconcile)
}
