package server

import (
	"github.com/labstack/echo/v4"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
	"github.com/rs-labo46/ec-fulfillment/internal/middleware"
)

func RegisterRoutes(e *echo.Echo, d Deps) {
	auth := middleware.AuthJWT(d.Config.JWTSecret)

	if d.Health != nil {
		d.Health.RegisterRoutes(e)
	}
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	}

	// 購入者
	d.Checkout.RegisterRoutes(e, auth)
	d.Orders.RegisterRoutes(e, auth)
	d.Cart.RegisterRoutes(e, auth)

	// ゲートウェイ（署名で検証するので認証なし）
	d.Payments.RegisterRoutes(e)

	// 管理者
	admin := e.Group("/admin", auth, middleware.RequireRole(model.RoleAdmin))
	d.AdminOrders.RegisterRoutes(admin)
	d.AdminInventory.RegisterRoutes(admin)
}
