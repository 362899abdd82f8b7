package handler

import (
	"fulfillment-service/app/middleware"
	"fulfillment-service/config"

	"github.com/gofiber/fiber/v2"
)

func SetupRouter(app *fiber.App, orderHandler *OrderHandler, inventoryHandler *InventoryHandler, cfg *config.Config) {

	api := app.Group("/fulfillment-service")

	api.Post("/orders", orderHandler.Create)
	api.Get("/orders/:order_id", orderHandler.GetByID)
	api.Post("/orders/:order_id/cancel", orderHandler.Cancel)

	api.Get("/products/:product_id/inventory", inventoryHandler.GetByProductID)

	internal := app.Group("/internal/fulfillment-service").Use(middleware.AuthInternal(cfg))
	internal.Post("/inventories", inventoryHandler.Create)
	internal.Post("/reservations", inventoryHandler.Reserve)
	internal.Get("/orders/:order_id/reservations", inventoryHandler.ListReservations)
	internal.Post("/products/:product_id/restock", inventoryHandler.Restock)
	internal.Post("/products/:product_id/adjust", inventoryHandler.Adjust)
	internal.Get("/products/:product_id/reconcile", inventoryHandler.Reconcile)
	internal.Post("/sweeps", inventoryHandler.Sweep)
}
