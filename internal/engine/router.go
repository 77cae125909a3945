package engine

import "github.com/gofiber/fiber/v2"

// RegisterDashboardRoutes mounts the authenticated dashboard API. Fixed
// booking routes are registered before the generic collection routes.
func RegisterDashboardRoutes(api fiber.Router, h *Handler) {
	api.Get("/stats", h.Stats)

	api.Post("/bookings/import", h.ImportBookings)
	api.Post("/bookings/:id/assets", h.AssignAsset)
	api.Delete("/bookings/:id/assets/:slot", h.ReleaseAsset)
	api.Post("/bookings/:id/events", h.TriggerEvent)

	api.Get("/:collection", h.List)
	api.Get("/:collection/:id", h.GetByID)
	api.Post("/:collection", h.Create)
	api.Put("/:collection/:id", h.Update)
	api.Delete("/:collection/:id", h.Delete)
}
