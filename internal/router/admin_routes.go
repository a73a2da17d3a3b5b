package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hotel-reservation/internal/handler"
	"github.com/iliyamo/hotel-reservation/internal/middleware"
)

// RegisterAdmin registers operator endpoints under /v1/admin.  They require
// a valid JWT with the ADMIN role.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleAdmin),
	)
	g.GET("/reservations", h.ListReservations)
	g.PATCH("/reservations/:id", h.PatchReservation)
	g.DELETE("/reservations/:id", h.DeleteReservation)
	g.POST("/reservations/expire", h.ExpirePending)

	g.PATCH("/events/bookings/:id", h.PatchEventBooking)
	g.DELETE("/events/bookings/:id", h.DeleteEventBooking)
	g.POST("/events/reconcile", h.ReconcileEvent)
}
