package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hotel-reservation/internal/middleware"
)

// RegisterHolder registers the endpoints that act on the caller's own
// reservations and bookings.  All routes require a valid JWT.  Writes that
// take capacity or reach the payment gateway are rate limited per user.
func RegisterHolder(e *echo.Echo, h Handlers, limiter echo.MiddlewareFunc, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(allRoles...),
	)
	limited := optional(limiter)

	r := h.Reservations
	g.POST("/reservations", r.Create, limited...)
	g.POST("/reservations/group", r.CreateGroup, limited...)
	g.GET("/reservations", r.List)
	g.GET("/reservations/groups", r.ListGroups)
	g.GET("/reservations/:id/receipt", r.Receipt)
	g.DELETE("/reservations/:id", r.Cancel)

	ev := h.Events
	g.POST("/events/:id/bookings", ev.Book, limited...)
	g.GET("/events/bookings", ev.List)
	g.GET("/events/bookings/:id/receipt", ev.Receipt)
	g.DELETE("/events/bookings/:id", ev.Cancel)

	p := h.Payments
	g.POST("/payments/initialize", p.Initialize, limited...)
	g.POST("/events/bookings/:id/pay", p.InitializeEvent, limited...)
	g.GET("/payments/verify/:tx_ref", p.Verify)
}
