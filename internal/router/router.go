// Package router maps the HTTP surface onto handlers and middleware.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hotel-reservation/internal/handler"
	"github.com/iliyamo/hotel-reservation/internal/middleware"
)

// Handlers bundles everything the routes dispatch to.
type Handlers struct {
	Health       *handler.HealthHandler
	Availability *handler.AvailabilityHandler
	Reservations *handler.ReservationHandler
	Events       *handler.EventHandler
	Payments     *handler.PaymentHandler
	Admin        *handler.AdminHandler
}

// Middlewares are the optional Redis-backed layers.  Nil entries are
// skipped.
type Middlewares struct {
	RateLimit     echo.MiddlewareFunc
	ResponseCache echo.MiddlewareFunc
}

// Register wires every route group onto e.
func Register(e *echo.Echo, h Handlers, mw Middlewares, jwtSecret string) {
	RegisterRoutes(e, h.Health)
	RegisterPublic(e, h.Availability, h.Payments, mw.ResponseCache)
	RegisterHolder(e, h, mw.RateLimit, jwtSecret)
	RegisterAdmin(e, h.Admin, jwtSecret)
}

// RegisterRoutes registers the probes.  /healthz only says the process is
// up; /readyz also checks the database.
func RegisterRoutes(e *echo.Echo, health *handler.HealthHandler) {
	e.GET("/healthz", handler.Live)
	if health != nil {
		e.GET("/readyz", health.Ready)
	}
}

// RegisterPublic registers the unauthenticated endpoints: availability
// reads and the payment provider's callback.  The gap search is the most
// expensive read and sits behind the response cache.
func RegisterPublic(e *echo.Echo, a *handler.AvailabilityHandler, p *handler.PaymentHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/room-types/:id/availability", a.RoomType)
	e.GET("/v1/room-types/:id/rooms", a.Rooms)
	e.GET("/v1/room-types/:id/gaps", a.Gaps, optional(cache)...)
	e.GET("/v1/events/:id/availability", a.Event)

	e.GET("/v1/payments/callback", p.Callback)
	e.POST("/v1/payments/callback", p.Callback)
}

func optional(mw ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := make([]echo.MiddlewareFunc, 0, len(mw))
	for _, m := range mw {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// allRoles may act as a holder.  Admins book on behalf of walk-in guests.
var allRoles = []string{middleware.RoleCustomer, middleware.RoleAdmin}
