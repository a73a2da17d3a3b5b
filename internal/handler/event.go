package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/service"
)

// EventHandler serves ticket bookings for events.
type EventHandler struct {
	Allocator *service.Allocator
	Lifecycle *service.Lifecycle
	Logger    *zap.Logger
}

func NewEventHandler(allocator *service.Allocator, lifecycle *service.Lifecycle, logger *zap.Logger) *EventHandler {
	if allocator == nil || lifecycle == nil {
		panic("nil service passed to NewEventHandler")
	}
	return &EventHandler{Allocator: allocator, Lifecycle: lifecycle, Logger: logger}
}

// Book handles POST /v1/events/:id/bookings with {ticket_type, quantity}.
// The booking starts pending; pay for it via /v1/events/bookings/:id/pay.
func (h *EventHandler) Book(c echo.Context) error {
	holderID, ok := holder(c)
	if !ok {
		return unauthorized(c)
	}
	eventID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid event id")
	}
	var body struct {
		TicketType string `json:"ticket_type"`
		Quantity   int    `json:"quantity"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	b, err := h.Allocator.BookEvent(c.Request().Context(), service.EventRequest{
		HolderID: holderID,
		EventID:  eventID,
		Tier:     model.Tier(strings.ToLower(strings.TrimSpace(body.TicketType))),
		Quantity: body.Quantity,
	})
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// List handles GET /v1/events/bookings.
func (h *EventHandler) List(c echo.Context) error {
	holderID, ok := holder(c)
	if !ok {
		return unauthorized(c)
	}
	list, err := h.Lifecycle.ListEventBookings(c.Request().Context(), holderID)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	if list == nil {
		list = []model.EventBooking{}
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": list})
}

// Receipt handles GET /v1/events/bookings/:id/receipt.
func (h *EventHandler) Receipt(c echo.Context) error {
	holderID, ok := holder(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid booking id")
	}
	rc, err := h.Lifecycle.EventReceipt(c.Request().Context(), holderID, id)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, rc)
}

// Cancel handles DELETE /v1/events/bookings/:id.
func (h *EventHandler) Cancel(c echo.Context) error {
	holderID, ok := holder(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid booking id")
	}
	b, err := h.Lifecycle.CancelEventOwned(c.Request().Context(), holderID, id)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok", "booking": b})
}
