package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/service"
)

// ReservationHandler serves the holder-facing room reservation endpoints.
// Every route sits behind JWTAuth; the holder is always the token subject.
type ReservationHandler struct {
	Allocator *service.Allocator
	Lifecycle *service.Lifecycle
	Logger    *zap.Logger
}

// NewReservationHandler panics on nil dependencies.
func NewReservationHandler(allocator *service.Allocator, lifecycle *service.Lifecycle, logger *zap.Logger) *ReservationHandler {
	if allocator == nil || lifecycle == nil {
		panic("nil service passed to NewReservationHandler")
	}
	return &ReservationHandler{Allocator: allocator, Lifecycle: lifecycle, Logger: logger}
}

type stayRequest struct {
	CheckIn      string  `json:"check_in"`
	CheckOut     string  `json:"check_out"`
	DiscountRate float64 `json:"discount_rate"`
}

// Create handles POST /v1/reservations with {room_id, check_in, check_out,
// discount_rate}.  It books one specific room and returns 201 with the id
// and the new pending reservation.
func (h *ReservationHandler) Create(c echo.Context) error {
	holderID, ok := holder(c)
	if !ok {
		return unauthorized(c)
	}
	var body struct {
		stayRequest
		RoomID uint64 `json:"room_id"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.RoomID == 0 {
		return badRequest(c, "room_id is required")
	}
	iv, err := parseInterval(body.CheckIn, body.CheckOut)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	r, err := h.Allocator.AllocateUnit(c.Request().Context(), service.UnitRequest{
		HolderID:     holderID,
		RoomID:       body.RoomID,
		Interval:     iv,
		DiscountRate: body.DiscountRate,
	})
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"reservation_id": r.ID, "reservation": r})
}

// CreateGroup handles POST /v1/reservations/group with {room_type_id,
// check_in, check_out, num_rooms, discount_rate}.  Either every room is
// reserved or none is.
func (h *ReservationHandler) CreateGroup(c echo.Context) error {
	holderID, ok := holder(c)
	if !ok {
		return unauthorized(c)
	}
	var body struct {
		stayRequest
		RoomTypeID uint64 `json:"room_type_id"`
		NumRooms   int    `json:"num_rooms"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.RoomTypeID == 0 {
		return badRequest(c, "room_type_id is required")
	}
	iv, err := parseInterval(body.CheckIn, body.CheckOut)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	list, err := h.Allocator.AllocateGroup(c.Request().Context(), service.GroupRequest{
		HolderID:     holderID,
		RoomTypeID:   body.RoomTypeID,
		Interval:     iv,
		Count:        body.NumRooms,
		DiscountRate: body.DiscountRate,
	})
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	ids := make([]uint64, 0, len(list))
	var total int64
	for _, r := range list {
		ids = append(ids, r.ID)
		total += r.FinalPriceCents
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"reservation_ids":   ids,
		"count":             len(ids),
		"final_price_cents": total,
		"reservations":      list,
	})
}

// List handles GET /v1/reservations.
func (h *ReservationHandler) List(c echo.Context) error {
	holderID, ok := holder(c)
	if !ok {
		return unauthorized(c)
	}
	list, err := h.Lifecycle.ListReservations(c.Request().Context(), holderID)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	if list == nil {
		list = []model.Reservation{}
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": list})
}

// ListGroups handles GET /v1/reservations/groups: the holder's reservations
// folded back into the allocations that created them.
func (h *ReservationHandler) ListGroups(c echo.Context) error {
	holderID, ok := holder(c)
	if !ok {
		return unauthorized(c)
	}
	groups, err := h.Lifecycle.ListGroups(c.Request().Context(), holderID)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	if groups == nil {
		groups = []model.ReservationGroup{}
	}
	return c.JSON(http.StatusOK, echo.Map{"groups": groups})
}

// Receipt handles GET /v1/reservations/:id/receipt.
func (h *ReservationHandler) Receipt(c echo.Context) error {
	holderID, ok := holder(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	rc, err := h.Lifecycle.Receipt(c.Request().Context(), holderID, id)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, rc)
}

// Cancel handles DELETE /v1/reservations/:id.  Only the holder may cancel,
// and only from pending or confirmed.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	holderID, ok := holder(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	r, err := h.Lifecycle.CancelOwned(c.Request().Context(), holderID, id)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok", "reservation": r})
}
