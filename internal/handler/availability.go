package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/service"
)

// AvailabilityHandler serves the public, read-only capacity endpoints.
type AvailabilityHandler struct {
	Availability *service.AvailabilityService
	Finder       *service.GapFinder
	Logger       *zap.Logger
}

// NewAvailabilityHandler panics on nil dependencies.
func NewAvailabilityHandler(availability *service.AvailabilityService, gaps *service.GapFinder, logger *zap.Logger) *AvailabilityHandler {
	if availability == nil || gaps == nil {
		panic("nil service passed to NewAvailabilityHandler")
	}
	return &AvailabilityHandler{Availability: availability, Finder: gaps, Logger: logger}
}

// RoomType handles GET /v1/room-types/:id/availability?check_in=&check_out=.
// A type without sellable rooms answers 404 no_units rather than a zero
// count so clients can tell it apart from "sold out".
func (h *AvailabilityHandler) RoomType(c echo.Context) error {
	typeID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid room type id")
	}
	iv, err := parseInterval(c.QueryParam("check_in"), c.QueryParam("check_out"))
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	a, err := h.Availability.CountAvailable(c.Request().Context(), typeID, iv)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	if a.NoUnits() {
		return respondError(c, h.Logger, service.ErrNoUnits)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"room_type_id": typeID,
		"check_in":     iv.CheckIn,
		"check_out":    iv.CheckOut,
		"available":    a.Display(),
		"total":        a.Total,
		"occupied":     a.Occupied,
	})
}

// Rooms handles GET /v1/room-types/:id/rooms?check_in=&check_out=: every
// room of the type with a per-stay free flag.
func (h *AvailabilityHandler) Rooms(c echo.Context) error {
	typeID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid room type id")
	}
	iv, err := parseInterval(c.QueryParam("check_in"), c.QueryParam("check_out"))
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	rooms, err := h.Availability.ListUnitAvailability(c.Request().Context(), typeID, iv)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	if rooms == nil {
		rooms = []model.UnitAvailability{}
	}
	return c.JSON(http.StatusOK, echo.Map{"room_type_id": typeID, "rooms": rooms})
}

// Gaps handles GET /v1/room-types/:id/gaps?from=YYYY-MM-DD&horizon_days=N.
func (h *AvailabilityHandler) Gaps(c echo.Context) error {
	typeID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid room type id")
	}
	from, err := model.ParseDate(c.QueryParam("from"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "from must be YYYY-MM-DD", "reason": ReasonInvalidInterval})
	}
	horizon := 0
	if raw := c.QueryParam("horizon_days"); raw != "" {
		horizon, err = strconv.Atoi(raw)
		if err != nil || horizon < 1 || horizon > 366 {
			return badRequest(c, "horizon_days must be between 1 and 366")
		}
	}
	report, err := h.Finder.FindGaps(c.Request().Context(), typeID, from, horizon)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, report)
}

// Event handles GET /v1/events/:id/availability?ticket_type=vip|regular.
func (h *AvailabilityHandler) Event(c echo.Context) error {
	eventID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid event id")
	}
	tier := model.Tier(strings.ToLower(strings.TrimSpace(c.QueryParam("ticket_type"))))
	a, err := h.Availability.CountEventAvailable(c.Request().Context(), eventID, tier)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"event_id":    eventID,
		"ticket_type": a.Tier,
		"capacity":    a.Capacity,
		"held":        a.Held,
		"available":   max(a.Available, 0),
		"remaining":   a.Remaining,
	})
}
