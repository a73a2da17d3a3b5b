package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/service"
)

// AdminHandler exposes operator actions: listing, manual status changes,
// deletion, expiry of abandoned checkouts and event capacity repair.
// Routes are guarded by RequireRole(ADMIN).
type AdminHandler struct {
	Lifecycle     *service.Lifecycle
	Payments      *service.Payments
	PendingExpiry time.Duration
	Logger        *zap.Logger
}

func NewAdminHandler(lifecycle *service.Lifecycle, payments *service.Payments, pendingExpiry time.Duration, logger *zap.Logger) *AdminHandler {
	if lifecycle == nil || payments == nil {
		panic("nil service passed to NewAdminHandler")
	}
	return &AdminHandler{Lifecycle: lifecycle, Payments: payments, PendingExpiry: pendingExpiry, Logger: logger}
}

type patchBody struct {
	Status     *string `json:"status"`
	PaymentRef *string `json:"payment_ref"`
}

func (b patchBody) patch() model.ReservationPatch {
	var p model.ReservationPatch
	if b.Status != nil {
		s := model.Status(strings.ToLower(strings.TrimSpace(*b.Status)))
		p.Status = &s
	}
	p.PaymentRef = b.PaymentRef
	return p
}

// ListReservations handles GET /v1/admin/reservations[?status=].
func (h *AdminHandler) ListReservations(c echo.Context) error {
	status := model.Status(strings.ToLower(strings.TrimSpace(c.QueryParam("status"))))
	list, err := h.Lifecycle.ListAll(c.Request().Context(), status)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	if list == nil {
		list = []model.RoomReceipt{}
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": list, "count": len(list)})
}

// PatchReservation handles PATCH /v1/admin/reservations/:id with any of
// {status, payment_ref}.  Omitted fields are left untouched; confirming is
// refused with invalid_transition.
func (h *AdminHandler) PatchReservation(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	var body patchBody
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.Status == nil && body.PaymentRef == nil {
		return badRequest(c, "nothing to update")
	}
	r, err := h.Lifecycle.OperatorPatch(c.Request().Context(), id, body.patch())
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok", "reservation": r})
}

// DeleteReservation handles DELETE /v1/admin/reservations/:id.  Without
// ?force=true only cancelled or completed reservations can be removed.
func (h *AdminHandler) DeleteReservation(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	ctx := c.Request().Context()
	var err error
	if forced(c) {
		err = h.Lifecycle.ForceDelete(ctx, id)
	} else {
		err = h.Lifecycle.Delete(ctx, id)
	}
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	h.Logger.Info("reservation deleted", zap.Uint64("id", id), zap.Bool("force", forced(c)), zap.Uint64("by", actor(c)))
	return c.NoContent(http.StatusNoContent)
}

// PatchEventBooking handles PATCH /v1/admin/events/bookings/:id with
// {status}.
func (h *AdminHandler) PatchEventBooking(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid booking id")
	}
	var body patchBody
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.Status == nil {
		return badRequest(c, "status is required")
	}
	b, err := h.Lifecycle.OperatorSetEventStatus(c.Request().Context(), id, *body.patch().Status)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok", "booking": b})
}

// DeleteEventBooking handles DELETE /v1/admin/events/bookings/:id[?force=true].
func (h *AdminHandler) DeleteEventBooking(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid booking id")
	}
	ctx := c.Request().Context()
	var err error
	if forced(c) {
		err = h.Lifecycle.ForceDeleteEventBooking(ctx, id)
	} else {
		err = h.Lifecycle.DeleteEventBooking(ctx, id)
	}
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	h.Logger.Info("event booking deleted", zap.Uint64("id", id), zap.Bool("force", forced(c)), zap.Uint64("by", actor(c)))
	return c.NoContent(http.StatusNoContent)
}

// ExpirePending handles POST /v1/admin/reservations/expire with an
// optional {older_than: "45m"}; the configured expiry is the default.
func (h *AdminHandler) ExpirePending(c echo.Context) error {
	var body struct {
		OlderThan string `json:"older_than"`
	}
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&body); err != nil {
			return badRequest(c, "invalid request body")
		}
	}
	olderThan := h.PendingExpiry
	if body.OlderThan != "" {
		d, err := time.ParseDuration(body.OlderThan)
		if err != nil || d <= 0 {
			return badRequest(c, "older_than must be a positive duration like 30m")
		}
		olderThan = d
	}
	report, err := h.Lifecycle.ExpirePending(c.Request().Context(), olderThan)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, report)
}

// ReconcileEvent handles POST /v1/admin/events/reconcile with {tx_ref}.  It
// applies a confirmed booking's tickets to the remaining counter if that
// has not happened yet.
func (h *AdminHandler) ReconcileEvent(c echo.Context) error {
	var body struct {
		TxRef string `json:"tx_ref"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	applied, err := h.Payments.ReconcileCapacity(c.Request().Context(), strings.TrimSpace(body.TxRef))
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"tx_ref": body.TxRef, "applied": applied})
}

func forced(c echo.Context) bool {
	v := strings.ToLower(c.QueryParam("force"))
	return v == "true" || v == "1"
}

func actor(c echo.Context) uint64 {
	id, _ := holder(c)
	return id
}
