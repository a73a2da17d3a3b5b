package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/hotel-reservation/internal/service"
)

// ReasonNotPending is returned by verify when the payment went through but
// none of the referenced bookings could be confirmed, e.g. because they
// were cancelled in the meantime.
const ReasonNotPending = "not_pending"

// PaymentHandler starts checkouts and reconciles payments.
type PaymentHandler struct {
	Payments *service.Payments
	Logger   *zap.Logger
}

func NewPaymentHandler(payments *service.Payments, logger *zap.Logger) *PaymentHandler {
	if payments == nil {
		panic("nil service passed to NewPaymentHandler")
	}
	return &PaymentHandler{Payments: payments, Logger: logger}
}

// Initialize handles POST /v1/payments/initialize with {reservation_ids}.
// One checkout covers every listed reservation; they must all be pending
// and belong to the caller.
func (h *PaymentHandler) Initialize(c echo.Context) error {
	holderID, ok := holder(c)
	if !ok {
		return unauthorized(c)
	}
	var body struct {
		ReservationIDs []uint64 `json:"reservation_ids"`
		ReservationID  uint64   `json:"reservation_id"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	ids := body.ReservationIDs
	if body.ReservationID != 0 {
		ids = append(ids, body.ReservationID)
	}
	if len(ids) == 0 {
		return badRequest(c, "reservation_ids is required")
	}
	res, err := h.Payments.InitializeRooms(c.Request().Context(), holderID, ids)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, res)
}

// InitializeEvent handles POST /v1/events/bookings/:id/pay.  Free tickets
// are confirmed on the spot and the answer carries free=true.
func (h *PaymentHandler) InitializeEvent(c echo.Context) error {
	holderID, ok := holder(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid booking id")
	}
	res, err := h.Payments.InitializeEvent(c.Request().Context(), holderID, id)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Verify handles GET /v1/payments/verify/:tx_ref.  The answer always
// carries "confirmed"; on failure it also carries the reason.
func (h *PaymentHandler) Verify(c echo.Context) error {
	return h.verify(c, c.Param("tx_ref"))
}

// Callback handles the provider's webhook.  The provider is not trusted:
// the reference it names is verified against the gateway like any other.
// The body or query may spell it tx_ref or trx_ref.
func (h *PaymentHandler) Callback(c echo.Context) error {
	ref := firstNonEmpty(c.QueryParam("tx_ref"), c.QueryParam("trx_ref"))
	if ref == "" && c.Request().Method == http.MethodPost {
		var body struct {
			TxRef  string `json:"tx_ref"`
			TrxRef string `json:"trx_ref"`
		}
		if err := c.Bind(&body); err != nil {
			return badRequest(c, "invalid callback body")
		}
		ref = firstNonEmpty(body.TxRef, body.TrxRef)
	}
	if ref == "" {
		return badRequest(c, "tx_ref is required")
	}
	h.Logger.Info("payment callback", zap.String("tx_ref", ref))
	return h.verify(c, ref)
}

func (h *PaymentHandler) verify(c echo.Context, rawRef string) error {
	res, err := h.Payments.Verify(c.Request().Context(), strings.TrimSpace(rawRef))
	if err != nil {
		status, reason := classify(err)
		body := echo.Map{"confirmed": false, "reason": reason, "error": err.Error()}
		if status == http.StatusInternalServerError {
			h.Logger.Error("verify failed", zap.String("tx_ref", rawRef), zap.Error(err))
			body["error"] = "internal error"
		}
		return c.JSON(status, body)
	}
	body := echo.Map{"confirmed": res.Confirmed(), "tx_ref": res.TxRef.String(), "kind": res.Kind}
	if res.RoomReceipt != nil {
		body["receipt"] = res.RoomReceipt
		body["reservation_ids"] = res.ConfirmedIDs
	}
	if res.EventReceipt != nil {
		body["receipt"] = res.EventReceipt
	}
	if !res.Confirmed() {
		body["reason"] = ReasonNotPending
	}
	return c.JSON(http.StatusOK, body)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
