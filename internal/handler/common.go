package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/hotel-reservation/internal/middleware"
	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/payment"
	"github.com/iliyamo/hotel-reservation/internal/service"
)

// Reason codes returned in the "reason" field of error bodies.  Clients
// branch on these, not on the message.
const (
	ReasonInvalidInterval      = "invalid_interval"
	ReasonInvalidRequest       = "invalid_request"
	ReasonNotFound             = "not_found"
	ReasonNoUnits              = "no_units"
	ReasonInsufficientCapacity = "insufficient_capacity"
	ReasonConcurrentConflict   = "concurrent_conflict"
	ReasonCrossHolderPayment   = "cross_holder_payment"
	ReasonInvalidReference     = "invalid_reference"
	ReasonGatewayUnreachable   = "gateway_unreachable"
	ReasonGatewayRejected      = "gateway_rejected"
	ReasonInvalidTransition    = "invalid_transition"
	ReasonNotTerminal          = "not_terminal"
	ReasonForbidden            = "forbidden"
	ReasonUnauthorized         = "unauthorized"
	ReasonInternal             = "internal_error"
)

type errorMapping struct {
	target error
	status int
	reason string
}

// Order matters: the first match wins.
var errorMappings = []errorMapping{
	{service.ErrInvalidInterval, http.StatusBadRequest, ReasonInvalidInterval},
	{service.ErrInvalidRequest, http.StatusBadRequest, ReasonInvalidRequest},
	{service.ErrResourceNotFound, http.StatusNotFound, ReasonNotFound},
	{service.ErrNoUnits, http.StatusNotFound, ReasonNoUnits},
	{service.ErrInsufficientCapacity, http.StatusConflict, ReasonInsufficientCapacity},
	{service.ErrConcurrentConflict, http.StatusConflict, ReasonConcurrentConflict},
	{service.ErrCrossHolderPayment, http.StatusBadRequest, ReasonCrossHolderPayment},
	{service.ErrInvalidReference, http.StatusBadRequest, ReasonInvalidReference},
	{service.ErrGatewayUnreachable, http.StatusBadGateway, ReasonGatewayUnreachable},
	{service.ErrGatewayRejected, http.StatusPaymentRequired, ReasonGatewayRejected},
	{service.ErrInvalidTransition, http.StatusConflict, ReasonInvalidTransition},
	{service.ErrNotTerminal, http.StatusConflict, ReasonNotTerminal},
	{service.ErrForbidden, http.StatusForbidden, ReasonForbidden},
}

// classify maps an engine error to an HTTP status and reason code.
func classify(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.reason
		}
	}
	return http.StatusInternalServerError, ReasonInternal
}

// respondError writes the JSON error body for err.  Capacity refusals carry
// the available and requested counts; gateway rejections carry the
// provider payload.
func respondError(c echo.Context, log *zap.Logger, err error) error {
	status, reason := classify(err)
	body := echo.Map{"error": err.Error(), "reason": reason}
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		body["error"] = "internal error"
	}
	var capErr *service.CapacityError
	if errors.As(err, &capErr) {
		body["available"] = capErr.Available
		body["requested"] = capErr.Requested
	}
	var rej *payment.RejectedError
	if errors.As(err, &rej) && json.Valid(rej.Payload) {
		body["gateway"] = rej.Payload
	}
	return c.JSON(status, body)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "reason": ReasonInvalidRequest})
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "reason": ReasonUnauthorized})
}

// paramID parses a positive integer path parameter.
func paramID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id != 0
}

// parseInterval reads check_in and check_out in YYYY-MM-DD form.
func parseInterval(checkIn, checkOut string) (model.Interval, error) {
	in, err := model.ParseDate(checkIn)
	if err != nil {
		return model.Interval{}, errors.Join(service.ErrInvalidInterval, err)
	}
	out, err := model.ParseDate(checkOut)
	if err != nil {
		return model.Interval{}, errors.Join(service.ErrInvalidInterval, err)
	}
	return model.NewInterval(in, out)
}

// holder returns the authenticated holder id; handlers behind JWTAuth can
// rely on it being set.
func holder(c echo.Context) (uint64, bool) {
	return middleware.UserID(c)
}
