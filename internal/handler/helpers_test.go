package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/hotel-reservation/internal/database"
	"github.com/iliyamo/hotel-reservation/internal/middleware"
	"github.com/iliyamo/hotel-reservation/internal/payment"
	"github.com/iliyamo/hotel-reservation/internal/repository"
	"github.com/iliyamo/hotel-reservation/internal/service"
)

var testNow = time.Date(2024, 5, 20, 9, 30, 15, 0, time.UTC)

var seed = []string{
	`INSERT INTO users (id, name, email) VALUES (1, 'Abebe Kebede', 'abebe@example.com'), (2, 'Sara', 'sara@example.com')`,
	`INSERT INTO room_types (type_id, type_name, price_per_night_cents) VALUES (1, 'Deluxe', 15000), (3, 'Penthouse', 90000)`,
	`INSERT INTO rooms (room_id, room_number, room_type_id, status) VALUES
		(1, '101', 1, 'available'), (2, '102', 1, 'available'), (3, '103', 1, 'available')`,
	`INSERT INTO events (event_id, title, start_time, location, vip_capacity, regular_capacity,
		vip_remaining, regular_remaining, vip_price_cents, regular_price_cents) VALUES
		(1, 'Gala', '2024-07-01 19:00:00', 'Hall A', 2, 10, 2, 10, 50000, 10000)`,
}

// stubGateway approves everything and settles whatever amount it is told.
type stubGateway struct {
	amount    int64
	verifyErr error
	verified  []string
}

func (g *stubGateway) Initialize(_ context.Context, req payment.CheckoutRequest) (*payment.Checkout, error) {
	g.amount = req.AmountCents
	return &payment.Checkout{CheckoutURL: "https://checkout.example/" + req.TxRef}, nil
}

func (g *stubGateway) Verify(_ context.Context, txRef string) (*payment.Verification, error) {
	g.verified = append(g.verified, txRef)
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	return &payment.Verification{AmountCents: g.amount, Currency: "ETB", Status: "success"}, nil
}

type server struct {
	e       *echo.Echo
	db      *sql.DB
	gateway *stubGateway
}

// asUser stands in for JWTAuth: the X-Test-User header becomes the
// authenticated subject.
func asUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if v := c.Request().Header.Get("X-Test-User"); v != "" {
			id, _ := strconv.ParseUint(v, 10, 64)
			c.Set(middleware.UserIDKey, id)
		}
		return next(c)
	}
}

func newServer(t *testing.T) *server {
	t.Helper()
	db, err := database.OpenSQLite("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	require.NoError(t, database.Migrate(ctx, db, database.SQLite))
	for _, stmt := range seed {
		_, err := db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}

	log := zap.NewNop()
	clock := service.FixedClock(testNow)
	catalog := repository.NewCatalogRepo(db, repository.SQLite)
	reservations := repository.NewReservationRepo(db, repository.SQLite)
	eventBookings := repository.NewEventBookingRepo(db, repository.SQLite)
	users := repository.NewUserRepo(db)
	gw := &stubGateway{}

	availability := service.NewAvailabilityService(catalog, reservations, eventBookings, nil, log)
	allocator := service.NewAllocator(catalog, reservations, eventBookings, nil, clock, log)
	lifecycle := service.NewLifecycle(reservations, eventBookings, nil, clock, log)
	payments := service.NewPayments(reservations, eventBookings, catalog, users, gw, nil,
		service.PaymentConfig{Currency: "ETB", ReturnURL: "https://hotel.example/return"}, clock, log)
	gaps := service.NewGapFinder(catalog, reservations, 30, log)

	rh := NewReservationHandler(allocator, lifecycle, log)
	ah := NewAvailabilityHandler(availability, gaps, log)
	eh := NewEventHandler(allocator, lifecycle, log)
	ph := NewPaymentHandler(payments, log)
	adm := NewAdminHandler(lifecycle, payments, 30*time.Minute, log)

	e := echo.New()
	e.GET("/healthz", Live)
	e.GET("/v1/room-types/:id/availability", ah.RoomType)
	e.GET("/v1/room-types/:id/rooms", ah.Rooms)
	e.GET("/v1/room-types/:id/gaps", ah.Gaps)
	e.GET("/v1/events/:id/availability", ah.Event)
	e.POST("/v1/payments/callback", ph.Callback)

	v1 := e.Group("/v1", asUser)
	v1.POST("/reservations", rh.Create)
	v1.POST("/reservations/group", rh.CreateGroup)
	v1.GET("/reservations", rh.List)
	v1.GET("/reservations/groups", rh.ListGroups)
	v1.GET("/reservations/:id/receipt", rh.Receipt)
	v1.DELETE("/reservations/:id", rh.Cancel)
	v1.POST("/events/:id/bookings", eh.Book)
	v1.GET("/events/bookings", eh.List)
	v1.GET("/events/bookings/:id/receipt", eh.Receipt)
	v1.DELETE("/events/bookings/:id", eh.Cancel)
	v1.POST("/events/bookings/:id/pay", ph.InitializeEvent)
	v1.POST("/payments/initialize", ph.Initialize)
	v1.GET("/payments/verify/:tx_ref", ph.Verify)
	v1.GET("/admin/reservations", adm.ListReservations)
	v1.PATCH("/admin/reservations/:id", adm.PatchReservation)
	v1.DELETE("/admin/reservations/:id", adm.DeleteReservation)
	v1.POST("/admin/reservations/expire", adm.ExpirePending)
	v1.PATCH("/admin/events/bookings/:id", adm.PatchEventBooking)
	v1.DELETE("/admin/events/bookings/:id", adm.DeleteEventBooking)
	v1.POST("/admin/events/reconcile", adm.ReconcileEvent)
	return &server{e: e, db: db, gateway: gw}
}

// do sends a request as user (0 for anonymous) and decodes the JSON answer.
func (s *server) do(t *testing.T, method, path string, user uint64, body any) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = strings.NewReader(string(b))
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if user != 0 {
		req.Header.Set("X-Test-User", strconv.FormatUint(user, 10))
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	out := map[string]any{}
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func groupBody(n int) map[string]any {
	return map[string]any{"room_type_id": 1, "check_in": "2024-06-01", "check_out": "2024-06-04", "num_rooms": n}
}
