package service

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/hotel-reservation/internal/database"
	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/payment"
	"github.com/iliyamo/hotel-reservation/internal/queue"
	"github.com/iliyamo/hotel-reservation/internal/repository"
)

var testNow = time.Date(2024, 5, 20, 9, 30, 15, 0, time.UTC)

// Seed catalog:
//
//	type 1 Deluxe     150.00/night  rooms 1-5
//	type 2 Suite      300.00/night  rooms 6-8
//	type 3 Penthouse  no rooms
//	type 4 Twin       100.00/night  rooms 9-10, plus room 11 under maintenance
//	event 1 Gala      vip 2 x 500.00, regular 10 x 100.00
//	event 2 Free Talk regular 5 x 0.00
var seed = []string{
	`INSERT INTO users (id, name, email) VALUES (1, 'Abebe Kebede Tesfaye', 'abebe@example.com'), (2, 'Sara', 'sara@example.com')`,
	`INSERT INTO room_types (type_id, type_name, price_per_night_cents) VALUES
		(1, 'Deluxe', 15000), (2, 'Suite', 30000), (3, 'Penthouse', 90000), (4, 'Twin', 10000)`,
	`INSERT INTO rooms (room_id, room_number, room_type_id, status) VALUES
		(1, '101', 1, 'available'), (2, '102', 1, 'available'), (3, '103', 1, 'available'),
		(4, '104', 1, 'available'), (5, '105', 1, 'available'),
		(6, '201', 2, 'available'), (7, '202', 2, 'available'), (8, '203', 2, 'available'),
		(9, '301', 4, 'available'), (10, '302', 4, 'available'), (11, '303', 4, 'maintenance')`,
	`INSERT INTO events (event_id, title, start_time, location, vip_capacity, regular_capacity,
		vip_remaining, regular_remaining, vip_price_cents, regular_price_cents) VALUES
		(1, 'Gala', '2024-07-01 19:00:00', 'Hall A', 2, 10, 2, 10, 50000, 10000),
		(2, 'Free Talk', '2024-07-02 10:00:00', 'Room B', 0, 5, 0, 5, 0, 0)`,
}

type fakeGateway struct {
	mu          sync.Mutex
	initCalls   []payment.CheckoutRequest
	verifyCalls []string

	InitializeFunc func(ctx context.Context, req payment.CheckoutRequest) (*payment.Checkout, error)
	VerifyFunc     func(ctx context.Context, txRef string) (*payment.Verification, error)
}

func (g *fakeGateway) Initialize(ctx context.Context, req payment.CheckoutRequest) (*payment.Checkout, error) {
	g.mu.Lock()
	g.initCalls = append(g.initCalls, req)
	g.mu.Unlock()
	if g.InitializeFunc != nil {
		return g.InitializeFunc(ctx, req)
	}
	return &payment.Checkout{CheckoutURL: "https://checkout.example/" + req.TxRef}, nil
}

func (g *fakeGateway) Verify(ctx context.Context, txRef string) (*payment.Verification, error) {
	g.mu.Lock()
	g.verifyCalls = append(g.verifyCalls, txRef)
	g.mu.Unlock()
	if g.VerifyFunc != nil {
		return g.VerifyFunc(ctx, txRef)
	}
	return &payment.Verification{Status: "success"}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.ReservationConfirmedEvent
}

func (p *recordingPublisher) PublishReservationConfirmed(_ context.Context, ev queue.ReservationConfirmedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

// memoryCache versions its slots per type like the Redis cache and counts
// invalidations.
type memoryCache struct {
	mu          sync.Mutex
	entries     map[string]model.Availability
	invalidated map[uint64]int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string]model.Availability{}, invalidated: map[uint64]int{}}
}

func (c *memoryCache) Get(_ context.Context, typeID uint64, iv model.Interval) (model.Availability, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slot := strconv.FormatUint(typeID, 10) + "|" + strconv.Itoa(c.invalidated[typeID]) + "|" + iv.String()
	a, ok := c.entries[slot]
	return a, slot, ok
}

func (c *memoryCache) Set(_ context.Context, slot string, a model.Availability) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[slot]; !ok {
		c.entries[slot] = a
	}
}

func (c *memoryCache) Invalidate(_ context.Context, typeID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated[typeID]++
	for k := range c.entries {
		if strings.HasPrefix(k, strconv.FormatUint(typeID, 10)+"|") {
			delete(c.entries, k)
		}
	}
}

type testEnv struct {
	db            *sql.DB
	catalog       *repository.CatalogRepo
	reservations  *repository.ReservationRepo
	eventBookings *repository.EventBookingRepo
	cache         *memoryCache
	gateway       *fakeGateway
	publisher     *recordingPublisher
	availability  *AvailabilityService
	allocator     *Allocator
	lifecycle     *Lifecycle
	payments      *Payments
	gaps          *GapFinder
	now           time.Time
}

func newEnv(t *testing.T) *testEnv {
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

	env := &testEnv{
		db:            db,
		catalog:       repository.NewCatalogRepo(db, repository.SQLite),
		reservations:  repository.NewReservationRepo(db, repository.SQLite),
		eventBookings: repository.NewEventBookingRepo(db, repository.SQLite),
		cache:         newMemoryCache(),
		gateway:       &fakeGateway{},
		publisher:     &recordingPublisher{},
		now:           testNow,
	}
	clock := func() time.Time { return env.now }
	logger := zap.NewNop()
	users := repository.NewUserRepo(db)

	env.availability = NewAvailabilityService(env.catalog, env.reservations, env.eventBookings, env.cache, logger)
	env.allocator = NewAllocator(env.catalog, env.reservations, env.eventBookings, env.cache, clock, logger)
	env.lifecycle = NewLifecycle(env.reservations, env.eventBookings, env.cache, clock, logger)
	env.payments = NewPayments(env.reservations, env.eventBookings, env.catalog, users, env.gateway, env.publisher,
		PaymentConfig{Currency: "ETB", CallbackURL: "https://api.example/payments/callback", ReturnURL: "https://hotel.example/payment/return"},
		clock, logger)
	env.gaps = NewGapFinder(env.catalog, env.reservations, 0, logger)
	return env
}

func mustDate(t *testing.T, s string) model.Date {
	t.Helper()
	d, err := model.ParseDate(s)
	require.NoError(t, err)
	return d
}

func mustInterval(t *testing.T, in, out string) model.Interval {
	t.Helper()
	iv, err := model.NewInterval(mustDate(t, in), mustDate(t, out))
	require.NoError(t, err)
	return iv
}

func (e *testEnv) countRows(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}

func ids(list []model.Reservation) []uint64 {
	out := make([]uint64, len(list))
	for i, r := range list {
		out[i] = r.ID
	}
	return out
}
