package service

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/repository"
)

// Allocator reserves rooms and event tickets.  Every path re-checks
// capacity inside the transaction that inserts, after locking the rows
// that competing allocations would also lock:
//
//   - single room: the chosen room row
//   - group: every room row of the type
//   - event: the event row
type Allocator struct {
	catalog       *repository.CatalogRepo
	reservations  *repository.ReservationRepo
	eventBookings *repository.EventBookingRepo
	cache         AvailabilityCache
	clock         Clock
	logger        *zap.Logger
}

func NewAllocator(catalog *repository.CatalogRepo, reservations *repository.ReservationRepo,
	eventBookings *repository.EventBookingRepo, cache AvailabilityCache, clock Clock, logger *zap.Logger) *Allocator {
	if cache == nil {
		cache = NopCache{}
	}
	return &Allocator{
		catalog:       catalog,
		reservations:  reservations,
		eventBookings: eventBookings,
		cache:         cache,
		clock:         clock,
		logger:        logger.Named("allocator"),
	}
}

// UnitRequest asks for one specific room.
type UnitRequest struct {
	HolderID     uint64
	RoomID       uint64
	Interval     model.Interval
	DiscountRate float64
}

// GroupRequest asks for Count rooms of a type; the rooms are chosen by the
// engine, lowest room id first.
type GroupRequest struct {
	HolderID     uint64
	RoomTypeID   uint64
	Interval     model.Interval
	Count        int
	DiscountRate float64
}

// EventRequest asks for Quantity tickets of one tier.
type EventRequest struct {
	HolderID uint64
	EventID  uint64
	Tier     model.Tier
	Quantity int
}

func checkDiscount(rate float64) error {
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return fmt.Errorf("%w: discount_rate must be a number", ErrInvalidRequest)
	}
	return nil
}

func newReservation(holderID uint64, rt model.RoomType, roomID uint64, iv model.Interval, rate float64, at Clock) model.Reservation {
	price := model.PriceStay(iv, rt.PricePerNightCents, 1, rate)
	id := roomID
	return model.Reservation{
		HolderID:        holderID,
		RoomTypeID:      rt.ID,
		RoomID:          &id,
		CheckIn:         iv.CheckIn,
		CheckOut:        iv.CheckOut,
		Nights:          price.Nights,
		Quantity:        1,
		BasePriceCents:  price.BasePriceCents,
		DiscountRate:    price.DiscountRate,
		FinalPriceCents: price.FinalPriceCents,
		Status:          model.StatusPending,
		CreatedAt:       at.now(),
	}
}

// AllocateUnit reserves one specific room for iv.  It fails with
// ErrResourceNotFound for an unknown room and with a CapacityError when the
// room is under maintenance or already held for an overlapping stay.
func (a *Allocator) AllocateUnit(ctx context.Context, req UnitRequest) (model.Reservation, error) {
	if err := checkInterval(req.Interval); err != nil {
		return model.Reservation{}, err
	}
	if err := checkDiscount(req.DiscountRate); err != nil {
		return model.Reservation{}, err
	}
	var res model.Reservation
	err := withRetry(ctx, a.logger, "allocate_unit", func(ctx context.Context) error {
		return inTx(ctx, a.reservations, func(tx *sql.Tx) error {
			room, err := a.catalog.LockRoomTx(ctx, tx, req.RoomID)
			if err != nil {
				return notFound(err, "room", req.RoomID)
			}
			if !room.InService() {
				return insufficient(0, 1)
			}
			rt, err := a.catalog.GetRoomTypeTx(ctx, tx, room.RoomTypeID)
			if err != nil {
				return notFound(err, "room type", room.RoomTypeID)
			}
			conflicts, err := a.reservations.RoomConflictsTx(ctx, tx, room.ID, req.Interval)
			if err != nil {
				return err
			}
			if conflicts > 0 {
				return insufficient(0, 1)
			}
			res = newReservation(req.HolderID, rt, room.ID, req.Interval, req.DiscountRate, a.clock)
			return a.reservations.InsertTx(ctx, tx, &res)
		})
	})
	if err != nil {
		return model.Reservation{}, err
	}
	a.cache.Invalidate(ctx, res.RoomTypeID)
	a.logger.Info("room reserved",
		zap.Uint64("reservation_id", res.ID),
		zap.Uint64("room_id", req.RoomID),
		zap.Uint64("user_id", req.HolderID),
		zap.Stringer("interval", req.Interval))
	return res, nil
}

// AllocateGroup reserves Count rooms of a type for iv, one reservation per
// room, all sharing the same creation timestamp.  Either every row commits
// or none does.
func (a *Allocator) AllocateGroup(ctx context.Context, req GroupRequest) ([]model.Reservation, error) {
	if err := checkInterval(req.Interval); err != nil {
		return nil, err
	}
	if req.Count <= 0 {
		return nil, fmt.Errorf("%w: count must be at least 1", ErrInvalidRequest)
	}
	if err := checkDiscount(req.DiscountRate); err != nil {
		return nil, err
	}
	var out []model.Reservation
	err := withRetry(ctx, a.logger, "allocate_group", func(ctx context.Context) error {
		out = nil
		return inTx(ctx, a.reservations, func(tx *sql.Tx) error {
			rt, err := a.catalog.GetRoomTypeTx(ctx, tx, req.RoomTypeID)
			if err != nil {
				return notFound(err, "room type", req.RoomTypeID)
			}
			rooms, err := a.catalog.LockRoomsByTypeTx(ctx, tx, req.RoomTypeID)
			if err != nil {
				return err
			}
			total := 0
			for _, rm := range rooms {
				if rm.InService() {
					total++
				}
			}
			occupied, err := a.reservations.SumOccupiedTx(ctx, tx, req.RoomTypeID, req.Interval)
			if err != nil {
				return err
			}
			if available := total - occupied; available < req.Count {
				return insufficient(available, req.Count)
			}
			ids, err := a.reservations.FreeRoomIDsTx(ctx, tx, req.RoomTypeID, req.Interval, req.Count)
			if err != nil {
				return err
			}
			if len(ids) < req.Count {
				// Aggregate rows without a room consumed capacity that no
				// concrete room reflects; never book part of a group.
				a.logger.Warn("free rooms fewer than counted capacity",
					zap.Uint64("room_type_id", req.RoomTypeID),
					zap.Int("free_rooms", len(ids)),
					zap.Int("counted", total-occupied))
				return insufficient(len(ids), req.Count)
			}
			stamp := FixedClock(a.clock.now())
			for _, roomID := range ids {
				res := newReservation(req.HolderID, rt, roomID, req.Interval, req.DiscountRate, stamp)
				if err := a.reservations.InsertTx(ctx, tx, &res); err != nil {
					return err
				}
				out = append(out, res)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	a.cache.Invalidate(ctx, req.RoomTypeID)
	a.logger.Info("room group reserved",
		zap.Uint64("room_type_id", req.RoomTypeID),
		zap.Int("count", len(out)),
		zap.Uint64("user_id", req.HolderID),
		zap.Stringer("interval", req.Interval))
	return out, nil
}

// BookEvent reserves Quantity tickets of a tier.  The authoritative check
// is the sum of pending and confirmed tickets against the tier capacity;
// the remaining counter is not consulted.
func (a *Allocator) BookEvent(ctx context.Context, req EventRequest) (model.EventBooking, error) {
	if !req.Tier.Valid() {
		return model.EventBooking{}, fmt.Errorf("%w: unknown ticket type %q", ErrInvalidRequest, req.Tier)
	}
	if req.Quantity <= 0 {
		return model.EventBooking{}, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidRequest)
	}
	var b model.EventBooking
	err := withRetry(ctx, a.logger, "book_event", func(ctx context.Context) error {
		return inTx(ctx, a.eventBookings, func(tx *sql.Tx) error {
			ev, err := a.catalog.LockEventTx(ctx, tx, req.EventID)
			if err != nil {
				return notFound(err, "event", req.EventID)
			}
			held, err := a.eventBookings.SumTierTx(ctx, tx, req.EventID, req.Tier)
			if err != nil {
				return err
			}
			capacity := ev.Capacity(req.Tier)
			if held+req.Quantity > capacity {
				return insufficient(capacity-held, req.Quantity)
			}
			b = model.EventBooking{
				EventID:         req.EventID,
				HolderID:        req.HolderID,
				Tier:            req.Tier,
				Quantity:        req.Quantity,
				TotalPriceCents: int64(req.Quantity) * ev.Price(req.Tier),
				Status:          model.StatusPending,
				CreatedAt:       a.clock.now(),
			}
			return a.eventBookings.InsertTx(ctx, tx, &b)
		})
	})
	if err != nil {
		return model.EventBooking{}, err
	}
	a.logger.Info("event tickets reserved",
		zap.Uint64("booking_id", b.ID),
		zap.Uint64("event_id", req.EventID),
		zap.String("ticket_type", string(req.Tier)),
		zap.Int("quantity", req.Quantity))
	return b, nil
}
