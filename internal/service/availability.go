package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/repository"
)

// AvailabilityService answers "how many units are free" for room types and
// event tiers.  It reads without locks; the Allocator repeats the count
// under lock before writing.
type AvailabilityService struct {
	catalog       *repository.CatalogRepo
	reservations  *repository.ReservationRepo
	eventBookings *repository.EventBookingRepo
	cache         AvailabilityCache
	logger        *zap.Logger
}

// NewAvailabilityService wires the calculator.  A nil cache disables
// caching.
func NewAvailabilityService(catalog *repository.CatalogRepo, reservations *repository.ReservationRepo,
	eventBookings *repository.EventBookingRepo, cache AvailabilityCache, logger *zap.Logger) *AvailabilityService {
	if cache == nil {
		cache = NopCache{}
	}
	return &AvailabilityService{
		catalog:       catalog,
		reservations:  reservations,
		eventBookings: eventBookings,
		cache:         cache,
		logger:        logger.Named("availability"),
	}
}

func checkInterval(iv model.Interval) error {
	if iv.CheckIn.IsZero() || iv.CheckOut.IsZero() || iv.Nights() <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, iv)
	}
	return nil
}

// CountAvailable returns total in-service rooms of a type and how many are
// free for iv.  A type with no rooms yields Total == 0 rather than an
// error; callers report that as "no rooms of this type".
func (s *AvailabilityService) CountAvailable(ctx context.Context, typeID uint64, iv model.Interval) (model.Availability, error) {
	if err := checkInterval(iv); err != nil {
		return model.Availability{}, err
	}
	if _, err := s.catalog.GetRoomType(ctx, typeID); err != nil {
		return model.Availability{}, notFound(err, "room type", typeID)
	}
	a, slot, ok := s.cache.Get(ctx, typeID, iv)
	if ok {
		return a, nil
	}
	total, err := s.catalog.CountInService(ctx, typeID)
	if err != nil {
		return model.Availability{}, err
	}
	occupied, err := s.reservations.SumOccupied(ctx, typeID, iv)
	if err != nil {
		return model.Availability{}, err
	}
	a = model.NewAvailability(total, occupied)
	s.cache.Set(ctx, slot, a)
	return a, nil
}

// ListUnitAvailability lists every room of a type with whether it is free
// for the whole of iv.
func (s *AvailabilityService) ListUnitAvailability(ctx context.Context, typeID uint64, iv model.Interval) ([]model.UnitAvailability, error) {
	if err := checkInterval(iv); err != nil {
		return nil, err
	}
	if _, err := s.catalog.GetRoomType(ctx, typeID); err != nil {
		return nil, notFound(err, "room type", typeID)
	}
	return s.reservations.RoomAvailability(ctx, typeID, iv)
}

// CountEventAvailable returns the capacity picture of one event tier.
// There is no date dimension: capacity is per event.
func (s *AvailabilityService) CountEventAvailable(ctx context.Context, eventID uint64, tier model.Tier) (model.TierAvailability, error) {
	if !tier.Valid() {
		return model.TierAvailability{}, fmt.Errorf("%w: unknown ticket type %q", ErrInvalidRequest, tier)
	}
	ev, err := s.catalog.GetEvent(ctx, eventID)
	if err != nil {
		return model.TierAvailability{}, notFound(err, "event", eventID)
	}
	held, err := s.eventBookings.SumTier(ctx, eventID, tier)
	if err != nil {
		return model.TierAvailability{}, err
	}
	capacity := ev.Capacity(tier)
	return model.TierAvailability{
		Tier:      tier,
		Capacity:  capacity,
		Held:      held,
		Available: capacity - held,
		Remaining: ev.Remaining(tier),
	}, nil
}
