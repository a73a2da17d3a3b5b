package model

import "time"

// UnitStatus is the coarse, date-independent state of a physical room.  It
// only says whether the room can be sold at all; date occupancy always comes
// from reservations.
type UnitStatus string

const (
	UnitAvailable   UnitStatus = "available"
	UnitMaintenance UnitStatus = "maintenance"
)

// RoomType is a sellable category of rooms.
//
// Fields:
//  ID                 – room_types.type_id
//  Name               – display label (e.g. "Deluxe King").
//  PricePerNightCents – nightly price in cents.
//  MaxOccupancy       – guests per room.
//  Amenities          – free-form amenities text.
type RoomType struct {
	ID                 uint64 `json:"type_id"`
	Name               string `json:"type_name"`
	PricePerNightCents int64  `json:"price_per_night_cents"`
	MaxOccupancy       int    `json:"max_occupancy"`
	Amenities          string `json:"amenities,omitempty"`
}

// Room is one physical, individually identifiable unit of a RoomType.
type Room struct {
	ID         uint64     `json:"room_id"`
	Number     string     `json:"room_number"`
	RoomTypeID uint64     `json:"room_type_id"`
	Status     UnitStatus `json:"status"`
}

// InService reports whether the room may be allocated at all.
func (r Room) InService() bool { return r.Status != UnitMaintenance }

// Tier is an event ticket tier.
type Tier string

const (
	TierRegular Tier = "regular"
	TierVIP     Tier = "vip"
)

// Valid reports whether t names a known tier.
func (t Tier) Valid() bool { return t == TierRegular || t == TierVIP }

// Event is a ticketed occurrence with two tiers.  The *Capacity fields are
// the configured tier sizes and never change once sold; the *Remaining
// fields are display counters decremented as payments settle.
type Event struct {
	ID                uint64    `json:"event_id"`
	Title             string    `json:"title"`
	StartTime         time.Time `json:"start_time"`
	Location          string    `json:"location"`
	VIPCapacity       int       `json:"vip_capacity"`
	RegularCapacity   int       `json:"regular_capacity"`
	VIPRemaining      int       `json:"vip_remaining"`
	RegularRemaining  int       `json:"regular_remaining"`
	VIPPriceCents     int64     `json:"vip_price_cents"`
	RegularPriceCents int64     `json:"regular_price_cents"`
}

// Capacity returns the configured size of a tier.
func (e Event) Capacity(t Tier) int {
	if t == TierVIP {
		return e.VIPCapacity
	}
	return e.RegularCapacity
}

// Price returns the per-ticket price of a tier in cents.
func (e Event) Price(t Tier) int64 {
	if t == TierVIP {
		return e.VIPPriceCents
	}
	return e.RegularPriceCents
}

// Remaining returns the display counter of a tier.
func (e Event) Remaining(t Tier) int {
	if t == TierVIP {
		return e.VIPRemaining
	}
	return e.RegularRemaining
}
