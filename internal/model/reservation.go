package model

import (
	"math"
	"time"
)

// Status is the payment-gated lifecycle state shared by room reservations
// and event bookings.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Holds reports whether a record in this status occupies capacity.
func (s Status) Holds() bool { return s == StatusPending || s == StatusConfirmed }

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool { return s == StatusCancelled || s == StatusCompleted }

// CanTransition reports whether s -> to is an allowed lifecycle edge.
// Setting the current status again is not a transition and is handled by
// callers as a no-op.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusConfirmed || to == StatusCancelled
	case StatusConfirmed:
		return to == StatusCompleted || to == StatusCancelled
	}
	return false
}

// HoldingStatuses lists the statuses counted by overlap and capacity checks.
var HoldingStatuses = []Status{StatusPending, StatusConfirmed}

// Reservation is one booking line for a room type.  Rows written by the
// allocator always reference a concrete room and carry quantity 1; older
// aggregate rows may have a nil RoomID and a larger quantity.
//
// Fields:
//  ID              – bookings.id
//  HolderID        – user who owns the reservation.
//  RoomTypeID      – reserved room type.
//  RoomID          – assigned room (nullable for aggregate rows).
//  CheckIn/Out     – half-open stay.
//  Nights          – billed nights.
//  Quantity        – rooms covered by this row.
//  BasePriceCents  – nights × nightly price × quantity, before discount.
//  DiscountRate    – percent discount applied.
//  FinalPriceCents – amount due.
//  Status          – lifecycle state.
//  PaymentRef      – last transaction reference issued (nullable).
//  CreatedAt       – creation time (UTC, second precision).
type Reservation struct {
	ID              uint64    `json:"id"`
	HolderID        uint64    `json:"user_id"`
	RoomTypeID      uint64    `json:"room_type_id"`
	RoomID          *uint64   `json:"room_id,omitempty"`
	CheckIn         Date      `json:"check_in"`
	CheckOut        Date      `json:"check_out"`
	Nights          int       `json:"nights"`
	Quantity        int       `json:"quantity"`
	BasePriceCents  int64     `json:"base_price_cents"`
	DiscountRate    float64   `json:"discount_rate"`
	FinalPriceCents int64     `json:"final_price_cents"`
	Status          Status    `json:"status"`
	PaymentRef      *string   `json:"payment_ref,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Interval returns the stay of the reservation.
func (r Reservation) Interval() Interval { return Interval{CheckIn: r.CheckIn, CheckOut: r.CheckOut} }

// Price holds the computed price fields for a reservation line.
type Price struct {
	Nights          int
	BasePriceCents  int64
	DiscountRate    float64
	FinalPriceCents int64
}

// PriceStay computes nights × nightly × quantity and applies the discount
// percent, rounding the final amount to the nearest cent.
func PriceStay(iv Interval, nightlyCents int64, quantity int, discountRate float64) Price {
	nights := iv.Nights()
	base := int64(nights) * nightlyCents * int64(quantity)
	return Price{
		Nights:          nights,
		BasePriceCents:  base,
		DiscountRate:    discountRate,
		FinalPriceCents: ApplyDiscount(base, discountRate),
	}
}

// ApplyDiscount returns base × (1 − rate/100) rounded to whole cents.
func ApplyDiscount(base int64, rate float64) int64 {
	if rate == 0 {
		return base
	}
	return int64(math.Round(float64(base) * (1 - rate/100)))
}

// ReservationPatch is a partial update: nil fields are left untouched.
type ReservationPatch struct {
	Status     *Status
	PaymentRef *string
}

// EventBooking is a ticket purchase for one tier of an event.
type EventBooking struct {
	ID              uint64    `json:"booking_id"`
	EventID         uint64    `json:"event_id"`
	HolderID        uint64    `json:"user_id"`
	Tier            Tier      `json:"ticket_type"`
	Quantity        int       `json:"quantity"`
	TotalPriceCents int64     `json:"total_price_cents"`
	Status          Status    `json:"status"`
	PaymentRef      *string   `json:"payment_ref,omitempty"`
	CapacityApplied bool      `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
}

// ReservationGroup is the reconstructed view of reservations created by one
// multi-room allocation.  It is not stored; see GroupKey.
type ReservationGroup struct {
	HolderID        uint64    `json:"user_id"`
	RoomTypeID      uint64    `json:"room_type_id"`
	CheckIn         Date      `json:"check_in"`
	CheckOut        Date      `json:"check_out"`
	Status          Status    `json:"status"`
	CreatedMinute   time.Time `json:"created_minute"`
	ReservationIDs  []uint64  `json:"reservation_ids"`
	FinalPriceCents int64     `json:"final_price_cents"`
}

// GroupKey identifies reservations that were allocated together.
type GroupKey struct {
	HolderID      uint64
	RoomTypeID    uint64
	CheckIn       string
	CheckOut      string
	Status        Status
	CreatedMinute int64
}

// Key returns the grouping key of a reservation.
func (r Reservation) Key() GroupKey {
	return GroupKey{
		HolderID:      r.HolderID,
		RoomTypeID:    r.RoomTypeID,
		CheckIn:       r.CheckIn.String(),
		CheckOut:      r.CheckOut.String(),
		Status:        r.Status,
		CreatedMinute: r.CreatedAt.UTC().Truncate(time.Minute).Unix(),
	}
}

// GroupReservations folds reservations into groups, keeping the order in
// which each group is first seen.  Ids inside a group keep input order.
func GroupReservations(list []Reservation) []ReservationGroup {
	out := make([]ReservationGroup, 0, len(list))
	index := make(map[GroupKey]int, len(list))
	for _, r := range list {
		k := r.Key()
		i, ok := index[k]
		if !ok {
			out = append(out, ReservationGroup{
				HolderID:      r.HolderID,
				RoomTypeID:    r.RoomTypeID,
				CheckIn:       r.CheckIn,
				CheckOut:      r.CheckOut,
				Status:        r.Status,
				CreatedMinute: r.CreatedAt.UTC().Truncate(time.Minute),
			})
			i = len(out) - 1
			index[k] = i
		}
		out[i].ReservationIDs = append(out[i].ReservationIDs, r.ID)
		out[i].FinalPriceCents += r.FinalPriceCents
	}
	return out
}
