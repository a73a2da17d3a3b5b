// Package queue defines message payloads exchanged over the message broker.
package queue

// ReservationConfirmedQueue is the durable queue confirmations are routed to.
const ReservationConfirmedQueue = "reservation.confirmed"

// ReservationConfirmedEvent is published after a payment (or the free
// event path) moved at least one booking to confirmed.  It carries enough
// for downstream consumers to log or notify without querying the database.
type ReservationConfirmedEvent struct {
	Kind        string   `json:"kind"`
	TxRef       string   `json:"tx_ref"`
	BookingIDs  []uint64 `json:"booking_ids"`
	HolderID    uint64   `json:"user_id"`
	AmountCents int64    `json:"amount_cents"`
	Currency    string   `json:"currency,omitempty"`
	ConfirmedAt string   `json:"confirmed_at"`
}
