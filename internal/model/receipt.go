package model

import "time"

// RoomReceipt is a reservation joined with its holder and room labels.
type RoomReceipt struct {
	Reservation
	HolderName  string  `json:"user_name"`
	HolderEmail string  `json:"user_email"`
	RoomNumber  *string `json:"room_number,omitempty"`
	RoomType    string  `json:"room_type"`
}

// EventReceipt is an event booking joined with event and holder details.
type EventReceipt struct {
	EventBooking
	EventTitle  string    `json:"event_title"`
	EventDate   time.Time `json:"event_date"`
	Location    string    `json:"location"`
	HolderName  string    `json:"user_name"`
	HolderEmail string    `json:"user_email"`
}
