package model

// Availability is the result of a capacity query.  Available may be
// negative when legacy rows oversubscribe a type; use Display for output.
type Availability struct {
	Total     int `json:"total"`
	Occupied  int `json:"occupied"`
	Available int `json:"available"`
}

// NewAvailability derives Available from total and occupied units.
func NewAvailability(total, occupied int) Availability {
	return Availability{Total: total, Occupied: occupied, Available: total - occupied}
}

// Display floors Available at zero.
func (a Availability) Display() int {
	if a.Available < 0 {
		return 0
	}
	return a.Available
}

// NoUnits reports that the type has no sellable units at all, which is
// different from being sold out.
func (a Availability) NoUnits() bool { return a.Total == 0 }

// UnitAvailability describes one room for a queried stay.
type UnitAvailability struct {
	Room
	AvailableForDates bool `json:"available_for_dates"`
}

// Gap is a run of days with spare capacity.  End is exclusive (a valid
// check-out date).  Open marks a run cut off by the search horizon.
type Gap struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
	Open  bool `json:"open_ended,omitempty"`
}

// GapReport is the answer of the next-availability search.
type GapReport struct {
	NextAvailableDate *Date `json:"next_available_date"`
	Gaps              []Gap `json:"gaps"`
}

// TierAvailability is the capacity picture of one event tier.  Held is the
// authoritative sum of pending and confirmed tickets; Remaining is the
// display counter decremented as payments settle.
type TierAvailability struct {
	Tier      Tier `json:"ticket_type"`
	Capacity  int  `json:"capacity"`
	Held      int  `json:"held"`
	Available int  `json:"available"`
	Remaining int  `json:"remaining"`
}
