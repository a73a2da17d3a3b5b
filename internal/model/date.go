package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and storage format of calendar dates.
const DateLayout = "2006-01-02"

// ErrInvalidInterval is returned when a check-out does not fall at least one
// night after the check-in.
var ErrInvalidInterval = errors.New("invalid interval")

// Date is a calendar day in UTC.  The zero value is "no date".
type Date struct {
	t time.Time
}

// NewDate builds a Date from its components.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a timestamp to its UTC calendar day.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), u.Month(), u.Day())
}

// ParseDate accepts "YYYY-MM-DD" and also anything that starts with it
// (e.g. "2024-06-01 00:00:00" as returned by some drivers).
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{t: t}, nil
}

func (d Date) Time() time.Time { return d.t }
func (d Date) IsZero() bool    { return d.t.IsZero() }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(DateLayout)
}

// AddDays returns the date n days later (n may be negative).
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

func (d Date) Before(o Date) bool { return d.t.Before(o.t) }
func (d Date) After(o Date) bool  { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool  { return d.t.Equal(o.t) }

// DaysUntil counts whole days from d to o.
func (d Date) DaysUntil(o Date) int {
	return int((o.t.Unix() - d.t.Unix()) / 86400)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Scan accepts DATE columns from MySQL (time.Time with parseTime=true) and
// text columns from SQLite.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		*d = DateOf(v)
		return nil
	case string:
		parsed, err := ParseDate(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case []byte:
		parsed, err := ParseDate(string(v))
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	}
	return fmt.Errorf("cannot scan %T into Date", src)
}

// Value stores dates as "YYYY-MM-DD" so comparisons work on both DATE and
// text columns.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

// Interval is a half-open stay [CheckIn, CheckOut).
type Interval struct {
	CheckIn  Date `json:"check_in"`
	CheckOut Date `json:"check_out"`
}

// NewInterval validates that the stay covers at least one night.
func NewInterval(checkIn, checkOut Date) (Interval, error) {
	if checkIn.IsZero() || checkOut.IsZero() {
		return Interval{}, fmt.Errorf("%w: check_in and check_out are required", ErrInvalidInterval)
	}
	if !checkOut.After(checkIn) {
		return Interval{}, fmt.Errorf("%w: check_out %s must be after check_in %s", ErrInvalidInterval, checkOut, checkIn)
	}
	return Interval{CheckIn: checkIn, CheckOut: checkOut}, nil
}

// Nights is the number of nights billed for the stay.
func (iv Interval) Nights() int { return iv.CheckIn.DaysUntil(iv.CheckOut) }

// Overlaps reports whether two half-open intervals share at least one night.
// A check-out on the same day as another check-in does not overlap.
func (iv Interval) Overlaps(o Interval) bool {
	return iv.CheckIn.Before(o.CheckOut) && o.CheckIn.Before(iv.CheckOut)
}

// Covers reports whether the night starting on day belongs to the stay.
func (iv Interval) Covers(day Date) bool {
	return !day.Before(iv.CheckIn) && day.Before(iv.CheckOut)
}

func (iv Interval) String() string { return "[" + iv.CheckIn.String() + "," + iv.CheckOut.String() + ")" }
