package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/hotel-reservation/internal/model"
)

// CatalogRepo reads room types, rooms and events.  The catalog itself is
// maintained elsewhere; the only write here is the event remaining
// counter, which moves as payments settle.
type CatalogRepo struct {
	db      *sql.DB
	dialect Dialect
}

// NewCatalogRepo returns a CatalogRepo bound to db.
func NewCatalogRepo(db *sql.DB, d Dialect) *CatalogRepo {
	return &CatalogRepo{db: db, dialect: d}
}

const roomTypeColumns = `type_id, type_name, price_per_night_cents, max_occupancy, amenities`

func scanRoomType(s rowScanner) (model.RoomType, error) {
	var rt model.RoomType
	var amenities sql.NullString
	if err := s.Scan(&rt.ID, &rt.Name, &rt.PricePerNightCents, &rt.MaxOccupancy, &amenities); err != nil {
		return rt, err
	}
	rt.Amenities = amenities.String
	return rt, nil
}

// GetRoomType returns a room type by id or ErrNotFound.
func (r *CatalogRepo) GetRoomType(ctx context.Context, id uint64) (model.RoomType, error) {
	return r.getRoomType(ctx, r.db, id)
}

// GetRoomTypeTx is GetRoomType inside an open transaction.
func (r *CatalogRepo) GetRoomTypeTx(ctx context.Context, tx *sql.Tx, id uint64) (model.RoomType, error) {
	return r.getRoomType(ctx, tx, id)
}

func (r *CatalogRepo) getRoomType(ctx context.Context, q querier, id uint64) (model.RoomType, error) {
	rt, err := scanRoomType(q.QueryRowContext(ctx,
		`SELECT `+roomTypeColumns+` FROM room_types WHERE type_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return rt, ErrNotFound
	}
	return rt, err
}

// ListRoomTypes returns every room type ordered by id.
func (r *CatalogRepo) ListRoomTypes(ctx context.Context) ([]model.RoomType, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+roomTypeColumns+` FROM room_types ORDER BY type_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.RoomType
	for rows.Next() {
		rt, err := scanRoomType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

const roomColumns = `room_id, room_number, room_type_id, status`

func scanRoom(s rowScanner) (model.Room, error) {
	var rm model.Room
	var status string
	if err := s.Scan(&rm.ID, &rm.Number, &rm.RoomTypeID, &status); err != nil {
		return rm, err
	}
	rm.Status = model.UnitStatus(status)
	return rm, nil
}

func collectRooms(rows *sql.Rows) ([]model.Room, error) {
	defer rows.Close()
	var out []model.Room
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rm)
	}
	return out, rows.Err()
}

// ListRooms returns every room of a type ordered by room id, including
// rooms under maintenance.
func (r *CatalogRepo) ListRooms(ctx context.Context, typeID uint64) ([]model.Room, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE room_type_id = ? ORDER BY room_id`, typeID)
	if err != nil {
		return nil, err
	}
	return collectRooms(rows)
}

// LockRoomsByTypeTx reads and locks every room of a type.  Two concurrent
// allocations for the same type serialise here; the second one resumes
// once the first has committed its reservations.
func (r *CatalogRepo) LockRoomsByTypeTx(ctx context.Context, tx *sql.Tx, typeID uint64) ([]model.Room, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE room_type_id = ? ORDER BY room_id`+r.dialect.ForUpdate, typeID)
	if err != nil {
		return nil, err
	}
	return collectRooms(rows)
}

// LockRoomTx reads and locks one room.  It returns ErrNotFound when the
// room does not exist.
func (r *CatalogRepo) LockRoomTx(ctx context.Context, tx *sql.Tx, roomID uint64) (model.Room, error) {
	rm, err := scanRoom(tx.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE room_id = ?`+r.dialect.ForUpdate, roomID))
	if errors.Is(err, sql.ErrNoRows) {
		return rm, ErrNotFound
	}
	return rm, err
}

// CountInService returns how many rooms of a type are not under maintenance.
func (r *CatalogRepo) CountInService(ctx context.Context, typeID uint64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rooms WHERE room_type_id = ? AND status <> ?`,
		typeID, string(model.UnitMaintenance)).Scan(&n)
	return n, err
}

// SetRoomStatus changes the coarse status of a room (available or
// maintenance).  Reservations never call this.
func (r *CatalogRepo) SetRoomStatus(ctx context.Context, roomID uint64, status model.UnitStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE rooms SET status = ? WHERE room_id = ?`, string(status), roomID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const eventColumns = `event_id, title, start_time, location, vip_capacity, regular_capacity,
	vip_remaining, regular_remaining, vip_price_cents, regular_price_cents`

func scanEvent(s rowScanner) (model.Event, error) {
	var e model.Event
	var start nullTime
	if err := s.Scan(&e.ID, &e.Title, &start, &e.Location, &e.VIPCapacity, &e.RegularCapacity,
		&e.VIPRemaining, &e.RegularRemaining, &e.VIPPriceCents, &e.RegularPriceCents); err != nil {
		return e, err
	}
	e.StartTime = start.Time
	return e, nil
}

// GetEvent returns an event by id or ErrNotFound.
func (r *CatalogRepo) GetEvent(ctx context.Context, id uint64) (model.Event, error) {
	e, err := scanEvent(r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE event_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return e, ErrNotFound
	}
	return e, err
}

// LockEventTx reads and locks an event row.  Bookings for any tier of the
// event serialise on it.
func (r *CatalogRepo) LockEventTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Event, error) {
	e, err := scanEvent(tx.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE event_id = ?`+r.dialect.ForUpdate, id))
	if errors.Is(err, sql.ErrNoRows) {
		return e, ErrNotFound
	}
	return e, err
}

// DecrementRemainingTx lowers the remaining counter of a tier by qty,
// never below zero.
func (r *CatalogRepo) DecrementRemainingTx(ctx context.Context, tx *sql.Tx, eventID uint64, tier model.Tier, qty int) error {
	col := "regular_remaining"
	if tier == model.TierVIP {
		col = "vip_remaining"
	}
	q := fmt.Sprintf(`UPDATE events SET %[1]s = CASE WHEN %[1]s >= ? THEN %[1]s - ? ELSE 0 END WHERE event_id = ?`, col)
	_, err := tx.ExecContext(ctx, q, qty, qty, eventID)
	return err
}
