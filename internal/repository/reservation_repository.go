package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/hotel-reservation/internal/model"
)

// ReservationRepo provides access to the bookings table.  Every stay is a
// half-open interval [check_in, check_out) stored as YYYY-MM-DD so the
// overlap predicate "check_in < ? AND check_out > ?" works on both DATE
// and text columns.  Only pending and confirmed rows occupy capacity.
type ReservationRepo struct {
	db      *sql.DB
	dialect Dialect
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB, d Dialect) *ReservationRepo {
	return &ReservationRepo{db: db, dialect: d}
}

// DB exposes the underlying handle for callers that manage their own
// transactions.
func (r *ReservationRepo) DB() *sql.DB { return r.db }

// BeginTx starts a write transaction with the dialect's isolation level.
func (r *ReservationRepo) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return r.db.BeginTx(ctx, r.dialect.TxOptions)
}

const reservationColumns = `b.id, b.user_id, b.room_type_id, b.room_id, b.check_in, b.check_out, b.nights,
	b.quantity, b.base_price_cents, b.discount_rate, b.final_price_cents, b.status, b.payment_ref, b.created_at`

func scanReservation(s rowScanner, extra ...any) (model.Reservation, error) {
	var res model.Reservation
	var roomID sql.NullInt64
	var status string
	var ref sql.NullString
	var created nullTime
	dest := []any{&res.ID, &res.HolderID, &res.RoomTypeID, &roomID, &res.CheckIn, &res.CheckOut, &res.Nights,
		&res.Quantity, &res.BasePriceCents, &res.DiscountRate, &res.FinalPriceCents, &status, &ref, &created}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return res, err
	}
	if roomID.Valid {
		id := uint64(roomID.Int64)
		res.RoomID = &id
	}
	res.Status = model.Status(status)
	res.PaymentRef = stringPtr(ref)
	res.CreatedAt = created.Time
	return res, nil
}

func collectReservations(rows *sql.Rows) ([]model.Reservation, error) {
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// InsertTx writes a new reservation and sets its generated ID.  CreatedAt
// must already be set by the caller's clock.
func (r *ReservationRepo) InsertTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	const q = `INSERT INTO bookings (user_id, room_type_id, room_id, check_in, check_out, nights, quantity,
		base_price_cents, discount_rate, final_price_cents, status, payment_ref, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var roomID any
	if res.RoomID != nil {
		roomID = *res.RoomID
	}
	result, err := tx.ExecContext(ctx, q, res.HolderID, res.RoomTypeID, roomID, res.CheckIn, res.CheckOut,
		res.Nights, res.Quantity, res.BasePriceCents, res.DiscountRate, res.FinalPriceCents,
		string(res.Status), nullableString(res.PaymentRef), formatTimestamp(res.CreatedAt))
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	res.CreatedAt = res.CreatedAt.UTC().Truncate(time.Second)
	return nil
}

func (r *ReservationRepo) sumOccupied(ctx context.Context, q querier, typeID uint64, iv model.Interval) (int, error) {
	args := append([]any{typeID}, statusArgs(model.HoldingStatuses)...)
	args = append(args, iv.CheckOut, iv.CheckIn)
	var n int
	err := q.QueryRowContext(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM bookings
		WHERE room_type_id = ? AND status IN `+holdingIn+` AND check_in < ? AND check_out > ?`, args...).Scan(&n)
	return n, err
}

// SumOccupied returns the number of units of a type held by pending or
// confirmed reservations overlapping iv.
func (r *ReservationRepo) SumOccupied(ctx context.Context, typeID uint64, iv model.Interval) (int, error) {
	return r.sumOccupied(ctx, r.db, typeID, iv)
}

// SumOccupiedTx is SumOccupied inside an open transaction.
func (r *ReservationRepo) SumOccupiedTx(ctx context.Context, tx *sql.Tx, typeID uint64, iv model.Interval) (int, error) {
	return r.sumOccupied(ctx, tx, typeID, iv)
}

// RoomConflictsTx counts holding reservations on one room that overlap iv.
func (r *ReservationRepo) RoomConflictsTx(ctx context.Context, tx *sql.Tx, roomID uint64, iv model.Interval) (int, error) {
	args := append([]any{roomID}, statusArgs(model.HoldingStatuses)...)
	args = append(args, iv.CheckOut, iv.CheckIn)
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings
		WHERE room_id = ? AND status IN `+holdingIn+` AND check_in < ? AND check_out > ?`, args...).Scan(&n)
	return n, err
}

// FreeRoomIDsTx returns up to limit in-service rooms of a type that have no
// holding reservation overlapping iv, lowest room id first.
func (r *ReservationRepo) FreeRoomIDsTx(ctx context.Context, tx *sql.Tx, typeID uint64, iv model.Interval, limit int) ([]uint64, error) {
	args := []any{typeID, string(model.UnitMaintenance)}
	args = append(args, statusArgs(model.HoldingStatuses)...)
	args = append(args, iv.CheckOut, iv.CheckIn, limit)
	rows, err := tx.QueryContext(ctx, `SELECT rm.room_id FROM rooms rm
		WHERE rm.room_type_id = ? AND rm.status <> ?
		AND NOT EXISTS (
			SELECT 1 FROM bookings b
			WHERE b.room_id = rm.room_id AND b.status IN `+holdingIn+`
			AND b.check_in < ? AND b.check_out > ?)
		ORDER BY rm.room_id
		LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RoomAvailability lists every room of a type with a flag telling whether
// it is free for the whole of iv.  Rooms under maintenance are never free.
func (r *ReservationRepo) RoomAvailability(ctx context.Context, typeID uint64, iv model.Interval) ([]model.UnitAvailability, error) {
	args := []any{string(model.UnitMaintenance)}
	args = append(args, statusArgs(model.HoldingStatuses)...)
	args = append(args, iv.CheckOut, iv.CheckIn, typeID)
	rows, err := r.db.QueryContext(ctx, `SELECT rm.room_id, rm.room_number, rm.room_type_id, rm.status,
		CASE WHEN rm.status <> ? AND NOT EXISTS (
			SELECT 1 FROM bookings b
			WHERE b.room_id = rm.room_id AND b.status IN `+holdingIn+`
			AND b.check_in < ? AND b.check_out > ?) THEN 1 ELSE 0 END
		FROM rooms rm
		WHERE rm.room_type_id = ?
		ORDER BY rm.room_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.UnitAvailability
	for rows.Next() {
		var u model.UnitAvailability
		var status string
		var free int
		if err := rows.Scan(&u.ID, &u.Number, &u.RoomTypeID, &status, &free); err != nil {
			return nil, err
		}
		u.Status = model.UnitStatus(status)
		u.AvailableForDates = free == 1
		out = append(out, u)
	}
	return out, rows.Err()
}

// Get returns one reservation or ErrNotFound.
func (r *ReservationRepo) Get(ctx context.Context, id uint64) (model.Reservation, error) {
	return r.get(ctx, r.db, id)
}

// GetTx is Get inside an open transaction.
func (r *ReservationRepo) GetTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Reservation, error) {
	return r.get(ctx, tx, id)
}

// LockTx reads and locks one reservation for a status change.
func (r *ReservationRepo) LockTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Reservation, error) {
	res, err := scanReservation(tx.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM bookings b WHERE b.id = ?`+r.dialect.ForUpdate, id))
	if errors.Is(err, sql.ErrNoRows) {
		return res, ErrNotFound
	}
	return res, err
}

func (r *ReservationRepo) get(ctx context.Context, q querier, id uint64) (model.Reservation, error) {
	res, err := scanReservation(q.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM bookings b WHERE b.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return res, ErrNotFound
	}
	return res, err
}

// GetMany returns the reservations with the given ids ordered by id.
// Missing ids are simply absent from the result.
func (r *ReservationRepo) GetMany(ctx context.Context, ids []uint64) ([]model.Reservation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM bookings b WHERE b.id IN (`+placeholders(len(ids))+`) ORDER BY b.id`,
		idArgs(ids)...)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// ListByHolder returns a holder's reservations, newest first.  Rows created
// in the same second keep id order so group members stay adjacent.
func (r *ReservationRepo) ListByHolder(ctx context.Context, holderID uint64) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM bookings b WHERE b.user_id = ? ORDER BY b.created_at DESC, b.id ASC`,
		holderID)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// ListHolding returns holding reservations of a type that cover at least
// one night in [from, to).
func (r *ReservationRepo) ListHolding(ctx context.Context, typeID uint64, from, to model.Date) ([]model.Reservation, error) {
	args := append([]any{typeID}, statusArgs(model.HoldingStatuses)...)
	args = append(args, to, from)
	rows, err := r.db.QueryContext(ctx, `SELECT `+reservationColumns+` FROM bookings b
		WHERE b.room_type_id = ? AND b.status IN `+holdingIn+` AND b.check_in < ? AND b.check_out > ?
		ORDER BY b.check_in, b.id`, args...)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// Patch applies the non-nil fields of p in a single statement.  It returns
// ErrNotFound when the row does not exist.
func (r *ReservationRepo) Patch(ctx context.Context, id uint64, p model.ReservationPatch) error {
	return r.patch(ctx, r.db, id, p)
}

// PatchTx is Patch inside an open transaction.
func (r *ReservationRepo) PatchTx(ctx context.Context, tx *sql.Tx, id uint64, p model.ReservationPatch) error {
	return r.patch(ctx, tx, id, p)
}

func (r *ReservationRepo) patch(ctx context.Context, q querier, id uint64, p model.ReservationPatch) error {
	res, err := q.ExecContext(ctx,
		`UPDATE bookings SET status = COALESCE(?, status), payment_ref = COALESCE(?, payment_ref) WHERE id = ?`,
		nullableStatus(p.Status), nullableString(p.PaymentRef), id)
	if err != nil {
		return err
	}
	// MySQL reports zero affected rows when nothing changed.
	if n, _ := res.RowsAffected(); n == 0 {
		return r.ensureExists(ctx, q, id)
	}
	return nil
}

func (r *ReservationRepo) ensureExists(ctx context.Context, q querier, id uint64) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM bookings WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// SetPaymentRefTx stores the same transaction reference on every id.
func (r *ReservationRepo) SetPaymentRefTx(ctx context.Context, tx *sql.Tx, ids []uint64, ref string) error {
	if len(ids) == 0 {
		return nil
	}
	args := append([]any{ref}, idArgs(ids)...)
	_, err := tx.ExecContext(ctx,
		`UPDATE bookings SET payment_ref = ? WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	return err
}

// ConfirmPendingTx moves every listed reservation that is still pending to
// confirmed in one statement and returns how many rows changed.  Rows in
// any other status are left alone, so a cancelled reservation is never
// revived by a late payment.
func (r *ReservationRepo) ConfirmPendingTx(ctx context.Context, tx *sql.Tx, ids []uint64, ref string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := []any{string(model.StatusConfirmed), ref}
	args = append(args, idArgs(ids)...)
	args = append(args, string(model.StatusPending))
	res, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = ?, payment_ref = ? WHERE id IN (`+placeholders(len(ids))+`) AND status = ?`,
		args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Receipt joins a reservation with its holder, room and room type labels.
func (r *ReservationRepo) Receipt(ctx context.Context, id uint64) (model.RoomReceipt, error) {
	rc, err := scanReceipt(r.db.QueryRowContext(ctx, receiptSelect+` WHERE b.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return rc, ErrNotFound
	}
	return rc, err
}

// ListAll returns every reservation with holder and room labels, newest
// first.  An empty status lists all statuses.
func (r *ReservationRepo) ListAll(ctx context.Context, status model.Status) ([]model.RoomReceipt, error) {
	query, args := receiptSelect, []any{}
	if status != "" {
		query += ` WHERE b.status = ?`
		args = append(args, string(status))
	}
	rows, err := r.db.QueryContext(ctx, query+` ORDER BY b.created_at DESC, b.id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.RoomReceipt
	for rows.Next() {
		rc, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

const receiptSelect = `SELECT ` + reservationColumns + `,
		COALESCE(u.name, ''), COALESCE(u.email, ''), rm.room_number, COALESCE(rt.type_name, '')
		FROM bookings b
		LEFT JOIN users u ON u.id = b.user_id
		LEFT JOIN rooms rm ON rm.room_id = b.room_id
		LEFT JOIN room_types rt ON rt.type_id = b.room_type_id`

func scanReceipt(s rowScanner) (model.RoomReceipt, error) {
	var rc model.RoomReceipt
	var number sql.NullString
	res, err := scanReservation(s, &rc.HolderName, &rc.HolderEmail, &number, &rc.RoomType)
	if err != nil {
		return rc, err
	}
	rc.Reservation = res
	rc.RoomNumber = stringPtr(number)
	return rc, nil
}

// Delete removes a reservation whatever its status.
func (r *ReservationRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTerminal removes a reservation only when it is cancelled or
// completed.  A pending or confirmed row yields ErrNotTerminal.
func (r *ReservationRepo) DeleteTerminal(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ? AND status IN (?, ?)`,
		id, string(model.StatusCancelled), string(model.StatusCompleted))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if err := r.ensureExists(ctx, r.db, id); err != nil {
		return err
	}
	return ErrNotTerminal
}

// ExpirePendingTx cancels every pending reservation created before cutoff
// and returns the rows it cancelled.
func (r *ReservationRepo) ExpirePendingTx(ctx context.Context, tx *sql.Tx, cutoff time.Time) ([]model.Reservation, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM bookings b WHERE b.status = ? AND b.created_at < ? ORDER BY b.id`+r.dialect.ForUpdate,
		string(model.StatusPending), formatTimestamp(cutoff))
	if err != nil {
		return nil, err
	}
	stale, err := collectReservations(rows)
	if err != nil || len(stale) == 0 {
		return nil, err
	}
	ids := make([]uint64, 0, len(stale))
	for i := range stale {
		ids = append(ids, stale[i].ID)
		stale[i].Status = model.StatusCancelled
	}
	args := []any{string(model.StatusCancelled)}
	args = append(args, idArgs(ids)...)
	args = append(args, string(model.StatusPending))
	_, err = tx.ExecContext(ctx,
		`UPDATE bookings SET status = ? WHERE id IN (`+placeholders(len(ids))+`) AND status = ?`, args...)
	if err != nil {
		return nil, err
	}
	return stale, nil
}
