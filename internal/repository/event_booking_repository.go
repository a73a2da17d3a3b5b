package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/hotel-reservation/internal/model"
)

// EventBookingRepo provides access to the event_bookings table.
type EventBookingRepo struct {
	db      *sql.DB
	dialect Dialect
}

func NewEventBookingRepo(db *sql.DB, d Dialect) *EventBookingRepo {
	return &EventBookingRepo{db: db, dialect: d}
}

// BeginTx starts a write transaction with the dialect's isolation level.
func (r *EventBookingRepo) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return r.db.BeginTx(ctx, r.dialect.TxOptions)
}

const eventBookingColumns = `eb.booking_id, eb.event_id, eb.user_id, eb.ticket_type, eb.quantity,
	eb.total_price_cents, eb.status, eb.payment_ref, eb.capacity_applied, eb.created_at`

func scanEventBooking(s rowScanner, extra ...any) (model.EventBooking, error) {
	var b model.EventBooking
	var tier, status string
	var ref sql.NullString
	var applied int64
	var created nullTime
	dest := []any{&b.ID, &b.EventID, &b.HolderID, &tier, &b.Quantity, &b.TotalPriceCents, &status, &ref, &applied, &created}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return b, err
	}
	b.Tier = model.Tier(tier)
	b.Status = model.Status(status)
	b.PaymentRef = stringPtr(ref)
	b.CapacityApplied = applied != 0
	b.CreatedAt = created.Time
	return b, nil
}

// InsertTx writes a new event booking and sets its generated ID.
func (r *EventBookingRepo) InsertTx(ctx context.Context, tx *sql.Tx, b *model.EventBooking) error {
	const q = `INSERT INTO event_bookings (event_id, user_id, ticket_type, quantity, total_price_cents,
		status, payment_ref, capacity_applied, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	applied := 0
	if b.CapacityApplied {
		applied = 1
	}
	result, err := tx.ExecContext(ctx, q, b.EventID, b.HolderID, string(b.Tier), b.Quantity, b.TotalPriceCents,
		string(b.Status), nullableString(b.PaymentRef), applied, formatTimestamp(b.CreatedAt))
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	b.CreatedAt = b.CreatedAt.UTC().Truncate(time.Second)
	return nil
}

// SumTier returns the tickets of a tier held by pending or confirmed
// bookings.
func (r *EventBookingRepo) SumTier(ctx context.Context, eventID uint64, tier model.Tier) (int, error) {
	return r.sumTier(ctx, r.db, eventID, tier)
}

// SumTierTx is SumTier inside an open transaction.
func (r *EventBookingRepo) SumTierTx(ctx context.Context, tx *sql.Tx, eventID uint64, tier model.Tier) (int, error) {
	return r.sumTier(ctx, tx, eventID, tier)
}

func (r *EventBookingRepo) sumTier(ctx context.Context, q querier, eventID uint64, tier model.Tier) (int, error) {
	args := append([]any{eventID, string(tier)}, statusArgs(model.HoldingStatuses)...)
	var n int
	err := q.QueryRowContext(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM event_bookings
		WHERE event_id = ? AND ticket_type = ? AND status IN `+holdingIn, args...).Scan(&n)
	return n, err
}

// Get returns one event booking or ErrNotFound.
func (r *EventBookingRepo) Get(ctx context.Context, id uint64) (model.EventBooking, error) {
	return r.get(ctx, r.db, id)
}

// GetTx is Get inside an open transaction.
func (r *EventBookingRepo) GetTx(ctx context.Context, tx *sql.Tx, id uint64) (model.EventBooking, error) {
	return r.get(ctx, tx, id)
}

// LockTx reads and locks one booking for a status change.
func (r *EventBookingRepo) LockTx(ctx context.Context, tx *sql.Tx, id uint64) (model.EventBooking, error) {
	b, err := scanEventBooking(tx.QueryRowContext(ctx,
		`SELECT `+eventBookingColumns+` FROM event_bookings eb WHERE eb.booking_id = ?`+r.dialect.ForUpdate, id))
	if errors.Is(err, sql.ErrNoRows) {
		return b, ErrNotFound
	}
	return b, err
}

func (r *EventBookingRepo) get(ctx context.Context, q querier, id uint64) (model.EventBooking, error) {
	b, err := scanEventBooking(q.QueryRowContext(ctx,
		`SELECT `+eventBookingColumns+` FROM event_bookings eb WHERE eb.booking_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return b, ErrNotFound
	}
	return b, err
}

// ListByHolder returns a holder's event bookings, newest first.
func (r *EventBookingRepo) ListByHolder(ctx context.Context, holderID uint64) ([]model.EventBooking, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+eventBookingColumns+` FROM event_bookings eb WHERE eb.user_id = ? ORDER BY eb.created_at DESC, eb.booking_id DESC`,
		holderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.EventBooking
	for rows.Next() {
		b, err := scanEventBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Patch applies the non-nil fields of p.  It returns ErrNotFound when the
// booking does not exist.
func (r *EventBookingRepo) Patch(ctx context.Context, id uint64, p model.ReservationPatch) error {
	return r.patch(ctx, r.db, id, p)
}

// PatchTx is Patch inside an open transaction.
func (r *EventBookingRepo) PatchTx(ctx context.Context, tx *sql.Tx, id uint64, p model.ReservationPatch) error {
	return r.patch(ctx, tx, id, p)
}

func (r *EventBookingRepo) patch(ctx context.Context, q querier, id uint64, p model.ReservationPatch) error {
	res, err := q.ExecContext(ctx,
		`UPDATE event_bookings SET status = COALESCE(?, status), payment_ref = COALESCE(?, payment_ref) WHERE booking_id = ?`,
		nullableStatus(p.Status), nullableString(p.PaymentRef), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.ensureExists(ctx, q, id)
	}
	return nil
}

func (r *EventBookingRepo) ensureExists(ctx context.Context, q querier, id uint64) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM event_bookings WHERE booking_id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// SetPaymentRef stores the transaction reference issued for a booking.
func (r *EventBookingRepo) SetPaymentRef(ctx context.Context, id uint64, ref string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE event_bookings SET payment_ref = ? WHERE booking_id = ?`, ref, id)
	return err
}

// ConfirmPendingTx confirms the booking if it is still pending and returns
// the number of rows changed.
func (r *EventBookingRepo) ConfirmPendingTx(ctx context.Context, tx *sql.Tx, id uint64, ref string) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE event_bookings SET status = ?, payment_ref = ? WHERE booking_id = ? AND status = ?`,
		string(model.StatusConfirmed), ref, id, string(model.StatusPending))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkCapacityAppliedTx flips capacity_applied on a confirmed booking.  It
// reports true only for the call that performed the flip, so the remaining
// counters are decremented once per booking.
func (r *EventBookingRepo) MarkCapacityAppliedTx(ctx context.Context, tx *sql.Tx, id uint64) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE event_bookings SET capacity_applied = 1 WHERE booking_id = ? AND status = ? AND capacity_applied = 0`,
		id, string(model.StatusConfirmed))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// Receipt joins a booking with its event and holder.
func (r *EventBookingRepo) Receipt(ctx context.Context, id uint64) (model.EventReceipt, error) {
	var rc model.EventReceipt
	var start nullTime
	b, err := scanEventBooking(r.db.QueryRowContext(ctx, `SELECT `+eventBookingColumns+`,
		e.title, e.start_time, e.location, COALESCE(u.name, ''), COALESCE(u.email, '')
		FROM event_bookings eb
		JOIN events e ON e.event_id = eb.event_id
		LEFT JOIN users u ON u.id = eb.user_id
		WHERE eb.booking_id = ?`, id), &rc.EventTitle, &start, &rc.Location, &rc.HolderName, &rc.HolderEmail)
	if errors.Is(err, sql.ErrNoRows) {
		return rc, ErrNotFound
	}
	if err != nil {
		return rc, err
	}
	rc.EventBooking = b
	rc.EventDate = start.Time
	return rc, nil
}

// Delete removes a booking whatever its status.
func (r *EventBookingRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM event_bookings WHERE booking_id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTerminal removes a booking only when it is cancelled or completed.
func (r *EventBookingRepo) DeleteTerminal(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM event_bookings WHERE booking_id = ? AND status IN (?, ?)`,
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

// ExpirePending cancels pending bookings created before cutoff and returns
// how many were cancelled.
func (r *EventBookingRepo) ExpirePending(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE event_bookings SET status = ? WHERE status = ? AND created_at < ?`,
		string(model.StatusCancelled), string(model.StatusPending), formatTimestamp(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
