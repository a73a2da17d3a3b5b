package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/repository"
)

// Lifecycle owns the status state machine of room reservations and event
// bookings:
//
//	pending   -> confirmed | cancelled
//	confirmed -> completed | cancelled
//
// Cancelled and completed are terminal.  Status changes never touch the
// coarse room status; they invalidate the availability cache instead.
type Lifecycle struct {
	reservations  *repository.ReservationRepo
	eventBookings *repository.EventBookingRepo
	cache         AvailabilityCache
	clock         Clock
	logger        *zap.Logger
}

func NewLifecycle(reservations *repository.ReservationRepo, eventBookings *repository.EventBookingRepo,
	cache AvailabilityCache, clock Clock, logger *zap.Logger) *Lifecycle {
	if cache == nil {
		cache = NopCache{}
	}
	return &Lifecycle{
		reservations:  reservations,
		eventBookings: eventBookings,
		cache:         cache,
		clock:         clock,
		logger:        logger.Named("lifecycle"),
	}
}

func checkTransition(from, to model.Status) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, to)
	}
	if from == to || from.CanTransition(to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// SetStatus moves a reservation to status.  Setting the current status is
// a no-op.
func (l *Lifecycle) SetStatus(ctx context.Context, id uint64, status model.Status) (model.Reservation, error) {
	return l.Patch(ctx, id, model.ReservationPatch{Status: &status})
}

// Cancel sets a reservation to cancelled.
func (l *Lifecycle) Cancel(ctx context.Context, id uint64) (model.Reservation, error) {
	return l.SetStatus(ctx, id, model.StatusCancelled)
}

// CancelOwned cancels a reservation on behalf of its holder.
func (l *Lifecycle) CancelOwned(ctx context.Context, holderID, id uint64) (model.Reservation, error) {
	res, err := l.reservations.Get(ctx, id)
	if err != nil {
		return model.Reservation{}, notFound(err, "reservation", id)
	}
	if res.HolderID != holderID {
		return model.Reservation{}, ErrForbidden
	}
	return l.Cancel(ctx, id)
}

// Patch applies a partial update in one statement.  A status in the patch
// must be a legal transition from the current status.
func (l *Lifecycle) Patch(ctx context.Context, id uint64, p model.ReservationPatch) (model.Reservation, error) {
	var out model.Reservation
	var changed bool
	err := inTx(ctx, l.reservations, func(tx *sql.Tx) error {
		cur, err := l.reservations.LockTx(ctx, tx, id)
		if err != nil {
			return notFound(err, "reservation", id)
		}
		if p.Status != nil {
			if err := checkTransition(cur.Status, *p.Status); err != nil {
				return err
			}
			changed = *p.Status != cur.Status
		}
		if p.Status == nil && p.PaymentRef == nil {
			out = cur
			return nil
		}
		if err := l.reservations.PatchTx(ctx, tx, id, p); err != nil {
			return err
		}
		out, err = l.reservations.GetTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return model.Reservation{}, err
	}
	if changed {
		l.cache.Invalidate(ctx, out.RoomTypeID)
		l.logger.Info("reservation status changed",
			zap.Uint64("reservation_id", id),
			zap.String("status", string(out.Status)))
	}
	return out, nil
}

// OperatorPatch is Patch for manual changes.  Confirmation is reserved for
// payment verification, so an operator can cancel or complete but never
// confirm.
func (l *Lifecycle) OperatorPatch(ctx context.Context, id uint64, p model.ReservationPatch) (model.Reservation, error) {
	if p.Status != nil && *p.Status == model.StatusConfirmed {
		return model.Reservation{}, fmt.Errorf("%w: reservation %d can only be confirmed by a verified payment", ErrInvalidTransition, id)
	}
	return l.Patch(ctx, id, p)
}

// Delete removes a reservation that is cancelled or completed.
func (l *Lifecycle) Delete(ctx context.Context, id uint64) error {
	if err := l.reservations.DeleteTerminal(ctx, id); err != nil {
		return notFound(err, "reservation", id)
	}
	return nil
}

// ForceDelete removes a reservation in any status, releasing its room if
// it was still held.
func (l *Lifecycle) ForceDelete(ctx context.Context, id uint64) error {
	res, err := l.reservations.Get(ctx, id)
	if err != nil {
		return notFound(err, "reservation", id)
	}
	if err := l.reservations.Delete(ctx, id); err != nil {
		return notFound(err, "reservation", id)
	}
	if res.Status.Holds() {
		l.cache.Invalidate(ctx, res.RoomTypeID)
	}
	l.logger.Info("reservation force-deleted", zap.Uint64("reservation_id", id), zap.String("status", string(res.Status)))
	return nil
}

// SetEventStatus moves an event booking to status under the same rules as
// reservations.
func (l *Lifecycle) SetEventStatus(ctx context.Context, id uint64, status model.Status) (model.EventBooking, error) {
	var out model.EventBooking
	err := inTx(ctx, l.eventBookings, func(tx *sql.Tx) error {
		cur, err := l.eventBookings.LockTx(ctx, tx, id)
		if err != nil {
			return notFound(err, "event booking", id)
		}
		if err := checkTransition(cur.Status, status); err != nil {
			return err
		}
		if cur.Status == status {
			out = cur
			return nil
		}
		if err := l.eventBookings.PatchTx(ctx, tx, id, model.ReservationPatch{Status: &status}); err != nil {
			return err
		}
		out, err = l.eventBookings.GetTx(ctx, tx, id)
		return err
	})
	return out, err
}

// OperatorSetEventStatus is SetEventStatus for manual changes; like
// OperatorPatch it refuses to confirm.
func (l *Lifecycle) OperatorSetEventStatus(ctx context.Context, id uint64, status model.Status) (model.EventBooking, error) {
	if status == model.StatusConfirmed {
		return model.EventBooking{}, fmt.Errorf("%w: event booking %d can only be confirmed by a verified payment", ErrInvalidTransition, id)
	}
	return l.SetEventStatus(ctx, id, status)
}

// CancelEventOwned cancels an event booking on behalf of its holder.
func (l *Lifecycle) CancelEventOwned(ctx context.Context, holderID, id uint64) (model.EventBooking, error) {
	b, err := l.eventBookings.Get(ctx, id)
	if err != nil {
		return model.EventBooking{}, notFound(err, "event booking", id)
	}
	if b.HolderID != holderID {
		return model.EventBooking{}, ErrForbidden
	}
	return l.SetEventStatus(ctx, id, model.StatusCancelled)
}

// DeleteEventBooking removes an event booking that is cancelled or completed.
func (l *Lifecycle) DeleteEventBooking(ctx context.Context, id uint64) error {
	if err := l.eventBookings.DeleteTerminal(ctx, id); err != nil {
		return notFound(err, "event booking", id)
	}
	return nil
}

// ForceDeleteEventBooking removes an event booking in any status.
func (l *Lifecycle) ForceDeleteEventBooking(ctx context.Context, id uint64) error {
	if err := l.eventBookings.Delete(ctx, id); err != nil {
		return notFound(err, "event booking", id)
	}
	return nil
}

// ExpiryReport counts what ExpirePending cancelled.
type ExpiryReport struct {
	Cutoff        time.Time `json:"cutoff"`
	Reservations  int       `json:"reservations"`
	EventBookings int64     `json:"event_bookings"`
}

// ExpirePending cancels pending reservations and event bookings created
// more than olderThan ago: checkouts that were started and abandoned.
func (l *Lifecycle) ExpirePending(ctx context.Context, olderThan time.Duration) (ExpiryReport, error) {
	if olderThan <= 0 {
		return ExpiryReport{}, fmt.Errorf("%w: olderThan must be positive", ErrInvalidRequest)
	}
	report := ExpiryReport{Cutoff: l.clock.now().Add(-olderThan)}
	var expired []model.Reservation
	err := inTx(ctx, l.reservations, func(tx *sql.Tx) error {
		var err error
		expired, err = l.reservations.ExpirePendingTx(ctx, tx, report.Cutoff)
		return err
	})
	if err != nil {
		return report, err
	}
	report.Reservations = len(expired)
	seen := map[uint64]bool{}
	for _, r := range expired {
		if !seen[r.RoomTypeID] {
			seen[r.RoomTypeID] = true
			l.cache.Invalidate(ctx, r.RoomTypeID)
		}
	}
	report.EventBookings, err = l.eventBookings.ExpirePending(ctx, report.Cutoff)
	if err != nil {
		return report, err
	}
	l.logger.Info("expired pending bookings",
		zap.Time("cutoff", report.Cutoff),
		zap.Int("reservations", report.Reservations),
		zap.Int64("event_bookings", report.EventBookings))
	return report, nil
}

// ListReservations returns a holder's reservations, newest first.
func (l *Lifecycle) ListReservations(ctx context.Context, holderID uint64) ([]model.Reservation, error) {
	return l.reservations.ListByHolder(ctx, holderID)
}

// ListAll returns every reservation with holder and room labels, newest
// first, optionally narrowed to one status.
func (l *Lifecycle) ListAll(ctx context.Context, status model.Status) ([]model.RoomReceipt, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, status)
	}
	return l.reservations.ListAll(ctx, status)
}

// ListGroups folds a holder's reservations into the groups they were
// allocated in.
func (l *Lifecycle) ListGroups(ctx context.Context, holderID uint64) ([]model.ReservationGroup, error) {
	list, err := l.reservations.ListByHolder(ctx, holderID)
	if err != nil {
		return nil, err
	}
	return model.GroupReservations(list), nil
}

// ListEventBookings returns a holder's event bookings, newest first.
func (l *Lifecycle) ListEventBookings(ctx context.Context, holderID uint64) ([]model.EventBooking, error) {
	return l.eventBookings.ListByHolder(ctx, holderID)
}

// Receipt returns a room receipt.  holderID 0 skips the ownership check.
func (l *Lifecycle) Receipt(ctx context.Context, holderID, id uint64) (model.RoomReceipt, error) {
	rc, err := l.reservations.Receipt(ctx, id)
	if err != nil {
		return rc, notFound(err, "reservation", id)
	}
	if holderID != 0 && rc.HolderID != holderID {
		return model.RoomReceipt{}, ErrForbidden
	}
	return rc, nil
}

// EventReceipt returns an event receipt.  holderID 0 skips the ownership
// check.
func (l *Lifecycle) EventReceipt(ctx context.Context, holderID, id uint64) (model.EventReceipt, error) {
	rc, err := l.eventBookings.Receipt(ctx, id)
	if err != nil {
		return rc, notFound(err, "event booking", id)
	}
	if holderID != 0 && rc.HolderID != holderID {
		return model.EventReceipt{}, ErrForbidden
	}
	return rc, nil
}

