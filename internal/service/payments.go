package service

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/payment"
	"github.com/iliyamo/hotel-reservation/internal/queue"
	"github.com/iliyamo/hotel-reservation/internal/repository"
)

// ConfirmationPublisher receives an event whenever a payment confirms
// bookings.  Delivery is best effort.
type ConfirmationPublisher interface {
	PublishReservationConfirmed(ctx context.Context, ev queue.ReservationConfirmedEvent) error
}

type nopPublisher struct{}

func (nopPublisher) PublishReservationConfirmed(context.Context, queue.ReservationConfirmedEvent) error {
	return nil
}

// PaymentConfig carries the checkout settings sent to the gateway.
type PaymentConfig struct {
	Currency    string
	CallbackURL string
	ReturnURL   string
}

// Payments starts checkouts and reconciles verified payments against
// pending bookings.  Gateway errors are never retried here: a repeated
// initialize could charge twice.
type Payments struct {
	reservations  *repository.ReservationRepo
	eventBookings *repository.EventBookingRepo
	catalog       *repository.CatalogRepo
	users         *repository.UserRepo
	gateway       payment.Gateway
	publisher     ConfirmationPublisher
	cfg           PaymentConfig
	clock         Clock
	logger        *zap.Logger
}

func NewPayments(reservations *repository.ReservationRepo, eventBookings *repository.EventBookingRepo,
	catalog *repository.CatalogRepo, users *repository.UserRepo, gateway payment.Gateway,
	publisher ConfirmationPublisher, cfg PaymentConfig, clock Clock, logger *zap.Logger) *Payments {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if cfg.Currency == "" {
		cfg.Currency = "ETB"
	}
	return &Payments{
		reservations:  reservations,
		eventBookings: eventBookings,
		catalog:       catalog,
		users:         users,
		gateway:       gateway,
		publisher:     publisher,
		cfg:           cfg,
		clock:         clock,
		logger:        logger.Named("payments"),
	}
}

// CheckoutResult is what a caller needs to send the payer on.  Free is set
// when no gateway was involved and the booking is already confirmed.
type CheckoutResult struct {
	CheckoutURL string `json:"checkout_url"`
	TxRef       string `json:"tx_ref"`
	AmountCents int64  `json:"amount_cents"`
	Free        bool   `json:"free,omitempty"`
}

// VerifyResult reports what a verification confirmed.  ConfirmedIDs lists
// the referenced bookings whose status is now confirmed, whether this call
// or an earlier one confirmed them.
type VerifyResult struct {
	TxRef        payment.TxRef         `json:"-"`
	Kind         string                `json:"kind"`
	ConfirmedIDs []uint64              `json:"confirmed_ids"`
	RoomReceipt  *model.RoomReceipt    `json:"receipt,omitempty"`
	EventReceipt *model.EventReceipt   `json:"event_receipt,omitempty"`
	Gateway      *payment.Verification `json:"-"`
}

// Confirmed reports whether at least one referenced booking is confirmed.
func (v VerifyResult) Confirmed() bool { return len(v.ConfirmedIDs) > 0 }

func withQuery(base string, params ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	for i := 0; i+1 < len(params); i += 2 {
		q.Set(params[i], params[i+1])
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func dedupe(ids []uint64) []uint64 {
	seen := make(map[uint64]bool, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// InitializeRooms starts one checkout covering every listed reservation.
// All reservations must exist, be pending and share a holder; callerID,
// when non-zero, must be that holder.  The amount is the sum of final
// prices.
func (p *Payments) InitializeRooms(ctx context.Context, callerID uint64, ids []uint64) (CheckoutResult, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return CheckoutResult{}, fmt.Errorf("%w: at least one reservation id is required", ErrInvalidRequest)
	}
	rows, err := p.reservations.GetMany(ctx, ids)
	if err != nil {
		return CheckoutResult{}, err
	}
	byID := make(map[uint64]model.Reservation, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	first, ok := byID[ids[0]]
	if !ok {
		return CheckoutResult{}, fmt.Errorf("%w: reservation %d", ErrResourceNotFound, ids[0])
	}
	var total int64
	for _, id := range ids {
		r, ok := byID[id]
		if !ok {
			return CheckoutResult{}, fmt.Errorf("%w: reservation %d", ErrResourceNotFound, id)
		}
		if r.HolderID != first.HolderID {
			return CheckoutResult{}, fmt.Errorf("%w: reservation %d", ErrCrossHolderPayment, id)
		}
		if r.Status != model.StatusPending {
			return CheckoutResult{}, fmt.Errorf("%w: reservation %d is %s", ErrInvalidTransition, id, r.Status)
		}
		total += r.FinalPriceCents
	}
	if callerID != 0 && callerID != first.HolderID {
		return CheckoutResult{}, ErrForbidden
	}
	payer, err := p.users.GetPayer(ctx, first.HolderID)
	if err != nil {
		return CheckoutResult{}, notFound(err, "user", first.HolderID)
	}

	ref := payment.RoomRef(ids, p.clock.now())
	desc := "Payment for Booking " + strconv.FormatUint(ids[0], 10)
	if len(ids) > 1 {
		desc = fmt.Sprintf("Payment for %d Bookings", len(ids))
	}
	out, err := p.checkout(ctx, payer, ref, total, "Booking Payment", desc,
		withQuery(p.cfg.ReturnURL, "tx_ref", ref.String()))
	if err != nil {
		return CheckoutResult{}, err
	}
	if err := inTx(ctx, p.reservations, func(tx *sql.Tx) error {
		return p.reservations.SetPaymentRefTx(ctx, tx, ids, ref.String())
	}); err != nil {
		return CheckoutResult{}, err
	}
	return out, nil
}

func (p *Payments) checkout(ctx context.Context, payer model.Payer, ref payment.TxRef, amount int64, title, desc, returnURL string) (CheckoutResult, error) {
	first, last := payer.SplitName()
	co, err := p.gateway.Initialize(ctx, payment.CheckoutRequest{
		AmountCents: amount,
		Currency:    p.cfg.Currency,
		Email:       payer.Email,
		FirstName:   first,
		LastName:    last,
		TxRef:       ref.String(),
		CallbackURL: p.cfg.CallbackURL,
		ReturnURL:   returnURL,
		Title:       title,
		Description: desc,
	})
	if err != nil {
		p.logger.Warn("checkout failed", zap.String("tx_ref", ref.String()), zap.Error(err))
		return CheckoutResult{}, err
	}
	p.logger.Info("checkout started",
		zap.String("tx_ref", ref.String()),
		zap.Int64("amount_cents", amount),
		zap.Uint64("user_id", payer.ID))
	return CheckoutResult{CheckoutURL: co.CheckoutURL, TxRef: ref.String(), AmountCents: amount}, nil
}

// InitializeEvent starts a checkout for an event booking.  A zero-amount
// booking skips the gateway: it is confirmed at once, its capacity is
// reconciled and the local return URL is handed back instead of a
// checkout URL.
func (p *Payments) InitializeEvent(ctx context.Context, callerID, bookingID uint64) (CheckoutResult, error) {
	b, err := p.eventBookings.Get(ctx, bookingID)
	if err != nil {
		return CheckoutResult{}, notFound(err, "event booking", bookingID)
	}
	if callerID != 0 && callerID != b.HolderID {
		return CheckoutResult{}, ErrForbidden
	}
	if b.Status != model.StatusPending {
		return CheckoutResult{}, fmt.Errorf("%w: event booking %d is %s", ErrInvalidTransition, bookingID, b.Status)
	}

	if b.TotalPriceCents == 0 {
		ref := payment.EventFreeRef(b.ID, p.clock.now())
		if _, err := p.confirmEvent(ctx, ref, ref.String()); err != nil {
			return CheckoutResult{}, err
		}
		return CheckoutResult{
			CheckoutURL: withQuery(p.cfg.ReturnURL, "free", "true", "booking_id", strconv.FormatUint(b.ID, 10)),
			TxRef:       ref.String(),
			Free:        true,
		}, nil
	}

	payer, err := p.users.GetPayer(ctx, b.HolderID)
	if err != nil {
		return CheckoutResult{}, notFound(err, "user", b.HolderID)
	}
	ref := payment.EventRef(b.ID, p.clock.now())
	out, err := p.checkout(ctx, payer, ref, b.TotalPriceCents, "Event Ticket",
		fmt.Sprintf("Payment for %d %s ticket(s)", b.Quantity, b.Tier),
		withQuery(p.cfg.ReturnURL, "tx_ref", ref.String(), "type", "event"))
	if err != nil {
		return CheckoutResult{}, err
	}
	if err := p.eventBookings.SetPaymentRef(ctx, b.ID, ref.String()); err != nil {
		return CheckoutResult{}, err
	}
	return out, nil
}

// Verify reconciles a transaction reference.  The reference is parsed
// before anything else; a malformed one never reaches the gateway.  Free
// event references are only accepted when InitializeEvent already settled
// them; they never confirm anything on their own.  On success every
// referenced booking still pending is confirmed in one statement, so
// calling Verify again is harmless and a cancelled booking is never
// revived.
func (p *Payments) Verify(ctx context.Context, rawRef string) (VerifyResult, error) {
	ref, err := payment.ParseTxRef(rawRef)
	if err != nil {
		return VerifyResult{}, err
	}
	result := VerifyResult{TxRef: ref, Kind: ref.Kind.String()}

	if ref.Kind == payment.KindEventFree {
		rc, err := p.settledFree(ctx, ref)
		if err != nil {
			p.logger.Info("free reference refused", zap.String("tx_ref", ref.String()), zap.Error(err))
			return result, err
		}
		result.EventReceipt = &rc
		result.ConfirmedIDs = []uint64{rc.ID}
		return result, nil
	}

	v, err := p.gateway.Verify(ctx, ref.String())
	if err != nil {
		p.logger.Info("verification not successful", zap.String("tx_ref", ref.String()), zap.Error(err))
		return result, err
	}
	result.Gateway = v

	switch ref.Kind {
	case payment.KindEvent:
		rc, err := p.confirmEvent(ctx, ref, ref.String())
		if err != nil {
			return result, err
		}
		result.EventReceipt = &rc
		if rc.Status == model.StatusConfirmed {
			result.ConfirmedIDs = []uint64{rc.ID}
		}
	case payment.KindSingle, payment.KindGroup:
		rc, confirmed, err := p.confirmRooms(ctx, ref, result.Gateway)
		if err != nil {
			return result, err
		}
		result.RoomReceipt = &rc
		result.ConfirmedIDs = confirmed
	}
	return result, nil
}

func (p *Payments) confirmRooms(ctx context.Context, ref payment.TxRef, v *payment.Verification) (model.RoomReceipt, []uint64, error) {
	var changed int64
	err := inTx(ctx, p.reservations, func(tx *sql.Tx) error {
		var err error
		changed, err = p.reservations.ConfirmPendingTx(ctx, tx, ref.IDs, ref.String())
		return err
	})
	if err != nil {
		return model.RoomReceipt{}, nil, err
	}

	rows, err := p.reservations.GetMany(ctx, ref.IDs)
	if err != nil {
		return model.RoomReceipt{}, nil, err
	}
	if len(rows) == 0 {
		return model.RoomReceipt{}, nil, fmt.Errorf("%w: reservations for %s", ErrResourceNotFound, ref)
	}
	var confirmed []uint64
	for _, r := range rows {
		if r.Status == model.StatusConfirmed {
			confirmed = append(confirmed, r.ID)
		}
	}

	rc, err := p.reservations.Receipt(ctx, ref.ID())
	if err != nil {
		return model.RoomReceipt{}, nil, notFound(err, "reservation", ref.ID())
	}
	if ref.Kind == payment.KindGroup {
		if v != nil {
			rc.FinalPriceCents = v.AmountCents
		}
		rc.RoomType += " (Group Booking)"
	}

	if changed > 0 {
		p.logger.Info("reservations confirmed", zap.String("tx_ref", ref.String()), zap.Int64("rows", changed))
		var amount int64
		if v != nil {
			amount = v.AmountCents
		}
		p.publish(ctx, ref, confirmed, rc.HolderID, amount)
	}
	return rc, confirmed, nil
}

// settledFree returns the receipt of a zero-price booking that a free
// checkout already confirmed under exactly this reference.
func (p *Payments) settledFree(ctx context.Context, ref payment.TxRef) (model.EventReceipt, error) {
	b, err := p.eventBookings.Get(ctx, ref.ID())
	if err != nil {
		return model.EventReceipt{}, notFound(err, "event booking", ref.ID())
	}
	if b.TotalPriceCents != 0 || b.Status != model.StatusConfirmed ||
		b.PaymentRef == nil || *b.PaymentRef != ref.String() {
		return model.EventReceipt{}, fmt.Errorf("%w: %s was not issued for a free booking", ErrInvalidReference, ref)
	}
	rc, err := p.eventBookings.Receipt(ctx, b.ID)
	if err != nil {
		return model.EventReceipt{}, notFound(err, "event booking", b.ID)
	}
	return rc, nil
}

// confirmEvent confirms an event booking if it is still pending, then
// applies its tickets to the remaining counter.
func (p *Payments) confirmEvent(ctx context.Context, ref payment.TxRef, marker string) (model.EventReceipt, error) {
	var changed int64
	err := inTx(ctx, p.eventBookings, func(tx *sql.Tx) error {
		if _, err := p.eventBookings.GetTx(ctx, tx, ref.ID()); err != nil {
			return notFound(err, "event booking", ref.ID())
		}
		var err error
		changed, err = p.eventBookings.ConfirmPendingTx(ctx, tx, ref.ID(), marker)
		return err
	})
	if err != nil {
		return model.EventReceipt{}, err
	}
	if _, err := p.ReconcileCapacity(ctx, ref.String()); err != nil {
		p.logger.Warn("capacity reconcile failed", zap.String("tx_ref", ref.String()), zap.Error(err))
	}
	rc, err := p.eventBookings.Receipt(ctx, ref.ID())
	if err != nil {
		return model.EventReceipt{}, notFound(err, "event booking", ref.ID())
	}
	if changed > 0 {
		p.logger.Info("event booking confirmed", zap.String("tx_ref", ref.String()), zap.Uint64("booking_id", rc.ID))
		p.publish(ctx, ref, []uint64{rc.ID}, rc.HolderID, rc.TotalPriceCents)
	}
	return rc, nil
}

// ReconcileCapacity decrements the remaining counter of the booking's tier
// by its quantity, floored at zero.  It applies at most once per booking
// and only to confirmed bookings; it reports whether this call applied it.
func (p *Payments) ReconcileCapacity(ctx context.Context, rawRef string) (bool, error) {
	ref, err := payment.ParseTxRef(rawRef)
	if err != nil {
		return false, err
	}
	if !ref.IsEvent() {
		return false, fmt.Errorf("%w: %s is not an event reference", ErrInvalidReference, ref)
	}
	var applied bool
	err = inTx(ctx, p.eventBookings, func(tx *sql.Tx) error {
		b, err := p.eventBookings.GetTx(ctx, tx, ref.ID())
		if err != nil {
			return notFound(err, "event booking", ref.ID())
		}
		if _, err := p.catalog.LockEventTx(ctx, tx, b.EventID); err != nil {
			return notFound(err, "event", b.EventID)
		}
		applied, err = p.eventBookings.MarkCapacityAppliedTx(ctx, tx, b.ID)
		if err != nil || !applied {
			return err
		}
		return p.catalog.DecrementRemainingTx(ctx, tx, b.EventID, b.Tier, b.Quantity)
	})
	return applied, err
}

func (p *Payments) publish(ctx context.Context, ref payment.TxRef, ids []uint64, holderID uint64, amount int64) {
	ev := queue.ReservationConfirmedEvent{
		Kind:        ref.Kind.String(),
		TxRef:       ref.String(),
		BookingIDs:  ids,
		HolderID:    holderID,
		AmountCents: amount,
		Currency:    p.cfg.Currency,
		ConfirmedAt: p.clock.now().Format(time.RFC3339),
	}
	if err := p.publisher.PublishReservationConfirmed(ctx, ev); err != nil {
		p.logger.Warn("publish confirmation failed", zap.String("tx_ref", ref.String()), zap.Error(err))
	}
}
