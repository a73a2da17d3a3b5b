package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/payment"
)

func allocateGroup(t *testing.T, env *testEnv, holder uint64, count int) []model.Reservation {
	t.Helper()
	got, err := env.allocator.AllocateGroup(context.Background(), GroupRequest{
		HolderID:   holder,
		RoomTypeID: 1,
		Interval:   mustInterval(t, "2024-06-01", "2024-06-04"),
		Count:      count,
	})
	require.NoError(t, err)
	return got
}

func TestInitializeRoomsSingle(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	res := allocateGroup(t, env, 1, 1)[0]

	out, err := env.payments.InitializeRooms(ctx, 1, []uint64{res.ID})
	require.NoError(t, err)
	wantRef := fmt.Sprintf("TX-%d-%d", res.ID, testNow.Unix())
	assert.Equal(t, wantRef, out.TxRef)
	assert.Equal(t, "https://checkout.example/"+wantRef, out.CheckoutURL)
	assert.Equal(t, int64(45000), out.AmountCents)

	require.Len(t, env.gateway.initCalls, 1)
	req := env.gateway.initCalls[0]
	assert.Equal(t, "Abebe", req.FirstName)
	assert.Equal(t, "Kebede Tesfaye", req.LastName)
	assert.Equal(t, "abebe@example.com", req.Email)
	assert.Equal(t, "ETB", req.Currency)
	assert.Equal(t, int64(45000), req.AmountCents)
	assert.Equal(t, "https://api.example/payments/callback", req.CallbackURL)
	ret, err := url.Parse(req.ReturnURL)
	require.NoError(t, err)
	assert.Equal(t, wantRef, ret.Query().Get("tx_ref"))

	stored, err := env.reservations.Get(ctx, res.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PaymentRef)
	assert.Equal(t, wantRef, *stored.PaymentRef)
	assert.Equal(t, model.StatusPending, stored.Status)
}

func TestInitializeRoomsGroup(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	group := allocateGroup(t, env, 1, 3)

	out, err := env.payments.InitializeRooms(ctx, 0, append(ids(group), group[0].ID))
	require.NoError(t, err)
	ref, err := payment.ParseTxRef(out.TxRef)
	require.NoError(t, err)
	assert.Equal(t, payment.KindGroup, ref.Kind)
	assert.Equal(t, ids(group), ref.IDs)
	assert.Equal(t, int64(135000), out.AmountCents)
}

func TestInitializeRoomsRefusals(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	mine := allocateGroup(t, env, 1, 1)[0]
	theirs := allocateGroup(t, env, 2, 1)[0]
	done := allocateGroup(t, env, 1, 1)[0]
	_, err := env.lifecycle.Cancel(ctx, done.ID)
	require.NoError(t, err)

	tests := []struct {
		name    string
		caller  uint64
		ids     []uint64
		wantErr error
	}{
		{"different holders", 1, []uint64{mine.ID, theirs.ID}, ErrCrossHolderPayment},
		{"unknown reservation", 1, []uint64{mine.ID, 999}, ErrResourceNotFound},
		{"not pending", 1, []uint64{done.ID}, ErrInvalidTransition},
		{"not the holder", 2, []uint64{mine.ID}, ErrForbidden},
		{"empty", 1, nil, ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.payments.InitializeRooms(ctx, tt.caller, tt.ids)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Empty(t, env.gateway.initCalls)
}

func TestInitializeRoomsGatewayFailureKeepsState(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	res := allocateGroup(t, env, 1, 1)[0]
	env.gateway.InitializeFunc = func(context.Context, payment.CheckoutRequest) (*payment.Checkout, error) {
		return nil, fmt.Errorf("%w: dial tcp: i/o timeout", payment.ErrGatewayUnreachable)
	}

	_, err := env.payments.InitializeRooms(ctx, 1, []uint64{res.ID})
	assert.ErrorIs(t, err, ErrGatewayUnreachable)

	stored, err := env.reservations.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.PaymentRef)
	assert.Equal(t, model.StatusPending, stored.Status)
}

func TestVerifyGroupSettlesEveryReservation(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	group := allocateGroup(t, env, 1, 3)
	out, err := env.payments.InitializeRooms(ctx, 1, ids(group))
	require.NoError(t, err)
	env.gateway.VerifyFunc = func(context.Context, string) (*payment.Verification, error) {
		return &payment.Verification{AmountCents: 45000, Currency: "ETB", Status: "success"}, nil
	}

	got, err := env.payments.Verify(ctx, out.TxRef)
	require.NoError(t, err)
	assert.True(t, got.Confirmed())
	assert.Equal(t, "group", got.Kind)
	assert.ElementsMatch(t, ids(group), got.ConfirmedIDs)
	require.NotNil(t, got.RoomReceipt)
	assert.Equal(t, int64(45000), got.RoomReceipt.FinalPriceCents)
	assert.Equal(t, "Deluxe (Group Booking)", got.RoomReceipt.RoomType)

	for _, r := range group {
		stored, err := env.reservations.Get(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusConfirmed, stored.Status)
		assert.Equal(t, out.TxRef, *stored.PaymentRef)
	}
	require.Len(t, env.publisher.events, 1)
	ev := env.publisher.events[0]
	assert.Equal(t, out.TxRef, ev.TxRef)
	assert.Equal(t, uint64(1), ev.HolderID)
	assert.Equal(t, int64(45000), ev.AmountCents)

	again, err := env.payments.Verify(ctx, out.TxRef)
	require.NoError(t, err)
	assert.ElementsMatch(t, got.ConfirmedIDs, again.ConfirmedIDs)
	assert.Len(t, env.publisher.events, 1)
}

func TestVerifyNeverRevivesCancelled(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	group := allocateGroup(t, env, 1, 2)
	out, err := env.payments.InitializeRooms(ctx, 1, ids(group))
	require.NoError(t, err)
	_, err = env.lifecycle.Cancel(ctx, group[1].ID)
	require.NoError(t, err)

	got, err := env.payments.Verify(ctx, out.TxRef)
	require.NoError(t, err)
	assert.Equal(t, []uint64{group[0].ID}, got.ConfirmedIDs)

	stored, err := env.reservations.Get(ctx, group[1].ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, stored.Status)
}

func TestVerifyRejectedChangesNothing(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	res := allocateGroup(t, env, 1, 1)[0]
	out, err := env.payments.InitializeRooms(ctx, 1, []uint64{res.ID})
	require.NoError(t, err)
	env.gateway.VerifyFunc = func(context.Context, string) (*payment.Verification, error) {
		return nil, &payment.RejectedError{StatusCode: 200, Message: "payment failed"}
	}

	_, err = env.payments.Verify(ctx, out.TxRef)
	require.ErrorIs(t, err, ErrGatewayRejected)
	var rej *payment.RejectedError
	assert.True(t, errors.As(err, &rej))

	stored, err := env.reservations.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, stored.Status)
	assert.Empty(t, env.publisher.events)
}

func TestVerifyMalformedReferenceSkipsGateway(t *testing.T) {
	env := newEnv(t)
	for _, ref := range []string{"", "BOOK-1-1", "TX-abc-1717000000", "TX-1", "TX-MULTI-1_x-1717000000", "EVT-TX-1-17-17"} {
		_, err := env.payments.Verify(context.Background(), ref)
		assert.ErrorIs(t, err, ErrInvalidReference, ref)
	}
	assert.Empty(t, env.gateway.verifyCalls)
}

func TestFreeEventAutoConfirms(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	b, err := env.allocator.BookEvent(ctx, EventRequest{HolderID: 1, EventID: 2, Tier: model.TierRegular, Quantity: 2})
	require.NoError(t, err)

	out, err := env.payments.InitializeEvent(ctx, 1, b.ID)
	require.NoError(t, err)
	assert.True(t, out.Free)
	assert.Equal(t, fmt.Sprintf("EVT-FREE-%d-%d", b.ID, testNow.Unix()), out.TxRef)
	ret, err := url.Parse(out.CheckoutURL)
	require.NoError(t, err)
	assert.Equal(t, "true", ret.Query().Get("free"))
	assert.Equal(t, fmt.Sprint(b.ID), ret.Query().Get("booking_id"))
	assert.Empty(t, env.gateway.initCalls)

	stored, err := env.eventBookings.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, stored.Status)
	assert.True(t, stored.CapacityApplied)

	ev, err := env.catalog.GetEvent(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, ev.RegularRemaining)

	// Verifying the free reference again is local and does not re-apply.
	got, err := env.payments.Verify(ctx, out.TxRef)
	require.NoError(t, err)
	assert.Equal(t, []uint64{b.ID}, got.ConfirmedIDs)
	assert.Empty(t, env.gateway.verifyCalls)
	ev, err = env.catalog.GetEvent(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, ev.RegularRemaining)
	assert.Len(t, env.publisher.events, 1)
}

func TestVerifyRefusesForgedFreeReference(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	b, err := env.allocator.BookEvent(ctx, EventRequest{HolderID: 1, EventID: 1, Tier: model.TierVIP, Quantity: 2})
	require.NoError(t, err)
	require.Equal(t, int64(100000), b.TotalPriceCents)

	forged := payment.EventFreeRef(b.ID, testNow).String()
	got, err := env.payments.Verify(ctx, forged)
	assert.ErrorIs(t, err, ErrInvalidReference)
	assert.Empty(t, got.ConfirmedIDs)
	assert.Empty(t, env.gateway.verifyCalls)

	stored, err := env.eventBookings.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, stored.Status)
	assert.False(t, stored.CapacityApplied)
	ev, err := env.catalog.GetEvent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, ev.VIPRemaining)
	assert.Empty(t, env.publisher.events)

	// A free booking still pending has not been settled by a checkout.
	free, err := env.allocator.BookEvent(ctx, EventRequest{HolderID: 1, EventID: 2, Tier: model.TierRegular, Quantity: 1})
	require.NoError(t, err)
	_, err = env.payments.Verify(ctx, payment.EventFreeRef(free.ID, testNow).String())
	assert.ErrorIs(t, err, ErrInvalidReference)
	stored, err = env.eventBookings.Get(ctx, free.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, stored.Status)
}

func TestPaidEventCheckoutAndVerify(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	b, err := env.allocator.BookEvent(ctx, EventRequest{HolderID: 1, EventID: 1, Tier: model.TierVIP, Quantity: 2})
	require.NoError(t, err)

	_, err = env.payments.InitializeEvent(ctx, 2, b.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	out, err := env.payments.InitializeEvent(ctx, 1, b.ID)
	require.NoError(t, err)
	assert.False(t, out.Free)
	assert.Equal(t, int64(100000), out.AmountCents)
	require.Len(t, env.gateway.initCalls, 1)
	ret, err := url.Parse(env.gateway.initCalls[0].ReturnURL)
	require.NoError(t, err)
	assert.Equal(t, "event", ret.Query().Get("type"))
	assert.Equal(t, out.TxRef, ret.Query().Get("tx_ref"))

	for i := 0; i < 2; i++ {
		got, err := env.payments.Verify(ctx, out.TxRef)
		require.NoError(t, err)
		assert.Equal(t, "event", got.Kind)
		require.NotNil(t, got.EventReceipt)
		assert.Equal(t, "Gala", got.EventReceipt.EventTitle)
		assert.Equal(t, model.StatusConfirmed, got.EventReceipt.Status)
	}

	ev, err := env.catalog.GetEvent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, ev.VIPRemaining)
	assert.Equal(t, 10, ev.RegularRemaining)
	assert.Len(t, env.publisher.events, 1)

	applied, err := env.payments.ReconcileCapacity(ctx, out.TxRef)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestReconcileCapacity(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	b, err := env.allocator.BookEvent(ctx, EventRequest{HolderID: 1, EventID: 1, Tier: model.TierRegular, Quantity: 3})
	require.NoError(t, err)
	ref := payment.EventRef(b.ID, testNow).String()

	// Pending bookings are not applied.
	applied, err := env.payments.ReconcileCapacity(ctx, ref)
	require.NoError(t, err)
	assert.False(t, applied)

	_, err = env.lifecycle.SetEventStatus(ctx, b.ID, model.StatusConfirmed)
	require.NoError(t, err)
	applied, err = env.payments.ReconcileCapacity(ctx, ref)
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = env.payments.ReconcileCapacity(ctx, ref)
	require.NoError(t, err)
	assert.False(t, applied)

	ev, err := env.catalog.GetEvent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 7, ev.RegularRemaining)

	_, err = env.payments.ReconcileCapacity(ctx, payment.RoomRef([]uint64{1}, testNow).String())
	assert.ErrorIs(t, err, ErrInvalidReference)
	_, err = env.payments.ReconcileCapacity(ctx, payment.EventRef(555, testNow).String())
	assert.ErrorIs(t, err, ErrResourceNotFound)
}
