package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/hotel-reservation/internal/model"
)

func TestAllocateGroup(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	iv := mustInterval(t, "2024-06-01", "2024-06-04")

	got, err := env.allocator.AllocateGroup(ctx, GroupRequest{HolderID: 1, RoomTypeID: 1, Interval: iv, Count: 3})
	require.NoError(t, err)
	require.Len(t, got, 3)

	var rooms []uint64
	for _, r := range got {
		require.NotNil(t, r.RoomID)
		rooms = append(rooms, *r.RoomID)
		assert.Equal(t, model.StatusPending, r.Status)
		assert.Equal(t, 1, r.Quantity)
		assert.Equal(t, 3, r.Nights)
		assert.Equal(t, int64(45000), r.FinalPriceCents)
		assert.True(t, r.CreatedAt.Equal(got[0].CreatedAt))
	}
	assert.Equal(t, []uint64{1, 2, 3}, rooms)

	groups, err := env.lifecycle.ListGroups(ctx, 1)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.ElementsMatch(t, ids(got), groups[0].ReservationIDs)
	assert.Equal(t, int64(135000), groups[0].FinalPriceCents)
}

func TestAllocateGroupOverRequestWritesNothing(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	iv := mustInterval(t, "2024-06-01", "2024-06-04")

	_, err := env.allocator.AllocateGroup(ctx, GroupRequest{HolderID: 1, RoomTypeID: 2, Interval: iv, Count: 4})
	require.ErrorIs(t, err, ErrInsufficientCapacity)
	var capErr *CapacityError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, 3, capErr.Available)
	assert.Equal(t, 4, capErr.Requested)
	assert.Equal(t, 0, env.countRows(t, "bookings"))
	assert.Zero(t, env.cache.invalidated[2])
}

func TestAllocateGroupSkipsHeldAndMaintenanceRooms(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	iv := mustInterval(t, "2024-06-01", "2024-06-04")

	_, err := env.allocator.AllocateUnit(ctx, UnitRequest{HolderID: 2, RoomID: 9, Interval: mustInterval(t, "2024-06-03", "2024-06-05")})
	require.NoError(t, err)

	_, err = env.allocator.AllocateGroup(ctx, GroupRequest{HolderID: 1, RoomTypeID: 4, Interval: iv, Count: 2})
	var capErr *CapacityError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, 1, capErr.Available)

	got, err := env.allocator.AllocateGroup(ctx, GroupRequest{HolderID: 1, RoomTypeID: 4, Interval: iv, Count: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(10), *got[0].RoomID)
}

func TestAllocateGroupValidation(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	iv := mustInterval(t, "2024-06-01", "2024-06-02")

	_, err := env.allocator.AllocateGroup(ctx, GroupRequest{HolderID: 1, RoomTypeID: 1, Interval: iv, Count: 0})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = env.allocator.AllocateGroup(ctx, GroupRequest{HolderID: 1, RoomTypeID: 77, Interval: iv, Count: 1})
	assert.ErrorIs(t, err, ErrResourceNotFound)

	_, err = env.allocator.AllocateGroup(ctx, GroupRequest{HolderID: 1, RoomTypeID: 3, Interval: iv, Count: 1})
	assert.ErrorIs(t, err, ErrInsufficientCapacity)
}

func TestAllocateUnit(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	res, err := env.allocator.AllocateUnit(ctx, UnitRequest{HolderID: 1, RoomID: 6, Interval: mustInterval(t, "2024-06-01", "2024-06-03")})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.RoomTypeID)
	assert.Equal(t, int64(60000), res.BasePriceCents)
	assert.Equal(t, testNow, res.CreatedAt)

	stored, err := env.reservations.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.FinalPriceCents, stored.FinalPriceCents)
	assert.True(t, stored.CreatedAt.Equal(testNow))

	tests := []struct {
		name    string
		room    uint64
		in, out string
		wantErr error
	}{
		{"overlapping stay", 6, "2024-06-02", "2024-06-05", ErrInsufficientCapacity},
		{"enclosing stay", 6, "2024-05-30", "2024-06-10", ErrInsufficientCapacity},
		{"check-in on previous check-out", 6, "2024-06-03", "2024-06-04", nil},
		{"check-out on previous check-in", 6, "2024-05-30", "2024-06-01", nil},
		{"maintenance room", 11, "2024-06-01", "2024-06-02", ErrInsufficientCapacity},
		{"unknown room", 404, "2024-06-01", "2024-06-02", ErrResourceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.allocator.AllocateUnit(ctx, UnitRequest{HolderID: 2, RoomID: tt.room, Interval: mustInterval(t, tt.in, tt.out)})
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAllocateUnitCancelledDoesNotBlock(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	iv := mustInterval(t, "2024-06-01", "2024-06-03")

	res, err := env.allocator.AllocateUnit(ctx, UnitRequest{HolderID: 1, RoomID: 1, Interval: iv})
	require.NoError(t, err)
	_, err = env.lifecycle.Cancel(ctx, res.ID)
	require.NoError(t, err)

	_, err = env.allocator.AllocateUnit(ctx, UnitRequest{HolderID: 2, RoomID: 1, Interval: iv})
	assert.NoError(t, err)
}

func TestPricingRoundTrip(t *testing.T) {
	tests := []struct {
		rate      float64
		wantFinal int64
	}{
		{0, 45000},
		{10, 40500},
		{12.5, 39375},
		{100, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("discount %v", tt.rate), func(t *testing.T) {
			env := newEnv(t)
			ctx := context.Background()
			res, err := env.allocator.AllocateUnit(ctx, UnitRequest{
				HolderID:     1,
				RoomID:       1,
				Interval:     mustInterval(t, "2024-06-01", "2024-06-04"),
				DiscountRate: tt.rate,
			})
			require.NoError(t, err)

			stored, err := env.reservations.Get(ctx, res.ID)
			require.NoError(t, err)
			assert.Equal(t, 3, stored.Nights)
			assert.Equal(t, int64(45000), stored.BasePriceCents)
			assert.Equal(t, tt.rate, stored.DiscountRate)
			assert.Equal(t, tt.wantFinal, stored.FinalPriceCents)
		})
	}
}

// Concurrent allocations over random stays must never double-book a room
// nor exceed the in-service room count on any night.
func TestConcurrentAllocationsNeverOversell(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	base := mustDate(t, "2024-06-01")
	rng := rand.New(rand.NewSource(7))

	type job struct {
		group bool
		room  uint64
		count int
		iv    model.Interval
	}
	jobs := make([]job, 40)
	for i := range jobs {
		start := rng.Intn(10)
		iv, err := model.NewInterval(base.AddDays(start), base.AddDays(start+1+rng.Intn(4)))
		require.NoError(t, err)
		jobs[i] = job{group: rng.Intn(2) == 0, room: uint64(1 + rng.Intn(5)), count: 1 + rng.Intn(3), iv: iv}
	}

	var wg sync.WaitGroup
	for i, j := range jobs {
		wg.Add(1)
		go func(holder uint64, j job) {
			defer wg.Done()
			var err error
			if j.group {
				_, err = env.allocator.AllocateGroup(ctx, GroupRequest{HolderID: holder, RoomTypeID: 1, Interval: j.iv, Count: j.count})
			} else {
				_, err = env.allocator.AllocateUnit(ctx, UnitRequest{HolderID: holder, RoomID: j.room, Interval: j.iv})
			}
			if err != nil {
				assert.ErrorIs(t, err, ErrInsufficientCapacity)
			}
		}(uint64(i%2+1), j)
	}
	wg.Wait()

	held, err := env.reservations.ListHolding(ctx, 1, base, base.AddDays(20))
	require.NoError(t, err)
	require.NotEmpty(t, held)
	for day := base; day.Before(base.AddDays(20)); day = day.AddDays(1) {
		perRoom := map[uint64]int{}
		total := 0
		for _, r := range held {
			if r.Interval().Covers(day) {
				perRoom[*r.RoomID]++
				total += r.Quantity
			}
		}
		assert.LessOrEqual(t, total, 5, "night %s", day)
		for room, n := range perRoom {
			assert.Equal(t, 1, n, "room %d on %s", room, day)
		}
	}
}

func TestBookEvent(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	b, err := env.allocator.BookEvent(ctx, EventRequest{HolderID: 1, EventID: 1, Tier: model.TierVIP, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(100000), b.TotalPriceCents)
	assert.Equal(t, model.StatusPending, b.Status)

	// Pending tickets count against capacity.
	_, err = env.allocator.BookEvent(ctx, EventRequest{HolderID: 2, EventID: 1, Tier: model.TierVIP, Quantity: 1})
	var capErr *CapacityError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, 0, capErr.Available)
	assert.Equal(t, 1, capErr.Requested)

	_, err = env.allocator.BookEvent(ctx, EventRequest{HolderID: 2, EventID: 1, Tier: model.TierRegular, Quantity: 11})
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, 10, capErr.Available)

	_, err = env.allocator.BookEvent(ctx, EventRequest{HolderID: 2, EventID: 1, Tier: model.TierRegular, Quantity: 0})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = env.allocator.BookEvent(ctx, EventRequest{HolderID: 2, EventID: 9, Tier: model.TierRegular, Quantity: 1})
	assert.ErrorIs(t, err, ErrResourceNotFound)
}

func TestWithRetry(t *testing.T) {
	deadlock := &mysql.MySQLError{Number: 1213, Message: "Deadlock found"}
	ctx := context.Background()

	calls := 0
	err := withRetry(ctx, zap.NewNop(), "test", func(context.Context) error {
		calls++
		if calls == 1 {
			return deadlock
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	err = withRetry(ctx, zap.NewNop(), "test", func(context.Context) error {
		calls++
		return deadlock
	})
	assert.ErrorIs(t, err, ErrConcurrentConflict)
	assert.Equal(t, 2, calls)

	calls = 0
	err = withRetry(ctx, zap.NewNop(), "test", func(context.Context) error {
		calls++
		return insufficient(0, 1)
	})
	assert.ErrorIs(t, err, ErrInsufficientCapacity)
	assert.Equal(t, 1, calls)
}
