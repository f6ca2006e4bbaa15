package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veecodes14/ride-hailing/internal/domain/ride"
)

func newPendingRide() *ride.Ride {
	return ride.New(uuid.New(), "Central Station", "Harbor View 4")
}

// TestMemoryStore_CreateAndGet tests basic round-trip with version 0
func TestMemoryStore_CreateAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	r := newPendingRide()
	require.NoError(t, s.Create(ctx, r))

	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, ride.StatusPending, got.Status)
	assert.Equal(t, int64(0), got.Version)
}

// TestMemoryStore_GetMissing returns not found
func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ride.ErrRideNotFound)
}

// TestMemoryStore_CompareAndSwap tests version-guarded mutation
func TestMemoryStore_CompareAndSwap(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	r := newPendingRide()
	require.NoError(t, s.Create(ctx, r))

	driverID := uuid.New()
	next, err := ride.Transition(r, ride.StatusPending, ride.StatusAccepted,
		ride.Actor{ID: driverID, Role: ride.RoleDriver}, time.Now().UTC())
	require.NoError(t, err)

	swapped, err := s.CompareAndSwap(ctx, r.ID, 0, next)
	require.NoError(t, err)
	assert.Equal(t, int64(1), swapped.Version)
	assert.Equal(t, ride.StatusAccepted, swapped.Status)

	// The same expected version must never commit twice.
	_, err = s.CompareAndSwap(ctx, r.ID, 0, next)
	assert.ErrorIs(t, err, ride.ErrStaleVersion)

	// Missing rides are distinguished from stale writes.
	_, err = s.CompareAndSwap(ctx, uuid.New(), 0, next)
	assert.ErrorIs(t, err, ride.ErrRideNotFound)
}

// TestMemoryStore_ConcurrentSwapSingleWinner tests that exactly one of many
// concurrent writers against the same version commits
func TestMemoryStore_ConcurrentSwapSingleWinner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	r := newPendingRide()
	require.NoError(t, s.Create(ctx, r))

	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next, err := ride.Transition(r, ride.StatusPending, ride.StatusAccepted,
				ride.Actor{ID: uuid.New(), Role: ride.RoleDriver}, time.Now().UTC())
			if err != nil {
				errs <- err
				return
			}
			_, err = s.CompareAndSwap(ctx, r.ID, 0, next)
			errs <- err
		}()
	}

	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		require.ErrorIs(t, err, ride.ErrStaleVersion)
	}
	assert.Equal(t, 1, wins, "exactly one compare-and-swap must win")

	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusAccepted, got.Status)
	assert.Equal(t, int64(1), got.Version)
}

// TestMemoryStore_ListByStatus filters by status
func TestMemoryStore_ListByStatus(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	pending := newPendingRide()
	require.NoError(t, s.Create(ctx, pending))

	other := newPendingRide()
	require.NoError(t, s.Create(ctx, other))

	next, err := ride.Transition(other, ride.StatusPending, ride.StatusAccepted,
		ride.Actor{ID: uuid.New(), Role: ride.RoleDriver}, time.Now().UTC())
	require.NoError(t, err)
	_, err = s.CompareAndSwap(ctx, other.ID, 0, next)
	require.NoError(t, err)

	got, err := s.ListByStatus(ctx, ride.StatusPending)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, pending.ID, got[0].ID)
}

// TestMemoryStore_SnapshotIsolation verifies callers cannot mutate stored state
func TestMemoryStore_SnapshotIsolation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	r := newPendingRide()
	require.NoError(t, s.Create(ctx, r))

	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	got.Status = ride.StatusCancelled

	fresh, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusPending, fresh.Status)
}
