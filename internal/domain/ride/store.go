package ride

import (
	"context"

	"github.com/google/uuid"
)

// Store is the persistence contract for rides.
//
// All mutations after creation go through CompareAndSwap; there is no
// unconditional write. The swap succeeds only when the stored version equals
// expectedVersion, which is what makes at-most-one-claim hold even when the
// store is remote and shared.
type Store interface {
	// Create persists a new ride at version 0.
	Create(ctx context.Context, r *Ride) error

	// Get returns the current snapshot, including its version.
	Get(ctx context.Context, id uuid.UUID) (*Ride, error)

	// CompareAndSwap persists updated iff the stored version equals
	// expectedVersion, committing it at expectedVersion+1. Returns
	// ErrStaleVersion when another write landed first, ErrRideNotFound when
	// the ride does not exist.
	CompareAndSwap(ctx context.Context, id uuid.UUID, expectedVersion int64, updated *Ride) (*Ride, error)

	// ListByStatus returns all rides currently in the given status. Used to
	// rebuild the pending pool, which is a derived cache of this store.
	ListByStatus(ctx context.Context, status Status) ([]*Ride, error)
}
