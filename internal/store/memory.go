package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/veecodes14/ride-hailing/internal/domain/ride"
)

// MemoryStore is an in-memory ride.Store with the same compare-and-swap
// semantics as the Postgres implementation. Used for local development
// (DB_DRIVER=memory) and throughout the test suite.
type MemoryStore struct {
	mu    sync.RWMutex
	rides map[uuid.UUID]*ride.Ride
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rides: make(map[uuid.UUID]*ride.Ride),
	}
}

// Create persists a new ride at version 0
func (s *MemoryStore) Create(ctx context.Context, r *ride.Ride) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rides[r.ID]; ok {
		return ride.ErrStaleVersion
	}
	r.Version = 0
	s.rides[r.ID] = r.Clone()
	return nil
}

// Get returns an independent snapshot of the ride
func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*ride.Ride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rides[id]
	if !ok {
		return nil, ride.ErrRideNotFound
	}
	return r.Clone(), nil
}

// CompareAndSwap commits updated iff the stored version matches expectedVersion
func (s *MemoryStore) CompareAndSwap(ctx context.Context, id uuid.UUID, expectedVersion int64, updated *ride.Ride) (*ride.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.rides[id]
	if !ok {
		return nil, ride.ErrRideNotFound
	}
	if current.Version != expectedVersion {
		return nil, ride.ErrStaleVersion
	}

	next := updated.Clone()
	next.ID = id
	next.Version = expectedVersion + 1
	s.rides[id] = next
	return next.Clone(), nil
}

// ListByStatus returns snapshots of all rides in the given status
func (s *MemoryStore) ListByStatus(ctx context.Context, status ride.Status) ([]*ride.Ride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ride.Ride
	for _, r := range s.rides {
		if r.Status == status {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}
