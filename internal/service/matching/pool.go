package matching

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/veecodes14/ride-hailing/internal/domain/ride"
)

// Summary is the pending-pool view of a ride: enough for a driver to decide
// whether to claim, nothing more.
type Summary struct {
	RideID          uuid.UUID `json:"ride_id"`
	RiderID         uuid.UUID `json:"rider_id"`
	PickupLocation  string    `json:"pickup_location"`
	DropoffLocation string    `json:"dropoff_location"`
	RequestedAt     time.Time `json:"requested_at"`
	MatchAttempts   int       `json:"match_attempts"`
}

// Filter selects summaries from a snapshot. Nil matches everything. The
// locality/eligibility policy is a pluggable predicate.
type Filter func(Summary) bool

// PendingPool is the in-memory index of rides currently pending. It is a
// derived, rebuildable cache owned by the engine; the store stays the source
// of truth, so snapshots may briefly include rides claimed moments earlier
// and callers re-verify on claim.
type PendingPool struct {
	mu    sync.RWMutex
	rides map[uuid.UUID]Summary
}

// NewPendingPool creates an empty pool
func NewPendingPool() *PendingPool {
	return &PendingPool{rides: make(map[uuid.UUID]Summary)}
}

// Add inserts or refreshes a summary
func (p *PendingPool) Add(s Summary) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rides[s.RideID] = s
}

// Remove deletes a summary; removing an absent ride is a no-op
func (p *PendingPool) Remove(rideID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.rides, rideID)
}

// Contains reports membership
func (p *PendingPool) Contains(rideID uuid.UUID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.rides[rideID]
	return ok
}

// Len returns the pool size
func (p *PendingPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.rides)
}

// Snapshot returns an independent slice of matching summaries ordered by
// request time. Safe to iterate while the pool keeps changing.
func (p *PendingPool) Snapshot(filter Filter) []Summary {
	p.mu.RLock()
	out := make([]Summary, 0, len(p.rides))
	for _, s := range p.rides {
		if filter == nil || filter(s) {
			out = append(out, s)
		}
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestedAt.Before(out[j].RequestedAt)
	})
	return out
}

// Reset replaces the pool contents from store snapshots
func (p *PendingPool) Reset(rides []*ride.Ride) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rides = make(map[uuid.UUID]Summary, len(rides))
	for _, r := range rides {
		p.rides[r.ID] = Summarize(r)
	}
}

// Summarize projects a ride snapshot into its pool summary
func Summarize(r *ride.Ride) Summary {
	return Summary{
		RideID:          r.ID,
		RiderID:         r.RiderID,
		PickupLocation:  r.PickupLocation,
		DropoffLocation: r.DropoffLocation,
		RequestedAt:     r.RequestedAt,
		MatchAttempts:   r.MatchAttempts,
	}
}
