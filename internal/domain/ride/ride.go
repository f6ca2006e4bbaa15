package ride

import (
	"time"

	"github.com/google/uuid"
)

// Status represents ride status
type Status string

const (
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Role identifies the kind of actor performing a transition
type Role string

const (
	RoleRider  Role = "rider"
	RoleDriver Role = "driver"
	RoleSystem Role = "system"
)

// Actor is the authenticated identity performing an operation. The identity
// provider is external; the core trusts the (ID, Role) pair it is handed.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// SystemActor is used for timeout-driven transitions.
var SystemActor = Actor{Role: RoleSystem}

// Ride represents a ride request and its lifecycle state.
//
// DriverID is set if and only if the status is accepted, in_progress or
// completed. Version increases by one on every committed mutation; no two
// transitions ever commit against the same expected version.
type Ride struct {
	ID              uuid.UUID  `json:"id"`
	RiderID         uuid.UUID  `json:"rider_id"`
	DriverID        *uuid.UUID `json:"driver_id,omitempty"`
	PickupLocation  string     `json:"pickup_location"`
	DropoffLocation string     `json:"dropoff_location"`
	Status          Status     `json:"status"`
	MatchAttempts   int        `json:"match_attempts"`
	Version         int64      `json:"version"`
	RequestedAt     time.Time  `json:"requested_at"`
	StatusChangedAt time.Time  `json:"status_changed_at"`
	AcceptedAt      *time.Time `json:"accepted_at,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
}

// New creates a pending ride for a rider request.
func New(riderID uuid.UUID, pickup, dropoff string) *Ride {
	now := time.Now().UTC()
	return &Ride{
		ID:              uuid.New(),
		RiderID:         riderID,
		PickupLocation:  pickup,
		DropoffLocation: dropoff,
		Status:          StatusPending,
		RequestedAt:     now,
		StatusChangedAt: now,
	}
}

// IsValid validates the status value
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
// Terminal rides are retained for history, never deleted.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsValid validates the role value
func (r Role) IsValid() bool {
	switch r {
	case RoleRider, RoleDriver, RoleSystem:
		return true
	}
	return false
}

// Clone returns an independent copy of the ride.
func (r *Ride) Clone() *Ride {
	c := *r
	if r.DriverID != nil {
		id := *r.DriverID
		c.DriverID = &id
	}
	c.AcceptedAt = cloneTime(r.AcceptedAt)
	c.StartedAt = cloneTime(r.StartedAt)
	c.CompletedAt = cloneTime(r.CompletedAt)
	c.CancelledAt = cloneTime(r.CancelledAt)
	return &c
}

// HasDriver reports whether a driver is assigned.
func (r *Ride) HasDriver() bool {
	return r.DriverID != nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
