package ride

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType identifies a lifecycle event
type EventType string

const (
	EventRideMatched   EventType = "ride_matched"
	EventRideExpired   EventType = "ride_expired"
	EventRideCancelled EventType = "ride_cancelled"
	EventRideCompleted EventType = "ride_completed"
)

// Event is a lifecycle notification emitted by the matching engine.
type Event struct {
	Type       EventType  `json:"type"`
	RideID     uuid.UUID  `json:"ride_id"`
	RiderID    uuid.UUID  `json:"rider_id"`
	DriverID   *uuid.UUID `json:"driver_id,omitempty"`
	Status     Status     `json:"status"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// Notifier delivers lifecycle events to riders and drivers. Delivery is
// fire-and-forget from the engine's perspective; at-least-once is acceptable
// and implementations must never block the caller on delivery confirmation.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// NewEvent builds an event from a ride snapshot.
func NewEvent(t EventType, r *Ride) Event {
	return Event{
		Type:       t,
		RideID:     r.ID,
		RiderID:    r.RiderID,
		DriverID:   r.DriverID,
		Status:     r.Status,
		OccurredAt: time.Now().UTC(),
	}
}
