package dto

import (
	"time"

	"github.com/veecodes14/ride-hailing/internal/domain/ride"
	"github.com/veecodes14/ride-hailing/internal/service/matching"
)

// RequestRideRequest is the payload for POST /v1/rides
type RequestRideRequest struct {
	PickupLocation  string `json:"pickup_location" binding:"required"`
	DropoffLocation string `json:"dropoff_location" binding:"required"`
}

// RideResponse is the ride representation returned by the API
type RideResponse struct {
	ID              string     `json:"id"`
	RiderID         string     `json:"rider_id"`
	DriverID        *string    `json:"driver_id,omitempty"`
	PickupLocation  string     `json:"pickup_location"`
	DropoffLocation string     `json:"dropoff_location"`
	Status          string     `json:"status"`
	MatchAttempts   int        `json:"match_attempts"`
	Version         int64      `json:"version"`
	RequestedAt     time.Time  `json:"requested_at"`
	StatusChangedAt time.Time  `json:"status_changed_at"`
	AcceptedAt      *time.Time `json:"accepted_at,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
}

// FromRide maps a domain ride to its API representation
func FromRide(r *ride.Ride) RideResponse {
	resp := RideResponse{
		ID:              r.ID.String(),
		RiderID:         r.RiderID.String(),
		PickupLocation:  r.PickupLocation,
		DropoffLocation: r.DropoffLocation,
		Status:          string(r.Status),
		MatchAttempts:   r.MatchAttempts,
		Version:         r.Version,
		RequestedAt:     r.RequestedAt,
		StatusChangedAt: r.StatusChangedAt,
		AcceptedAt:      r.AcceptedAt,
		StartedAt:       r.StartedAt,
		CompletedAt:     r.CompletedAt,
		CancelledAt:     r.CancelledAt,
	}
	if r.DriverID != nil {
		id := r.DriverID.String()
		resp.DriverID = &id
	}
	return resp
}

// PendingRideResponse is a pending pool entry as shown to drivers
type PendingRideResponse struct {
	RideID          string    `json:"ride_id"`
	PickupLocation  string    `json:"pickup_location"`
	DropoffLocation string    `json:"dropoff_location"`
	RequestedAt     time.Time `json:"requested_at"`
	MatchAttempts   int       `json:"match_attempts"`
}

// FromSummary maps a pending pool summary to its API representation.
// The rider's identity is not exposed to browsing drivers.
func FromSummary(s matching.Summary) PendingRideResponse {
	return PendingRideResponse{
		RideID:          s.RideID.String(),
		PickupLocation:  s.PickupLocation,
		DropoffLocation: s.DropoffLocation,
		RequestedAt:     s.RequestedAt,
		MatchAttempts:   s.MatchAttempts,
	}
}

// ErrorResponse is the error envelope returned by the API
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
