package ride

import "errors"

var (
	ErrRideNotFound      = errors.New("ride not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnauthorized      = errors.New("actor not permitted for this transition")
	ErrAlreadyClaimed    = errors.New("ride already claimed by another driver")
	ErrStaleVersion      = errors.New("stale ride version")
	ErrInvalidLocation   = errors.New("pickup and dropoff locations are required")
)
