package ride

import "time"

// edge is a directed transition between two statuses.
type edge struct {
	from Status
	to   Status
}

// rule holds both the legality and the authorization of an edge. Keeping the
// legal-transition table and the authorization table in one structure means
// there is a single source of truth for who may move a ride where.
type rule struct {
	roles          map[Role]bool
	assignedDriver bool // actor must be the ride's assigned driver
	owningRider    bool // a rider actor must own the ride
}

var transitions = map[edge]rule{
	{StatusPending, StatusAccepted}:     {roles: allow(RoleDriver)},
	{StatusAccepted, StatusInProgress}:  {roles: allow(RoleDriver), assignedDriver: true},
	{StatusInProgress, StatusCompleted}: {roles: allow(RoleDriver), assignedDriver: true},
	{StatusPending, StatusCancelled}:    {roles: allow(RoleRider, RoleSystem), owningRider: true},
	{StatusAccepted, StatusCancelled}:   {roles: allow(RoleRider, RoleSystem), owningRider: true},
}

func allow(roles ...Role) map[Role]bool {
	m := make(map[Role]bool, len(roles))
	for _, r := range roles {
		m[r] = true
	}
	return m
}

// Transition validates and computes a status change for a single ride.
//
// current is the caller's snapshot, fromExpected the status the caller
// believes is live. The returned ride is a new snapshot with status,
// timestamps and (for pending->accepted) the driver id set; persisting it is
// the caller's job, guarded by the store's compare-and-swap.
func Transition(current *Ride, fromExpected, to Status, actor Actor, now time.Time) (*Ride, error) {
	r, ok := transitions[edge{fromExpected, to}]
	if !ok {
		return nil, ErrInvalidTransition
	}
	// Stale view: the ride moved on since the caller last read it.
	if current.Status != fromExpected {
		return nil, ErrInvalidTransition
	}
	if !r.roles[actor.Role] {
		return nil, ErrUnauthorized
	}
	if r.assignedDriver && actor.Role == RoleDriver {
		if current.DriverID == nil || *current.DriverID != actor.ID {
			return nil, ErrUnauthorized
		}
	}
	if r.owningRider && actor.Role == RoleRider && actor.ID != current.RiderID {
		return nil, ErrUnauthorized
	}
	// A rider cannot drive their own request.
	if to == StatusAccepted && actor.ID == current.RiderID {
		return nil, ErrUnauthorized
	}

	next := current.Clone()
	next.Status = to
	next.StatusChangedAt = now

	switch to {
	case StatusAccepted:
		driverID := actor.ID
		next.DriverID = &driverID
		next.AcceptedAt = &now
	case StatusInProgress:
		next.StartedAt = &now
	case StatusCompleted:
		next.CompletedAt = &now
	case StatusCancelled:
		next.CancelledAt = &now
		// Driver id is set iff the ride is accepted, in_progress or completed.
		next.DriverID = nil
	}
	return next, nil
}
