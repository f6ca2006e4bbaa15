package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/veecodes14/ride-hailing/internal/domain/ride"
	"github.com/veecodes14/ride-hailing/internal/service/timeout"
	"github.com/veecodes14/ride-hailing/pkg/logger"
)

// Config holds matching configuration
type Config struct {
	ClaimTimeout      time.Duration // deadline for a pending ride to be claimed
	InProgressTimeout time.Duration // watchdog for rides stuck in progress
	RetryBudget       int           // re-queues before a pending ride is cancelled
}

// Scheduler is the deadline service the engine registers timeouts with.
type Scheduler interface {
	Schedule(rideID uuid.UUID, kind timeout.Kind, deadline time.Time)
	Cancel(rideID uuid.UUID, kind timeout.Kind)
}

// Engine is the matching and lifecycle coordination core. It is the only
// component that moves a ride out of pending. Races between concurrent
// claims, and between claims and expiry, are resolved by the store's
// compare-and-swap, never by an in-process lock held across I/O.
type Engine struct {
	store    ride.Store
	pool     *PendingPool
	sched    Scheduler
	notifier ride.Notifier
	logger   *logger.Logger
	cfg      Config
}

// NewEngine creates a matching engine
func NewEngine(store ride.Store, sched Scheduler, notifier ride.Notifier, log *logger.Logger, cfg Config) *Engine {
	return &Engine{
		store:    store,
		pool:     NewPendingPool(),
		sched:    sched,
		notifier: notifier,
		logger:   log,
		cfg:      cfg,
	}
}

// Rebuild reloads the pending pool from the store and re-arms claim
// timeouts. Called on startup; the pool is a derived cache and this is its
// recovery path.
func (e *Engine) Rebuild(ctx context.Context) error {
	pending, err := e.store.ListByStatus(ctx, ride.StatusPending)
	if err != nil {
		return fmt.Errorf("rebuild pending pool: %w", err)
	}

	e.pool.Reset(pending)
	deadline := time.Now().Add(e.cfg.ClaimTimeout)
	for _, r := range pending {
		e.sched.Schedule(r.ID, timeout.KindClaim, deadline)
	}

	e.logger.Info("Pending pool rebuilt", logger.Int("rides", len(pending)))
	return nil
}

// Submit creates a pending ride for a rider request, indexes it for
// matching and arms its claim timeout. Returns the persisted snapshot.
func (e *Engine) Submit(ctx context.Context, riderID uuid.UUID, pickup, dropoff string) (*ride.Ride, error) {
	return e.SubmitWithID(ctx, uuid.New(), riderID, pickup, dropoff)
}

// SubmitWithID is Submit with a caller-chosen ride ID, so an idempotency key
// can be bound to the ride before it exists.
func (e *Engine) SubmitWithID(ctx context.Context, id, riderID uuid.UUID, pickup, dropoff string) (*ride.Ride, error) {
	if pickup == "" || dropoff == "" {
		return nil, ride.ErrInvalidLocation
	}

	r := ride.New(riderID, pickup, dropoff)
	r.ID = id
	if err := e.store.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("create ride: %w", err)
	}

	e.pool.Add(Summarize(r))
	e.sched.Schedule(r.ID, timeout.KindClaim, time.Now().Add(e.cfg.ClaimTimeout))

	e.logger.Info("Ride submitted",
		logger.String("ride_id", r.ID.String()),
		logger.String("rider_id", riderID.String()),
	)
	return r, nil
}

// ListPending returns a snapshot of pending ride summaries matching the
// filter. The snapshot tolerates concurrent modification; a listed ride may
// already be claimed, which the claim path re-verifies.
func (e *Engine) ListPending(filter Filter) []Summary {
	return e.pool.Snapshot(filter)
}

// Claim attempts to assign the driver to a pending ride. At most one claim
// succeeds per ride: the transition is computed against the caller's read
// and committed with a compare-and-swap on the version counter, so whichever
// write lands first at the store wins. Losers get ErrAlreadyClaimed, or
// ErrStaleVersion when the ride is still pending (a re-queue bumped the
// version) and the claim is worth retrying.
func (e *Engine) Claim(ctx context.Context, rideID, driverID uuid.UUID) (*ride.Ride, error) {
	cur, err := e.store.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if cur.Status != ride.StatusPending {
		return nil, claimConflict(cur.Status)
	}

	actor := ride.Actor{ID: driverID, Role: ride.RoleDriver}
	next, err := ride.Transition(cur, ride.StatusPending, ride.StatusAccepted, actor, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	swapped, err := e.store.CompareAndSwap(ctx, rideID, cur.Version, next)
	if errors.Is(err, ride.ErrStaleVersion) {
		fresh, getErr := e.store.Get(ctx, rideID)
		if getErr != nil {
			return nil, getErr
		}
		if fresh.Status == ride.StatusPending {
			// A re-queue bumped the version; the ride is still up for grabs.
			return nil, ride.ErrStaleVersion
		}
		e.logger.Debug("Claim lost race",
			logger.String("ride_id", rideID.String()),
			logger.String("driver_id", driverID.String()),
			logger.String("status", string(fresh.Status)),
		)
		return nil, claimConflict(fresh.Status)
	}
	if err != nil {
		return nil, err
	}

	// The write is authoritative once committed; everything below is
	// best-effort bookkeeping that a fresh process can rebuild.
	e.pool.Remove(rideID)
	e.sched.Cancel(rideID, timeout.KindClaim)
	e.notifier.Notify(ctx, ride.NewEvent(ride.EventRideMatched, swapped))

	e.logger.Info("Ride matched",
		logger.String("ride_id", rideID.String()),
		logger.String("driver_id", driverID.String()),
		logger.Int64("version", swapped.Version),
	)
	return swapped, nil
}

// Start moves an accepted ride to in_progress. Only the assigned driver may
// start; this is also the point where the in-progress watchdog is armed, not
// at claim time.
func (e *Engine) Start(ctx context.Context, rideID, driverID uuid.UUID) (*ride.Ride, error) {
	actor := ride.Actor{ID: driverID, Role: ride.RoleDriver}
	swapped, err := e.transition(ctx, rideID, ride.StatusAccepted, ride.StatusInProgress, actor)
	if err != nil {
		return nil, err
	}

	e.sched.Schedule(rideID, timeout.KindInProgress, time.Now().Add(e.cfg.InProgressTimeout))

	e.logger.Info("Ride started",
		logger.String("ride_id", rideID.String()),
		logger.String("driver_id", driverID.String()),
	)
	return swapped, nil
}

// Complete moves an in_progress ride to completed and emits RideCompleted.
func (e *Engine) Complete(ctx context.Context, rideID, driverID uuid.UUID) (*ride.Ride, error) {
	actor := ride.Actor{ID: driverID, Role: ride.RoleDriver}
	swapped, err := e.transition(ctx, rideID, ride.StatusInProgress, ride.StatusCompleted, actor)
	if err != nil {
		return nil, err
	}

	e.sched.Cancel(rideID, timeout.KindInProgress)
	e.notifier.Notify(ctx, ride.NewEvent(ride.EventRideCompleted, swapped))

	e.logger.Info("Ride completed", logger.String("ride_id", rideID.String()))
	return swapped, nil
}

// Cancel lets the owning rider abandon a pending or accepted ride.
func (e *Engine) Cancel(ctx context.Context, rideID uuid.UUID, actor ride.Actor) (*ride.Ride, error) {
	cur, err := e.store.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}

	next, err := ride.Transition(cur, cur.Status, ride.StatusCancelled, actor, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	swapped, err := e.store.CompareAndSwap(ctx, rideID, cur.Version, next)
	if err != nil {
		return nil, err
	}

	e.pool.Remove(rideID)
	e.sched.Cancel(rideID, timeout.KindClaim)
	e.sched.Cancel(rideID, timeout.KindInProgress)

	// The cancelled snapshot no longer carries the driver; notify the one
	// who held the ride.
	ev := ride.NewEvent(ride.EventRideCancelled, swapped)
	ev.DriverID = cur.DriverID
	e.notifier.Notify(ctx, ev)

	e.logger.Info("Ride cancelled",
		logger.String("ride_id", rideID.String()),
		logger.String("actor_role", string(actor.Role)),
	)
	return swapped, nil
}

// Expire handles a fired claim timeout. Timeouts are advisory: the ride is
// re-read and anything no longer pending is ignored. Within the retry budget
// the ride is re-queued with a fresh deadline; beyond it, the system cancels
// the ride and RideCancelled is emitted exactly once.
func (e *Engine) Expire(ctx context.Context, rideID uuid.UUID) error {
	cur, err := e.store.Get(ctx, rideID)
	if errors.Is(err, ride.ErrRideNotFound) {
		e.logger.Warn("Claim timeout for unknown ride", logger.String("ride_id", rideID.String()))
		return nil
	}
	if err != nil {
		return err
	}
	if cur.Status != ride.StatusPending {
		e.logger.Debug("Claim timeout after transition, ignoring",
			logger.String("ride_id", rideID.String()),
			logger.String("status", string(cur.Status)),
		)
		return nil
	}

	if cur.MatchAttempts < e.cfg.RetryBudget {
		return e.requeue(ctx, cur)
	}
	return e.expireCancel(ctx, cur)
}

func (e *Engine) requeue(ctx context.Context, cur *ride.Ride) error {
	next := cur.Clone()
	next.MatchAttempts++

	swapped, err := e.store.CompareAndSwap(ctx, cur.ID, cur.Version, next)
	if errors.Is(err, ride.ErrStaleVersion) {
		// A claim landed between the read and the swap; it owns the ride now.
		return nil
	}
	if err != nil {
		return err
	}

	e.pool.Add(Summarize(swapped))
	e.sched.Schedule(cur.ID, timeout.KindClaim, time.Now().Add(e.cfg.ClaimTimeout))
	e.notifier.Notify(ctx, ride.NewEvent(ride.EventRideExpired, swapped))

	e.logger.Info("Ride re-queued after claim timeout",
		logger.String("ride_id", cur.ID.String()),
		logger.Int("attempt", swapped.MatchAttempts),
		logger.Int("budget", e.cfg.RetryBudget),
	)
	return nil
}

func (e *Engine) expireCancel(ctx context.Context, cur *ride.Ride) error {
	next, err := ride.Transition(cur, ride.StatusPending, ride.StatusCancelled, ride.SystemActor, time.Now().UTC())
	if err != nil {
		return err
	}

	swapped, err := e.store.CompareAndSwap(ctx, cur.ID, cur.Version, next)
	if errors.Is(err, ride.ErrStaleVersion) {
		return nil
	}
	if err != nil {
		return err
	}

	e.pool.Remove(cur.ID)
	e.notifier.Notify(ctx, ride.NewEvent(ride.EventRideCancelled, swapped))

	e.logger.Info("Ride cancelled after retry budget exhausted",
		logger.String("ride_id", cur.ID.String()),
		logger.Int("attempts", cur.MatchAttempts),
	)
	return nil
}

// HandleTimeout is the scheduler callback.
func (e *Engine) HandleTimeout(ctx context.Context, rideID uuid.UUID, kind timeout.Kind) {
	switch kind {
	case timeout.KindClaim:
		if err := e.Expire(ctx, rideID); err != nil {
			e.logger.Error("Expire failed",
				logger.String("ride_id", rideID.String()),
				logger.Err(err),
			)
		}
	case timeout.KindInProgress:
		e.checkStuck(ctx, rideID)
	}
}

// checkStuck handles an in-progress watchdog firing. There is no legal edge
// out of in_progress except completed, so a stuck ride is surfaced to
// operators rather than force-cancelled.
func (e *Engine) checkStuck(ctx context.Context, rideID uuid.UUID) {
	cur, err := e.store.Get(ctx, rideID)
	if err != nil {
		e.logger.Warn("In-progress timeout lookup failed",
			logger.String("ride_id", rideID.String()),
			logger.Err(err),
		)
		return
	}
	if cur.Status != ride.StatusInProgress {
		return
	}
	e.logger.Warn("Ride still in progress past watchdog deadline",
		logger.String("ride_id", rideID.String()),
		logger.String("rider_id", cur.RiderID.String()),
		logger.Duration("elapsed", time.Since(cur.StatusChangedAt)),
	)
}

// transition runs the read-validate-swap cycle shared by Start and Complete.
func (e *Engine) transition(ctx context.Context, rideID uuid.UUID, from, to ride.Status, actor ride.Actor) (*ride.Ride, error) {
	cur, err := e.store.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}

	next, err := ride.Transition(cur, from, to, actor, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	return e.store.CompareAndSwap(ctx, rideID, cur.Version, next)
}

func claimConflict(status ride.Status) error {
	if status == ride.StatusCancelled {
		return ride.ErrInvalidTransition
	}
	return ride.ErrAlreadyClaimed
}
