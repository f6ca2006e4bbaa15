package matching

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veecodes14/ride-hailing/internal/domain/ride"
	"github.com/veecodes14/ride-hailing/internal/service/timeout"
	"github.com/veecodes14/ride-hailing/internal/store"
	"github.com/veecodes14/ride-hailing/pkg/logger"
)

type schedKey struct {
	rideID uuid.UUID
	kind   timeout.Kind
}

// fakeScheduler records schedule/cancel calls so tests can drive expiry
// deterministically by calling Expire themselves.
type fakeScheduler struct {
	mu        sync.Mutex
	scheduled map[schedKey]time.Time
	cancelled []schedKey
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{scheduled: make(map[schedKey]time.Time)}
}

func (f *fakeScheduler) Schedule(rideID uuid.UUID, kind timeout.Kind, deadline time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled[schedKey{rideID, kind}] = deadline
}

func (f *fakeScheduler) Cancel(rideID uuid.UUID, kind timeout.Kind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := schedKey{rideID, kind}
	delete(f.scheduled, key)
	f.cancelled = append(f.cancelled, key)
}

func (f *fakeScheduler) has(rideID uuid.UUID, kind timeout.Kind) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.scheduled[schedKey{rideID, kind}]
	return ok
}

// recordingNotifier captures emitted lifecycle events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []ride.Event
}

func (n *recordingNotifier) Notify(ctx context.Context, ev ride.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) byType(t ride.EventType) []ride.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []ride.Event
	for _, ev := range n.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "console"})
	require.NoError(t, err)
	return log
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *fakeScheduler, *recordingNotifier) {
	t.Helper()
	if cfg.ClaimTimeout == 0 {
		cfg.ClaimTimeout = 30 * time.Second
	}
	if cfg.InProgressTimeout == 0 {
		cfg.InProgressTimeout = time.Hour
	}
	sched := newFakeScheduler()
	notifier := &recordingNotifier{}
	e := NewEngine(store.NewMemoryStore(), sched, notifier, testLogger(t), cfg)
	return e, sched, notifier
}

// TestSubmitThenListPending tests the submit/list round trip
func TestSubmitThenListPending(t *testing.T) {
	e, sched, _ := newTestEngine(t, Config{})
	ctx := context.Background()

	riderID := uuid.New()
	r, err := e.Submit(ctx, riderID, "Pier 9", "Old Town Square")
	require.NoError(t, err)
	assert.Equal(t, ride.StatusPending, r.Status)

	pending := e.ListPending(nil)
	require.Len(t, pending, 1)
	assert.Equal(t, r.ID, pending[0].RideID)
	assert.True(t, sched.has(r.ID, timeout.KindClaim), "claim timeout must be armed on submit")
}

// TestSubmit_RejectsMissingLocations validates input before touching the store
func TestSubmit_RejectsMissingLocations(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{})

	_, err := e.Submit(context.Background(), uuid.New(), "", "Old Town Square")
	assert.ErrorIs(t, err, ride.ErrInvalidLocation)

	_, err = e.Submit(context.Background(), uuid.New(), "Pier 9", "")
	assert.ErrorIs(t, err, ride.ErrInvalidLocation)

	assert.Empty(t, e.ListPending(nil))
}

// TestListPending_Filter applies the pluggable predicate
func TestListPending_Filter(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{})
	ctx := context.Background()

	riderA := uuid.New()
	riderB := uuid.New()
	_, err := e.Submit(ctx, riderA, "North Gate", "South Gate")
	require.NoError(t, err)
	rb, err := e.Submit(ctx, riderB, "East Side", "West Side")
	require.NoError(t, err)

	// A driver listing excludes their own requests.
	got := e.ListPending(func(s Summary) bool { return s.RiderID != riderA })
	require.Len(t, got, 1)
	assert.Equal(t, rb.ID, got[0].RideID)
}

// TestClaim_RemovesFromPending tests a claimed ride disappears from listings
func TestClaim_RemovesFromPending(t *testing.T) {
	e, sched, notifier := newTestEngine(t, Config{})
	ctx := context.Background()

	r, err := e.Submit(ctx, uuid.New(), "Pier 9", "Old Town Square")
	require.NoError(t, err)

	driverID := uuid.New()
	claimed, err := e.Claim(ctx, r.ID, driverID)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusAccepted, claimed.Status)
	require.NotNil(t, claimed.DriverID)
	assert.Equal(t, driverID, *claimed.DriverID)

	assert.Empty(t, e.ListPending(nil))
	assert.False(t, sched.has(r.ID, timeout.KindClaim), "claim timeout cancelled on match")
	assert.False(t, sched.has(r.ID, timeout.KindInProgress), "in-progress timeout is not armed by claim")

	matched := notifier.byType(ride.EventRideMatched)
	require.Len(t, matched, 1)
	assert.Equal(t, r.ID, matched[0].RideID)
}

// TestClaim_ConcurrentSingleWinner tests that among unbounded concurrent
// claims exactly one succeeds and all others get a definitive outcome
func TestClaim_ConcurrentSingleWinner(t *testing.T) {
	e, _, notifier := newTestEngine(t, Config{})
	ctx := context.Background()

	r, err := e.Submit(ctx, uuid.New(), "Pier 9", "Old Town Square")
	require.NoError(t, err)

	const drivers = 24
	var wg sync.WaitGroup
	results := make(chan error, drivers)

	for i := 0; i < drivers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Claim(ctx, r.ID, uuid.New())
			results <- err
		}()
	}

	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		require.ErrorIs(t, err, ride.ErrAlreadyClaimed)
	}
	assert.Equal(t, 1, wins, "exactly one claim must win")
	assert.Len(t, notifier.byType(ride.EventRideMatched), 1)
}

// TestClaim_AlreadyClaimed tests a late claim on an accepted ride
func TestClaim_AlreadyClaimed(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{})
	ctx := context.Background()

	r, err := e.Submit(ctx, uuid.New(), "Pier 9", "Old Town Square")
	require.NoError(t, err)

	winner := uuid.New()
	_, err = e.Claim(ctx, r.ID, winner)
	require.NoError(t, err)

	_, err = e.Claim(ctx, r.ID, uuid.New())
	assert.ErrorIs(t, err, ride.ErrAlreadyClaimed)
}

// TestClaim_UnknownRide surfaces not found
func TestClaim_UnknownRide(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{})

	_, err := e.Claim(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ride.ErrRideNotFound)
}

// TestClaim_OwnRequestRejected tests a rider cannot claim their own ride
func TestClaim_OwnRequestRejected(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{})
	ctx := context.Background()

	riderID := uuid.New()
	r, err := e.Submit(ctx, riderID, "Pier 9", "Old Town Square")
	require.NoError(t, err)

	_, err = e.Claim(ctx, r.ID, riderID)
	assert.ErrorIs(t, err, ride.ErrUnauthorized)
}

// TestExpire_AfterClaimIsNoop tests the claim/expiry race: a timeout firing
// for a just-claimed ride changes nothing and emits nothing
func TestExpire_AfterClaimIsNoop(t *testing.T) {
	e, _, notifier := newTestEngine(t, Config{RetryBudget: 2})
	ctx := context.Background()

	r, err := e.Submit(ctx, uuid.New(), "Pier 9", "Old Town Square")
	require.NoError(t, err)

	claimed, err := e.Claim(ctx, r.ID, uuid.New())
	require.NoError(t, err)

	require.NoError(t, e.Expire(ctx, r.ID))

	got, err := e.store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusAccepted, got.Status)
	assert.Equal(t, claimed.Version, got.Version, "expire must not mutate a claimed ride")
	assert.Empty(t, notifier.byType(ride.EventRideCancelled))
	assert.Empty(t, notifier.byType(ride.EventRideExpired))
}

// TestExpire_RequeuesUntilBudgetThenCancels walks the full retry ladder
func TestExpire_RequeuesUntilBudgetThenCancels(t *testing.T) {
	e, sched, notifier := newTestEngine(t, Config{RetryBudget: 2})
	ctx := context.Background()

	r, err := e.Submit(ctx, uuid.New(), "Pier 9", "Old Town Square")
	require.NoError(t, err)

	// First and second firings re-queue with a fresh deadline.
	for attempt := 1; attempt <= 2; attempt++ {
		require.NoError(t, e.Expire(ctx, r.ID))

		got, err := e.store.Get(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, ride.StatusPending, got.Status)
		assert.Equal(t, attempt, got.MatchAttempts)
		assert.True(t, e.pool.Contains(r.ID))
		assert.True(t, sched.has(r.ID, timeout.KindClaim))
	}
	assert.Len(t, notifier.byType(ride.EventRideExpired), 2)

	// Third firing exhausts the budget.
	require.NoError(t, e.Expire(ctx, r.ID))

	got, err := e.store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusCancelled, got.Status)
	assert.False(t, e.pool.Contains(r.ID))

	cancelled := notifier.byType(ride.EventRideCancelled)
	require.Len(t, cancelled, 1, "RideCancelled must be emitted exactly once")
	assert.Equal(t, r.ID, cancelled[0].RideID)

	// A straggling timeout for the now-cancelled ride is swallowed.
	require.NoError(t, e.Expire(ctx, r.ID))
	assert.Len(t, notifier.byType(ride.EventRideCancelled), 1)
}

// TestClaim_AfterRequeueRetriesOnStaleVersion tests that a claim racing a
// re-queue gets StaleVersion (ride still claimable), not AlreadyClaimed
func TestClaim_AfterRequeueRetriesOnStaleVersion(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{RetryBudget: 2})
	ctx := context.Background()

	r, err := e.Submit(ctx, uuid.New(), "Pier 9", "Old Town Square")
	require.NoError(t, err)

	// Simulate a driver holding a pre-requeue snapshot: bump the version via
	// expire, then claim through a store whose read happened earlier.
	cur, err := e.store.Get(ctx, r.ID)
	require.NoError(t, err)
	require.NoError(t, e.Expire(ctx, r.ID))

	driverID := uuid.New()
	next, err := ride.Transition(cur, ride.StatusPending, ride.StatusAccepted,
		ride.Actor{ID: driverID, Role: ride.RoleDriver}, time.Now().UTC())
	require.NoError(t, err)
	_, err = e.store.CompareAndSwap(ctx, r.ID, cur.Version, next)
	require.ErrorIs(t, err, ride.ErrStaleVersion)

	// Through the engine the driver gets a retryable outcome and the retry wins.
	claimed, err := e.Claim(ctx, r.ID, driverID)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusAccepted, claimed.Status)
}

// TestClaim_RacingExpire tests a concurrent claim and expiry settle on a
// consistent final state
func TestClaim_RacingExpire(t *testing.T) {
	for i := 0; i < 20; i++ {
		e, _, notifier := newTestEngine(t, Config{RetryBudget: 0})
		ctx := context.Background()

		r, err := e.Submit(ctx, uuid.New(), "Pier 9", "Old Town Square")
		require.NoError(t, err)

		var wg sync.WaitGroup
		var claimErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, claimErr = e.Claim(ctx, r.ID, uuid.New())
		}()
		go func() {
			defer wg.Done()
			_ = e.Expire(ctx, r.ID)
		}()
		wg.Wait()

		got, err := e.store.Get(ctx, r.ID)
		require.NoError(t, err)

		switch got.Status {
		case ride.StatusAccepted:
			require.NoError(t, claimErr)
			assert.Empty(t, notifier.byType(ride.EventRideCancelled))
		case ride.StatusCancelled:
			require.Error(t, claimErr)
			assert.Len(t, notifier.byType(ride.EventRideCancelled), 1)
		default:
			t.Fatalf("unexpected final status %s", got.Status)
		}
	}
}

// TestStart_SchedulesInProgressTimeout tests the watchdog is armed at start
func TestStart_SchedulesInProgressTimeout(t *testing.T) {
	e, sched, _ := newTestEngine(t, Config{})
	ctx := context.Background()

	r, err := e.Submit(ctx, uuid.New(), "Pier 9", "Old Town Square")
	require.NoError(t, err)

	driverID := uuid.New()
	_, err = e.Claim(ctx, r.ID, driverID)
	require.NoError(t, err)
	assert.False(t, sched.has(r.ID, timeout.KindInProgress))

	started, err := e.Start(ctx, r.ID, driverID)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusInProgress, started.Status)
	assert.True(t, sched.has(r.ID, timeout.KindInProgress))
}

// TestStart_OnlyAssignedDriver rejects other drivers
func TestStart_OnlyAssignedDriver(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{})
	ctx := context.Background()

	r, err := e.Submit(ctx, uuid.New(), "Pier 9", "Old Town Square")
	require.NoError(t, err)
	_, err = e.Claim(ctx, r.ID, uuid.New())
	require.NoError(t, err)

	_, err = e.Start(ctx, r.ID, uuid.New())
	assert.ErrorIs(t, err, ride.ErrUnauthorized)
}

// TestComplete_FullLifecycle drives pending through completed
func TestComplete_FullLifecycle(t *testing.T) {
	e, sched, notifier := newTestEngine(t, Config{})
	ctx := context.Background()

	r, err := e.Submit(ctx, uuid.New(), "Pier 9", "Old Town Square")
	require.NoError(t, err)

	driverID := uuid.New()
	_, err = e.Claim(ctx, r.ID, driverID)
	require.NoError(t, err)
	_, err = e.Start(ctx, r.ID, driverID)
	require.NoError(t, err)

	completed, err := e.Complete(ctx, r.ID, driverID)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusCompleted, completed.Status)
	assert.NotNil(t, completed.CompletedAt)
	assert.Equal(t, int64(3), completed.Version, "one version per transition")

	assert.False(t, sched.has(r.ID, timeout.KindInProgress), "watchdog cancelled on completion")
	assert.Len(t, notifier.byType(ride.EventRideCompleted), 1)
}

// TestComplete_RequiresInProgress rejects completing an accepted ride
func TestComplete_RequiresInProgress(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{})
	ctx := context.Background()

	r, err := e.Submit(ctx, uuid.New(), "Pier 9", "Old Town Square")
	require.NoError(t, err)
	driverID := uuid.New()
	_, err = e.Claim(ctx, r.ID, driverID)
	require.NoError(t, err)

	_, err = e.Complete(ctx, r.ID, driverID)
	assert.ErrorIs(t, err, ride.ErrInvalidTransition)
}

// TestCancel_ByOwningRider tests rider cancellation of pending and accepted rides
func TestCancel_ByOwningRider(t *testing.T) {
	t.Run("pending", func(t *testing.T) {
		e, sched, notifier := newTestEngine(t, Config{})
		ctx := context.Background()

		riderID := uuid.New()
		r, err := e.Submit(ctx, riderID, "Pier 9", "Old Town Square")
		require.NoError(t, err)

		cancelled, err := e.Cancel(ctx, r.ID, ride.Actor{ID: riderID, Role: ride.RoleRider})
		require.NoError(t, err)
		assert.Equal(t, ride.StatusCancelled, cancelled.Status)
		assert.Empty(t, e.ListPending(nil))
		assert.False(t, sched.has(r.ID, timeout.KindClaim))
		assert.Len(t, notifier.byType(ride.EventRideCancelled), 1)
	})

	t.Run("accepted carries driver in event", func(t *testing.T) {
		e, _, notifier := newTestEngine(t, Config{})
		ctx := context.Background()

		riderID := uuid.New()
		r, err := e.Submit(ctx, riderID, "Pier 9", "Old Town Square")
		require.NoError(t, err)
		driverID := uuid.New()
		_, err = e.Claim(ctx, r.ID, driverID)
		require.NoError(t, err)

		cancelled, err := e.Cancel(ctx, r.ID, ride.Actor{ID: riderID, Role: ride.RoleRider})
		require.NoError(t, err)
		assert.Nil(t, cancelled.DriverID)

		evs := notifier.byType(ride.EventRideCancelled)
		require.Len(t, evs, 1)
		require.NotNil(t, evs[0].DriverID, "the displaced driver must be notified")
		assert.Equal(t, driverID, *evs[0].DriverID)
	})
}

// TestCancel_Unauthorized rejects non-owners and drivers
func TestCancel_Unauthorized(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{})
	ctx := context.Background()

	r, err := e.Submit(ctx, uuid.New(), "Pier 9", "Old Town Square")
	require.NoError(t, err)

	_, err = e.Cancel(ctx, r.ID, ride.Actor{ID: uuid.New(), Role: ride.RoleRider})
	assert.ErrorIs(t, err, ride.ErrUnauthorized)

	_, err = e.Cancel(ctx, r.ID, ride.Actor{ID: uuid.New(), Role: ride.RoleDriver})
	assert.ErrorIs(t, err, ride.ErrUnauthorized)
}

// TestRebuild reloads the pool from the store and re-arms timeouts
func TestRebuild(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	var seeded []*ride.Ride
	for i := 0; i < 3; i++ {
		r := ride.New(uuid.New(), "North Gate", "South Gate")
		require.NoError(t, st.Create(ctx, r))
		seeded = append(seeded, r)
	}

	sched := newFakeScheduler()
	e := NewEngine(st, sched, &recordingNotifier{}, testLogger(t), Config{
		ClaimTimeout:      30 * time.Second,
		InProgressTimeout: time.Hour,
		RetryBudget:       2,
	})
	require.NoError(t, e.Rebuild(ctx))

	assert.Equal(t, 3, e.pool.Len())
	for _, r := range seeded {
		assert.True(t, sched.has(r.ID, timeout.KindClaim))
	}
}

// TestTimeoutDrivenRequeueScenario runs the requeue flow end to end against
// the real scheduler: no claim ever arrives, the ride is re-queued twice and
// then cancelled exactly once.
func TestTimeoutDrivenRequeueScenario(t *testing.T) {
	st := store.NewMemoryStore()
	notifier := &recordingNotifier{}
	log := testLogger(t)

	var e *Engine
	sched := timeout.NewScheduler(func(ctx context.Context, rideID uuid.UUID, kind timeout.Kind) {
		e.HandleTimeout(ctx, rideID, kind)
	}, log)
	e = NewEngine(st, sched, notifier, log, Config{
		ClaimTimeout:      40 * time.Millisecond,
		InProgressTimeout: time.Hour,
		RetryBudget:       2,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	r, err := e.Submit(ctx, uuid.New(), "Pier 9", "Old Town Square")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := st.Get(context.Background(), r.ID)
		return err == nil && got.Status == ride.StatusCancelled
	}, 2*time.Second, 10*time.Millisecond, "ride should cancel after the retry budget")

	got, err := st.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MatchAttempts)

	assert.Len(t, notifier.byType(ride.EventRideExpired), 2)
	assert.Len(t, notifier.byType(ride.EventRideCancelled), 1)
	assert.False(t, e.pool.Contains(r.ID))
}
