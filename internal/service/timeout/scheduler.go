package timeout

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/veecodes14/ride-hailing/pkg/logger"
)

// Kind distinguishes the deadline a timeout entry guards
type Kind string

const (
	KindClaim      Kind = "claim"
	KindInProgress Kind = "in_progress"
)

// Callback receives fired timeouts. It runs on its own goroutine so a slow
// handler cannot delay later deadlines. Timeouts are advisory triggers: the
// authoritative check against fresh store state happens in the handler.
type Callback func(ctx context.Context, rideID uuid.UUID, kind Kind)

type entryKey struct {
	rideID uuid.UUID
	kind   Kind
}

type entry struct {
	key      entryKey
	deadline time.Time
	index    int
}

// Scheduler fires a callback no earlier than each entry's deadline. One
// active entry per (ride, kind); scheduling again replaces the deadline.
// Cancelling a missing or already-fired entry is a no-op.
type Scheduler struct {
	mu      sync.Mutex
	queue   deadlineHeap
	entries map[entryKey]*entry
	wake    chan struct{}
	cb      Callback
	logger  *logger.Logger
}

// NewScheduler creates a scheduler delivering fired entries to cb
func NewScheduler(cb Callback, log *logger.Logger) *Scheduler {
	return &Scheduler{
		entries: make(map[entryKey]*entry),
		wake:    make(chan struct{}, 1),
		cb:      cb,
		logger:  log,
	}
}

// Schedule registers a deadline for the ride and kind, replacing any
// existing entry for the same pair.
func (s *Scheduler) Schedule(rideID uuid.UUID, kind Kind, deadline time.Time) {
	key := entryKey{rideID: rideID, kind: kind}

	s.mu.Lock()
	if old, ok := s.entries[key]; ok {
		heap.Remove(&s.queue, old.index)
	}
	e := &entry{key: key, deadline: deadline}
	heap.Push(&s.queue, e)
	s.entries[key] = e
	s.mu.Unlock()

	s.signal()
}

// Cancel removes the entry for the ride and kind. Cancelling an entry that
// does not exist, or that already fired, is a no-op.
func (s *Scheduler) Cancel(rideID uuid.UUID, kind Kind) {
	key := entryKey{rideID: rideID, kind: kind}

	s.mu.Lock()
	if e, ok := s.entries[key]; ok {
		heap.Remove(&s.queue, e.index)
		delete(s.entries, key)
	}
	s.mu.Unlock()

	s.signal()
}

// Len returns the number of active entries
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Run drives the scheduler until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		fired, next := s.collectDue(time.Now())
		for _, e := range fired {
			e := e
			go s.cb(ctx, e.key.rideID, e.key.kind)
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		if next.IsZero() {
			// Nothing queued; sleep until woken.
			timer.Reset(time.Hour)
		} else {
			timer.Reset(time.Until(next))
		}

		select {
		case <-ctx.Done():
			s.logger.Info("Timeout scheduler stopped")
			return
		case <-s.wake:
		case <-timer.C:
		}
	}
}

// collectDue pops every entry whose deadline has passed and reports the next
// pending deadline, zero when the queue is empty.
func (s *Scheduler) collectDue(now time.Time) ([]*entry, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fired []*entry
	for s.queue.Len() > 0 && !s.queue[0].deadline.After(now) {
		e := heap.Pop(&s.queue).(*entry)
		delete(s.entries, e.key)
		fired = append(fired, e)
	}

	var next time.Time
	if s.queue.Len() > 0 {
		next = s.queue[0].deadline
	}
	return fired, next
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// deadlineHeap is a min-heap of entries ordered by deadline.
type deadlineHeap []*entry

func (h deadlineHeap) Len() int            { return len(h) }
func (h deadlineHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h deadlineHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *deadlineHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *deadlineHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
