package notify

import (
	"context"

	"github.com/veecodes14/ride-hailing/internal/domain/ride"
)

// Fanout delivers each event to every wrapped notifier in order.
type Fanout struct {
	notifiers []ride.Notifier
}

// NewFanout composes notifiers into a single ride.Notifier.
func NewFanout(notifiers ...ride.Notifier) *Fanout {
	return &Fanout{notifiers: notifiers}
}

// Notify implements ride.Notifier.
func (f *Fanout) Notify(ctx context.Context, ev ride.Event) {
	for _, n := range f.notifiers {
		n.Notify(ctx, ev)
	}
}
