package notify

import (
	"context"

	"github.com/veecodes14/ride-hailing/internal/domain/ride"
	"github.com/veecodes14/ride-hailing/pkg/monitoring"
)

// NewRelicNotifier records lifecycle events as New Relic custom events.
type NewRelicNotifier struct {
	app *monitoring.NewRelicApp
}

// NewNewRelicNotifier creates a notifier backed by the monitoring app.
func NewNewRelicNotifier(app *monitoring.NewRelicApp) *NewRelicNotifier {
	return &NewRelicNotifier{app: app}
}

// Notify implements ride.Notifier.
func (n *NewRelicNotifier) Notify(_ context.Context, ev ride.Event) {
	params := map[string]interface{}{
		"ride_id":  ev.RideID.String(),
		"rider_id": ev.RiderID.String(),
		"status":   string(ev.Status),
	}
	if ev.DriverID != nil {
		params["driver_id"] = ev.DriverID.String()
	}

	switch ev.Type {
	case ride.EventRideMatched:
		n.app.RecordCustomEvent("RideMatched", params)
	case ride.EventRideExpired:
		n.app.RecordCustomEvent("RideExpired", params)
	case ride.EventRideCancelled:
		n.app.RecordCustomEvent("RideCancelled", params)
	case ride.EventRideCompleted:
		n.app.RecordCustomEvent("RideCompleted", params)
	}
}
