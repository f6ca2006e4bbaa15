package notify

import (
	"context"

	"github.com/veecodes14/ride-hailing/internal/domain/ride"
	"github.com/veecodes14/ride-hailing/pkg/websocket"
)

// WebSocketNotifier pushes lifecycle events to connected riders and drivers
// through the hub. The rider who owns the ride always gets a direct message;
// the assigned driver gets one when the event carries a driver.
type WebSocketNotifier struct {
	hub *websocket.Hub
}

// NewWebSocketNotifier creates a notifier backed by the given hub.
func NewWebSocketNotifier(hub *websocket.Hub) *WebSocketNotifier {
	return &WebSocketNotifier{hub: hub}
}

// Notify implements ride.Notifier.
func (n *WebSocketNotifier) Notify(_ context.Context, ev ride.Event) {
	msg := websocket.Message{
		Type: string(ev.Type),
		Data: ev,
	}

	n.hub.SendToUser(ev.RiderID.String(), msg)
	if ev.DriverID != nil {
		n.hub.SendToUser(ev.DriverID.String(), msg)
	}
	n.hub.BroadcastToRide(ev.RideID.String(), msg)
}
