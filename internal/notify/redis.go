package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veecodes14/ride-hailing/internal/domain/ride"
	"github.com/veecodes14/ride-hailing/pkg/logger"
)

const (
	eventChannel   = "rides:events"
	publishTimeout = 2 * time.Second
)

// RedisNotifier publishes lifecycle events to a Redis channel so other
// services can react without polling the rides table. Publishing happens on
// a separate goroutine; a slow or down Redis never blocks the engine.
type RedisNotifier struct {
	client *redis.Client
	logger *logger.Logger
}

// NewRedisNotifier creates a notifier that publishes to rides:events.
func NewRedisNotifier(client *redis.Client, log *logger.Logger) *RedisNotifier {
	return &RedisNotifier{client: client, logger: log}
}

// Notify implements ride.Notifier.
func (n *RedisNotifier) Notify(_ context.Context, ev ride.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		n.logger.Error("Failed to marshal event for publish",
			logger.Err(err),
			logger.String("ride_id", ev.RideID.String()),
		)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if err := n.client.Publish(ctx, eventChannel, payload).Err(); err != nil {
			n.logger.Warn("Failed to publish event to Redis",
				logger.Err(err),
				logger.String("type", string(ev.Type)),
				logger.String("ride_id", ev.RideID.String()),
			)
		}
	}()
}
