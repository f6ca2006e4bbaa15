package handlers

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veecodes14/ride-hailing/internal/domain/ride"
	"github.com/veecodes14/ride-hailing/internal/service/matching"
	"github.com/veecodes14/ride-hailing/pkg/logger"
	"github.com/veecodes14/ride-hailing/pkg/monitoring"
	"github.com/veecodes14/ride-hailing/pkg/websocket"
)

// Handlers holds all handler dependencies
type Handlers struct {
	Engine         *matching.Engine
	Store          ride.Store
	Redis          *redis.Client
	Hub            *websocket.Hub
	Logger         *logger.Logger
	Monitor        *monitoring.NewRelicApp
	IdempotencyTTL time.Duration
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	engine *matching.Engine,
	store ride.Store,
	redisClient *redis.Client,
	hub *websocket.Hub,
	log *logger.Logger,
	monitor *monitoring.NewRelicApp,
	idempotencyTTL time.Duration,
) *Handlers {
	return &Handlers{
		Engine:         engine,
		Store:          store,
		Redis:          redisClient,
		Hub:            hub,
		Logger:         log,
		Monitor:        monitor,
		IdempotencyTTL: idempotencyTTL,
	}
}
