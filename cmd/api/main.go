package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/veecodes14/ride-hailing/internal/api/handlers"
	"github.com/veecodes14/ride-hailing/internal/api/routes"
	"github.com/veecodes14/ride-hailing/internal/config"
	"github.com/veecodes14/ride-hailing/internal/domain/ride"
	"github.com/veecodes14/ride-hailing/internal/notify"
	"github.com/veecodes14/ride-hailing/internal/service/matching"
	"github.com/veecodes14/ride-hailing/internal/service/timeout"
	"github.com/veecodes14/ride-hailing/internal/store"
	"github.com/veecodes14/ride-hailing/pkg/cache"
	"github.com/veecodes14/ride-hailing/pkg/database"
	"github.com/veecodes14/ride-hailing/pkg/logger"
	"github.com/veecodes14/ride-hailing/pkg/monitoring"
	"github.com/veecodes14/ride-hailing/pkg/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting ride matching service",
		logger.String("env", cfg.Server.Env),
		logger.String("port", cfg.Server.Port),
	)

	// Initialize New Relic
	nrApp, err := monitoring.New(monitoring.Config{
		LicenseKey: cfg.NewRelic.LicenseKey,
		AppName:    cfg.NewRelic.AppName,
		Enabled:    cfg.NewRelic.Enabled,
	})
	if err != nil {
		appLogger.Warn("Failed to initialize New Relic", logger.Err(err))
		nrApp, _ = monitoring.New(monitoring.Config{})
	}
	if nrApp.IsEnabled() {
		appLogger.Info("New Relic APM initialized",
			logger.String("app_name", cfg.NewRelic.AppName))
	} else {
		appLogger.Info("New Relic APM disabled")
	}
	defer nrApp.Shutdown(10 * time.Second)

	// Initialize Redis
	redisClient, err := cache.NewRedisClient(cache.Config{
		Host:        cfg.Redis.Host,
		Port:        cfg.Redis.Port,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		MaxRetries:  cfg.Redis.MaxRetries,
		PoolSize:    cfg.Redis.PoolSize,
		DialTimeout: cfg.Redis.DialTimeout,
		ReadTimeout: cfg.Redis.ReadTimeout,
	})
	if err != nil {
		appLogger.Fatal("Failed to connect to Redis", logger.Err(err))
	}
	defer cache.Close(redisClient)

	appLogger.Info("Connected to Redis")

	// Initialize the ride store
	var rideStore ride.Store
	switch cfg.Database.Driver {
	case "memory":
		rideStore = store.NewMemoryStore()
		appLogger.Info("Using in-memory ride store")
	default:
		postgresDB, err := database.NewPostgresDB(database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.Name,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.MaxConnections,
			MaxIdle:  cfg.Database.MaxIdleConns,
		})
		if err != nil {
			appLogger.Fatal("Failed to connect to PostgreSQL", logger.Err(err))
		}
		defer postgresDB.Close()
		rideStore = store.NewPostgresStore(postgresDB)
		appLogger.Info("Connected to PostgreSQL")
	}

	rideStore = store.WithRetry(rideStore, store.RetryConfig{
		MaxAttempts: cfg.StoreRetry.MaxAttempts,
		BaseDelay:   cfg.StoreRetry.BaseDelay,
		MaxDelay:    cfg.StoreRetry.MaxDelay,
		Multiplier:  cfg.StoreRetry.Multiplier,
	}, appLogger)

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(appLogger)
	go wsHub.Run()

	// Lifecycle event fanout
	notifier := notify.NewFanout(
		notify.NewWebSocketNotifier(wsHub),
		notify.NewRedisNotifier(redisClient, appLogger),
		notify.NewNewRelicNotifier(nrApp),
	)

	// Matching engine and its timeout scheduler. The scheduler calls back
	// into the engine, so the engine is created first and the callback
	// closes over it.
	var engine *matching.Engine
	scheduler := timeout.NewScheduler(func(ctx context.Context, rideID uuid.UUID, kind timeout.Kind) {
		engine.HandleTimeout(ctx, rideID, kind)
	}, appLogger)
	engine = matching.NewEngine(rideStore, scheduler, notifier, appLogger, matching.Config{
		ClaimTimeout:      cfg.Matching.ClaimTimeout,
		InProgressTimeout: cfg.Matching.InProgressTimeout,
		RetryBudget:       cfg.Matching.RetryBudget,
	})

	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	go scheduler.Run(schedulerCtx)

	// Rebuild the pending pool and re-arm claim timeouts from the store
	if err := engine.Rebuild(context.Background()); err != nil {
		appLogger.Fatal("Failed to rebuild pending pool", logger.Err(err))
	}

	// Initialize handlers with dependencies
	h := handlers.NewHandlers(engine, rideStore, redisClient, wsHub, appLogger, nrApp, cfg.Cache.TTLIdempotency)

	// Initialize Gin router
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	var nrApplication *newrelic.Application
	if nrApp.IsEnabled() {
		nrApplication = nrApp.Application
	}
	routes.SetupRoutes(router, h, nrApplication)

	appLogger.Info("Routes configured")

	// Create HTTP server
	srv := &http.Server{
		Addr:           fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// Start server in a goroutine
	go func() {
		appLogger.Info("Server starting", logger.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", logger.Err(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", logger.Err(err))
	}

	stopScheduler()

	appLogger.Info("Server stopped gracefully")
}
