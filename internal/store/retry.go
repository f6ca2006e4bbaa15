package store

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/veecodes14/ride-hailing/internal/domain/ride"
	"github.com/veecodes14/ride-hailing/pkg/logger"
)

// RetryConfig controls the backoff applied to infrastructure failures at the
// store-client boundary.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultRetryConfig returns the default store retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Multiplier:  2.0,
	}
}

// retryingStore decorates a ride.Store with bounded exponential backoff.
// Conflict and not-found outcomes are part of the protocol, not failures,
// and pass through untouched; only infrastructure errors are retried.
type retryingStore struct {
	inner  ride.Store
	cfg    RetryConfig
	logger *logger.Logger
}

// WithRetry wraps a store with bounded backoff on infrastructure errors.
func WithRetry(inner ride.Store, cfg RetryConfig, log *logger.Logger) ride.Store {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &retryingStore{inner: inner, cfg: cfg, logger: log}
}

func (s *retryingStore) Create(ctx context.Context, r *ride.Ride) error {
	return s.do(ctx, "create", func(ctx context.Context) error {
		return s.inner.Create(ctx, r)
	})
}

func (s *retryingStore) Get(ctx context.Context, id uuid.UUID) (*ride.Ride, error) {
	var out *ride.Ride
	err := s.do(ctx, "get", func(ctx context.Context) error {
		var err error
		out, err = s.inner.Get(ctx, id)
		return err
	})
	return out, err
}

func (s *retryingStore) CompareAndSwap(ctx context.Context, id uuid.UUID, expectedVersion int64, updated *ride.Ride) (*ride.Ride, error) {
	var out *ride.Ride
	err := s.do(ctx, "compare_and_swap", func(ctx context.Context) error {
		var err error
		out, err = s.inner.CompareAndSwap(ctx, id, expectedVersion, updated)
		return err
	})
	return out, err
}

func (s *retryingStore) ListByStatus(ctx context.Context, status ride.Status) ([]*ride.Ride, error) {
	var out []*ride.Ride
	err := s.do(ctx, "list_by_status", func(ctx context.Context) error {
		var err error
		out, err = s.inner.ListByStatus(ctx, status)
		return err
	})
	return out, err
}

func (s *retryingStore) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < s.cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				s.logger.Info("Store operation succeeded after retry",
					logger.String("operation", op),
					logger.Int("attempt", attempt+1),
				)
			}
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err

		if attempt == s.cfg.MaxAttempts-1 {
			break
		}

		delay := s.delay(attempt)
		s.logger.Warn("Store operation failed, retrying",
			logger.String("operation", op),
			logger.Int("attempt", attempt+1),
			logger.Duration("delay", delay),
			logger.Err(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	s.logger.Error("Store operation failed after all retries",
		logger.String("operation", op),
		logger.Int("attempts", s.cfg.MaxAttempts),
		logger.Err(lastErr),
	)
	return lastErr
}

func (s *retryingStore) delay(attempt int) time.Duration {
	d := float64(s.cfg.BaseDelay) * math.Pow(s.cfg.Multiplier, float64(attempt))
	if d > float64(s.cfg.MaxDelay) {
		d = float64(s.cfg.MaxDelay)
	}
	// Jitter up to 10% to avoid synchronized retries.
	d += d * 0.1 * rand.Float64()
	return time.Duration(d)
}

func isRetryable(err error) bool {
	switch {
	case errors.Is(err, ride.ErrStaleVersion),
		errors.Is(err, ride.ErrRideNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
