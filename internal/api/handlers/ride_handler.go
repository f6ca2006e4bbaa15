package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/veecodes14/ride-hailing/internal/api/dto"
	"github.com/veecodes14/ride-hailing/internal/api/middleware"
	"github.com/veecodes14/ride-hailing/internal/domain/ride"
	"github.com/veecodes14/ride-hailing/internal/service/matching"
	"github.com/veecodes14/ride-hailing/pkg/cache"
	apperrors "github.com/veecodes14/ride-hailing/pkg/errors"
	"github.com/veecodes14/ride-hailing/pkg/logger"
)

// RequestRide handles POST /v1/rides
func (h *Handlers) RequestRide(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok || actor.Role != ride.RoleRider {
		h.respondError(c, apperrors.Forbidden("only riders can request rides", nil))
		return
	}

	var req dto.RequestRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperrors.BadRequest("invalid request payload", err))
		return
	}

	ctx := c.Request.Context()

	// An Idempotency-Key header binds retries of the same request to the
	// first ride created for it.
	idemKey := c.GetHeader("Idempotency-Key")
	rideID := uuid.New()
	if idemKey != "" {
		bound, reserved, err := cache.ReserveIdempotencyKey(ctx, h.Redis, idemKey, rideID.String(), h.IdempotencyTTL)
		if err != nil {
			h.respondError(c, apperrors.ServiceUnavailable("idempotency check failed", err))
			return
		}
		if !reserved {
			existingID, err := uuid.Parse(bound)
			if err != nil {
				h.respondError(c, apperrors.Internal("corrupt idempotency record", err))
				return
			}
			existing, err := h.Store.Get(ctx, existingID)
			if err != nil {
				h.respondError(c, apperrors.FromDomain(err))
				return
			}
			c.JSON(http.StatusOK, dto.FromRide(existing))
			return
		}
	}

	r, err := h.Engine.SubmitWithID(ctx, rideID, actor.ID, req.PickupLocation, req.DropoffLocation)
	if err != nil {
		if idemKey != "" {
			if relErr := cache.ReleaseIdempotencyKey(ctx, h.Redis, idemKey); relErr != nil {
				h.Logger.Warn("Failed to release idempotency key",
					logger.Err(relErr),
					logger.String("key", idemKey),
				)
			}
		}
		h.respondError(c, apperrors.FromDomain(err))
		return
	}

	h.Monitor.RecordRideSubmitted(r.ID.String())
	h.Monitor.RecordPendingPoolSize(len(h.Engine.ListPending(nil)))

	c.JSON(http.StatusCreated, dto.FromRide(r))
}

// ListPendingRides handles GET /v1/rides/pending
func (h *Handlers) ListPendingRides(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok || actor.Role != ride.RoleDriver {
		h.respondError(c, apperrors.Forbidden("only drivers can browse pending rides", nil))
		return
	}

	// A driver never sees their own requests made in a rider session.
	summaries := h.Engine.ListPending(func(s matching.Summary) bool {
		return s.RiderID != actor.ID
	})

	resp := make([]dto.PendingRideResponse, 0, len(summaries))
	for _, s := range summaries {
		resp = append(resp, dto.FromSummary(s))
	}
	c.JSON(http.StatusOK, gin.H{"rides": resp, "count": len(resp)})
}

// ClaimRide handles POST /v1/rides/:id/claim
func (h *Handlers) ClaimRide(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok || actor.Role != ride.RoleDriver {
		h.respondError(c, apperrors.Forbidden("only drivers can claim rides", nil))
		return
	}

	rideID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.respondError(c, apperrors.BadRequest("invalid ride id", err))
		return
	}

	started := time.Now()
	r, err := h.Engine.Claim(c.Request.Context(), rideID, actor.ID)
	if err != nil {
		if apperrors.IsStateConflict(err) {
			h.Monitor.RecordClaimConflict()
		}
		h.respondError(c, apperrors.FromDomain(err))
		return
	}

	h.Monitor.RecordClaimLatency(float64(time.Since(started).Milliseconds()))

	c.JSON(http.StatusOK, dto.FromRide(r))
}

// StartRide handles POST /v1/rides/:id/start
func (h *Handlers) StartRide(c *gin.Context) {
	h.driverTransition(c, h.Engine.Start)
}

// CompleteRide handles POST /v1/rides/:id/complete
func (h *Handlers) CompleteRide(c *gin.Context) {
	h.driverTransition(c, h.Engine.Complete)
}

// CancelRide handles POST /v1/rides/:id/cancel
func (h *Handlers) CancelRide(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		h.respondError(c, apperrors.Unauthorized("missing identity", nil))
		return
	}

	rideID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.respondError(c, apperrors.BadRequest("invalid ride id", err))
		return
	}

	r, err := h.Engine.Cancel(c.Request.Context(), rideID, actor)
	if err != nil {
		h.respondError(c, apperrors.FromDomain(err))
		return
	}

	c.JSON(http.StatusOK, dto.FromRide(r))
}

// GetRide handles GET /v1/rides/:id
func (h *Handlers) GetRide(c *gin.Context) {
	rideID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.respondError(c, apperrors.BadRequest("invalid ride id", err))
		return
	}

	r, err := h.Store.Get(c.Request.Context(), rideID)
	if err != nil {
		h.respondError(c, apperrors.FromDomain(err))
		return
	}

	c.JSON(http.StatusOK, dto.FromRide(r))
}

// driverTransition is shared by start and complete, which differ only in the
// engine call.
func (h *Handlers) driverTransition(c *gin.Context, fn func(ctx context.Context, rideID, driverID uuid.UUID) (*ride.Ride, error)) {
	actor, ok := middleware.ActorFrom(c)
	if !ok || actor.Role != ride.RoleDriver {
		h.respondError(c, apperrors.Forbidden("only the assigned driver can do this", nil))
		return
	}

	rideID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.respondError(c, apperrors.BadRequest("invalid ride id", err))
		return
	}

	r, err := fn(c.Request.Context(), rideID, actor.ID)
	if err != nil {
		h.respondError(c, apperrors.FromDomain(err))
		return
	}

	c.JSON(http.StatusOK, dto.FromRide(r))
}

func (h *Handlers) respondError(c *gin.Context, err error) {
	appErr := apperrors.GetAppError(err)

	if appErr.Status >= http.StatusInternalServerError {
		h.Logger.Error("Request failed",
			logger.Err(err),
			logger.String("path", c.FullPath()),
		)
	}

	c.JSON(appErr.Status, dto.ErrorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
	})
}
