package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/veecodes14/ride-hailing/internal/api/dto"
	"github.com/veecodes14/ride-hailing/internal/domain/ride"
)

const actorKey = "actor"

// Identity resolves the calling rider or driver from the X-User-ID and
// X-User-Role headers set by the gateway. Requests without a valid identity
// are rejected before they reach a handler.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.GetHeader("X-User-ID"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{
				Code:    "UNAUTHORIZED",
				Message: "missing or invalid X-User-ID header",
			})
			return
		}

		var role ride.Role
		switch c.GetHeader("X-User-Role") {
		case string(ride.RoleRider):
			role = ride.RoleRider
		case string(ride.RoleDriver):
			role = ride.RoleDriver
		default:
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{
				Code:    "UNAUTHORIZED",
				Message: "X-User-Role must be rider or driver",
			})
			return
		}

		c.Set(actorKey, ride.Actor{ID: id, Role: role})
		c.Next()
	}
}

// ActorFrom returns the actor resolved by Identity for this request.
func ActorFrom(c *gin.Context) (ride.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return ride.Actor{}, false
	}
	actor, ok := v.(ride.Actor)
	return actor, ok
}
