package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// OwnerIDHeader carries the authenticated owner, set by the upstream session layer
	OwnerIDHeader = "X-Owner-ID"

	OwnerIDKey = "owner_id"

	// IdempotencyKeyHeader carries the client's retry key for commits
	IdempotencyKeyHeader = "Idempotency-Key"
)

// OwnerID rejects requests without a valid owner id header
func OwnerID() gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID, err := uuid.Parse(c.GetHeader(OwnerIDHeader))
		if err != nil || ownerID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "missing or invalid " + OwnerIDHeader + " header",
				},
				"correlation_id": GetCorrelationID(c),
			})
			return
		}

		c.Set(OwnerIDKey, ownerID)
		c.Next()
	}
}

// GetOwnerID returns the owner set by OwnerID, or uuid.Nil
func GetOwnerID(c *gin.Context) uuid.UUID {
	if id, exists := c.Get(OwnerIDKey); exists {
		if ownerID, ok := id.(uuid.UUID); ok {
			return ownerID
		}
	}
	return uuid.Nil
}
