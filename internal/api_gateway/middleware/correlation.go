package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// CorrelationIDHeader carries the id that ties a request to its ledger
	// transaction, outbox event and notification
	CorrelationIDHeader = "X-Correlation-ID"

	CorrelationIDKey = "correlation_id"

	// maxCorrelationIDLength bounds client-supplied ids; they are persisted with
	// the outbox event
	maxCorrelationIDLength = 128
)

// CorrelationID adopts the caller's correlation id or mints one, and echoes it
// back in the response
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(CorrelationIDHeader)
		if correlationID == "" || len(correlationID) > maxCorrelationIDLength {
			correlationID = uuid.NewString()
		}

		c.Header(CorrelationIDHeader, correlationID)
		c.Set(CorrelationIDKey, correlationID)

		c.Next()
	}
}

// GetCorrelationID returns the id set by CorrelationID, or ""
func GetCorrelationID(c *gin.Context) string {
	return c.GetString(CorrelationIDKey)
}
