package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/modlink/registry-engine/internal/events"
)

const (
	RequestIDHeader = "X-Request-ID"
	// RequestIDKey holds the id in the gin.Context.
	RequestIDKey = "request_id"
)

// RequestIDMiddleware tags each request with an id: the caller's X-Request-ID
// when present, else a fresh UUID. The id is echoed in the response and rides
// the request context so published event envelopes carry it as context_id.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}

		c.Set(RequestIDKey, id)
		c.Request = c.Request.WithContext(events.WithRequestID(c.Request.Context(), id))
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}
