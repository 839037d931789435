package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/modlink/registry-engine/internal/telemetry"
)

const noRoute = "<no-route>"

// MetricsMiddleware records http_requests_total and http_request_duration_seconds
// for every request and writes one structured access log line.
//
// The path label is the matched route template (c.FullPath()), so
// /v1/repos/:repo and not the concrete id; unmatched requests use "<no-route>"
// to keep label cardinality bounded. Register it after RequestIDMiddleware so
// the access log carries the request ID.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = noRoute
		}

		elapsed := time.Since(start)
		method := c.Request.Method
		status := c.Writer.Status()

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())

		level := slog.LevelDebug
		if status >= 500 {
			level = slog.LevelError
		}
		slog.Log(c.Request.Context(), level, "http request",
			"method", method,
			"route", path,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"request_id", c.GetString(RequestIDKey),
		)
	}
}
