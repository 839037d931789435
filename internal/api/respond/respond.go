// Package respond maps registry errors to HTTP responses and parses the
// path and body inputs shared by every handler package.
package respond

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/modlink/registry-engine/internal/address"
	"github.com/modlink/registry-engine/internal/middleware"
	"github.com/modlink/registry-engine/internal/registry"
)

// Status returns the HTTP status for err.
func Status(err error) int {
	code := registry.CodeOf(err)
	switch code.Class() {
	case registry.ClassValidation:
		return http.StatusBadRequest
	case registry.ClassAuthorization:
		return http.StatusForbidden
	case registry.ClassState:
		if code == registry.CodeNotBootstrapped {
			return http.StatusServiceUnavailable
		}
		return http.StatusConflict
	case registry.ClassArithmetic:
		return http.StatusUnprocessableEntity
	}

	switch code {
	case registry.CodeNotFound:
		return http.StatusNotFound
	case registry.CodeAlreadyExists:
		return http.StatusConflict
	case registry.CodeInvalidAddress:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Error writes err as {"error": ..., "code": ...}. Internal failures are
// logged and reported without detail.
func Error(c *gin.Context, err error) {
	status := Status(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method,
			"route", c.FullPath(),
			"error", err,
		)
		c.JSON(status, gin.H{"error": "Internal server error", "code": registry.CodeInternalError})
		return
	}

	var msg string
	var e *registry.Error
	if errors.As(err, &e) && e.Message != "" {
		msg = e.Message
	} else {
		msg = err.Error()
	}
	c.JSON(status, gin.H{"error": msg, "code": registry.CodeOf(err)})
}

// Bind decodes the JSON body into dst and writes a 400 on failure.
func Bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return false
	}
	return true
}

// PathKey parses the hex address in path parameter name and writes a 400 on failure.
func PathKey(c *gin.Context, name string) (address.Key, bool) {
	k, err := address.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name + ": " + err.Error()})
		return address.Zero, false
	}
	return k, true
}

// PathVersion parses the version in path parameter name.
func PathVersion(c *gin.Context, name string) (registry.Version, bool) {
	v, err := registry.ParseVersion(c.Param(name))
	if err != nil {
		Error(c, err)
		return registry.Version{}, false
	}
	return v, true
}

// Actor returns the authenticated caller. Routes behind AuthMiddleware always have one.
func Actor(c *gin.Context) (address.Key, bool) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
	}
	return actor, ok
}
