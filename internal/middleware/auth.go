// Package middleware provides Gin HTTP middleware for actor authentication,
// rate limiting, security headers, request IDs and request metrics.
//
// Middleware ordering is enforced in router.go:
//
//	RequestID -> Metrics -> Security -> OptionalAuth -> RateLimit -> Auth -> Handler
//
// Security headers run before rate limiting so they appear on 429 responses.
// OptionalAuth identifies the caller so authenticated actors get their own
// rate limit bucket; anonymous callers share one per client IP.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/modlink/registry-engine/internal/address"
	"github.com/modlink/registry-engine/internal/auth"
)

const (
	// ActorKey is the gin.Context key holding the authenticated address.Key.
	ActorKey = "actor_id"
	// AuthMethodKey records how the caller authenticated.
	AuthMethodKey = "auth_method"
)

// TokenValidator verifies a bearer token and returns the actor it identifies.
type TokenValidator func(token string) (address.Key, error)

// JWTValidator validates actor tokens issued by package auth.
func JWTValidator(token string) (address.Key, error) {
	actor, _, err := auth.ValidateActorToken(token)
	return actor, err
}

func bearerToken(c *gin.Context) (string, string) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", "Missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "Authorization header must start with 'Bearer '"
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", "Authorization token is empty"
	}
	return token, ""
}

// AuthMiddleware requires a valid bearer token and stores the actor under ActorKey.
func AuthMiddleware(validate TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, problem := bearerToken(c)
		if problem != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": problem})
			return
		}

		actor, err := validate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}

		c.Set(ActorKey, actor)
		c.Set(AuthMethodKey, "jwt")
		c.Next()
	}
}

// OptionalAuthMiddleware sets the actor when a valid token is present and
// otherwise lets the request through anonymously.
func OptionalAuthMiddleware(validate TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, problem := bearerToken(c); problem == "" {
			if actor, err := validate(token); err == nil {
				c.Set(ActorKey, actor)
				c.Set(AuthMethodKey, "jwt")
			}
		}
		c.Next()
	}
}

// GetActor returns the authenticated actor, if any.
func GetActor(c *gin.Context) (address.Key, bool) {
	v, ok := c.Get(ActorKey)
	if !ok {
		return address.Zero, false
	}
	actor, ok := v.(address.Key)
	return actor, ok && !actor.IsZero()
}
