// Package api wires together all HTTP routes for the registry.
//
// Route grouping:
//   - Reads under /api/v1/ are public.
//   - Mutations require a bearer token whose subject is the caller's actor id.
//     Authority checks (repo authority, fork owner, admin) happen in the engine,
//     so the HTTP layer only establishes who is calling.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/modlink/registry-engine/internal/api/admin"
	"github.com/modlink/registry-engine/internal/api/catalog"
	"github.com/modlink/registry-engine/internal/middleware"
	"github.com/modlink/registry-engine/internal/registry"
)

// Options configures NewRouter.
type Options struct {
	Engine *registry.Engine
	// Validate checks bearer tokens. Defaults to middleware.JWTValidator.
	Validate middleware.TokenValidator
	// Limiter throttles /api/v1/. Nil disables rate limiting.
	Limiter middleware.Limiter
	// Headers overrides DefaultHeaderPolicy when set.
	Headers *middleware.HeaderPolicy
	// HealthCheck probes the backing store. Nil reports healthy.
	HealthCheck func(ctx context.Context) error
	Version     string
}

// NewRouter creates and configures the Gin router
func NewRouter(opts Options) *gin.Engine {
	if opts.Validate == nil {
		opts.Validate = middleware.JWTValidator
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	headers := middleware.DefaultHeaderPolicy()
	if opts.Headers != nil {
		headers = *opts.Headers
	}
	router.Use(middleware.SecurityHeadersMiddleware(headers))

	router.GET("/health", healthCheckHandler(opts.HealthCheck))
	router.GET("/ready", readinessHandler(opts.Engine))
	router.GET("/version", versionHandler(opts.Version))

	adminHandlers := admin.NewHandlers(opts.Engine)
	catalogHandlers := catalog.NewHandlers(opts.Engine)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.OptionalAuthMiddleware(opts.Validate))
	if opts.Limiter != nil {
		v1.Use(middleware.RateLimitMiddleware(opts.Limiter))
	}
	{
		v1.GET("/config", adminHandlers.GetConfigHandler())
		v1.GET("/lifecycle", adminHandlers.GetLifecycleHandler())
		v1.GET("/metrics", adminHandlers.GetMetricsHandler())
		v1.GET("/metadata", adminHandlers.GetMetadataHandler())

		v1.GET("/repos", catalogHandlers.ListReposHandler())
		v1.GET("/repos/:repo", catalogHandlers.GetRepoHandler())
		v1.GET("/repos/:repo/modules", catalogHandlers.ListModulesHandler())
		v1.GET("/repos/:repo/modules/:module", catalogHandlers.GetModuleHandler())
		v1.GET("/modules/:module/versions", catalogHandlers.ListVersionsHandler())
		v1.GET("/modules/:module/versions/:version", catalogHandlers.GetVersionHandler())
		v1.GET("/modules/:module/links", catalogHandlers.ListLinksHandler())
		v1.GET("/forks", catalogHandlers.ListForksHandler())
		v1.GET("/forks/:fork", catalogHandlers.GetForkHandler())
	}

	authenticated := v1.Group("")
	authenticated.Use(middleware.AuthMiddleware(opts.Validate))
	{
		adminGroup := authenticated.Group("/admin")
		{
			adminGroup.PUT("/config", adminHandlers.UpdateConfigHandler())
			adminGroup.PUT("/admin", adminHandlers.RotateAdminHandler())
			adminGroup.PUT("/lifecycle", adminHandlers.SetLifecycleHandler())
			adminGroup.PUT("/metadata", adminHandlers.SetMetadataHandler())
			adminGroup.PUT("/metrics", adminHandlers.AdjustMetricsHandler())
		}

		authenticated.POST("/observations", adminHandlers.RecordObservationHandler())

		authenticated.POST("/repos", catalogHandlers.RegisterRepoHandler())
		authenticated.PATCH("/repos/:repo", catalogHandlers.UpdateRepoHandler())
		authenticated.POST("/repos/:repo/modules", catalogHandlers.RegisterModuleHandler())
		authenticated.PATCH("/repos/:repo/modules/:module", catalogHandlers.UpdateModuleHandler())
		authenticated.POST("/repos/:repo/modules/:module/versions/:version/deprecate", catalogHandlers.DeprecateVersionHandler())

		authenticated.POST("/modules/:module/usage", catalogHandlers.RecordUsageHandler())
		authenticated.PUT("/modules/:module/links/:repo", catalogHandlers.LinkModuleHandler())

		authenticated.POST("/forks", catalogHandlers.CreateForkHandler())
		authenticated.PATCH("/forks/:fork", catalogHandlers.UpdateForkHandler())
		authenticated.PUT("/forks/:fork/owner", catalogHandlers.TransferForkHandler())
	}

	return router
}

// healthCheckHandler returns the liveness status of the service.
// GET /health
func healthCheckHandler(check func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			if err := check(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "unhealthy",
					"error":  "store connection failed",
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessHandler reports ready once the deployment has been bootstrapped.
// GET /ready
func readinessHandler(engine *registry.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg, err := engine.Config(c.Request.Context())
		if err != nil {
			reason := "store not ready"
			if registry.CodeOf(err) == registry.CodeNotBootstrapped {
				reason = "deployment not bootstrapped"
			}
			c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "error": reason})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":     true,
			"is_active": cfg.IsActive,
			"time":      time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler returns the build and API version.
// GET /version
func versionHandler(version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     version,
			"api_version": "v1",
		})
	}
}
