// deployment.go implements handlers for the deployment singletons: configuration,
// lifecycle, global metadata and the aggregate metrics.
package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/modlink/registry-engine/internal/address"
	"github.com/modlink/registry-engine/internal/api/respond"
	"github.com/modlink/registry-engine/internal/registry"
)

// Handlers serves the deployment-wide endpoints.
type Handlers struct {
	engine *registry.Engine
}

// NewHandlers creates a new Handlers instance
func NewHandlers(engine *registry.Engine) *Handlers {
	return &Handlers{engine: engine}
}

// RotateAdminRequest is the body of PUT /api/v1/admin/admin.
type RotateAdminRequest struct {
	NewAdmin address.Key `json:"new_admin" binding:"required"`
}

// SetLifecycleRequest is the body of PUT /api/v1/admin/lifecycle.
type SetLifecycleRequest struct {
	WritesAllowed *bool  `json:"writes_allowed" binding:"required"`
	Note          string `json:"note"`
}

// GetConfigHandler returns the deployment configuration.
// GET /api/v1/config
func (h *Handlers) GetConfigHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg, err := h.engine.Config(c.Request.Context())
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, cfg)
	}
}

// GetLifecycleHandler returns the write-enable switch.
// GET /api/v1/lifecycle
func (h *Handlers) GetLifecycleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		lc, err := h.engine.Lifecycle(c.Request.Context())
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, lc)
	}
}

// GetMetadataHandler returns the global metadata record.
// GET /api/v1/metadata
func (h *Handlers) GetMetadataHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		md, err := h.engine.Metadata(c.Request.Context())
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, md)
	}
}

// GetMetricsHandler returns the aggregate counters and the per-observation caps.
// GET /api/v1/metrics
func (h *Handlers) GetMetricsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		m, err := h.engine.Metrics(c.Request.Context())
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"metrics": m,
			"limits":  h.engine.ObservationLimits(),
		})
	}
}

// UpdateConfigHandler applies a partial configuration update.
// PUT /api/v1/admin/config
func (h *Handlers) UpdateConfigHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := respond.Actor(c)
		if !ok {
			return
		}
		var req registry.ConfigUpdate
		if !respond.Bind(c, &req) {
			return
		}

		cfg, err := h.engine.SetConfig(c.Request.Context(), actor, req)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, cfg)
	}
}

// RotateAdminHandler hands the admin role to another actor.
// PUT /api/v1/admin/admin
func (h *Handlers) RotateAdminHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := respond.Actor(c)
		if !ok {
			return
		}
		var req RotateAdminRequest
		if !respond.Bind(c, &req) {
			return
		}

		cfg, err := h.engine.RotateAdmin(c.Request.Context(), actor, req.NewAdmin)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, cfg)
	}
}

// SetLifecycleHandler enables or disables writes.
// PUT /api/v1/admin/lifecycle
func (h *Handlers) SetLifecycleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := respond.Actor(c)
		if !ok {
			return
		}
		var req SetLifecycleRequest
		if !respond.Bind(c, &req) {
			return
		}

		lc, err := h.engine.SetLifecycle(c.Request.Context(), actor, *req.WritesAllowed, req.Note)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, lc)
	}
}

// SetMetadataHandler updates the global description and tags.
// PUT /api/v1/admin/metadata
func (h *Handlers) SetMetadataHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := respond.Actor(c)
		if !ok {
			return
		}
		var req registry.MetadataUpdate
		if !respond.Bind(c, &req) {
			return
		}

		md, err := h.engine.SetMetadata(c.Request.Context(), actor, req)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, md)
	}
}

// AdjustMetricsHandler overwrites a subset of the aggregate counters.
// PUT /api/v1/admin/metrics
func (h *Handlers) AdjustMetricsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := respond.Actor(c)
		if !ok {
			return
		}
		var req registry.MetricsAdjustment
		if !respond.Bind(c, &req) {
			return
		}

		summary, err := h.engine.RecordMetrics(c.Request.Context(), actor, req)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}
