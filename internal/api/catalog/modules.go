// modules.go implements handlers for modules and their version snapshots.
package catalog

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/modlink/registry-engine/internal/address"
	"github.com/modlink/registry-engine/internal/api/respond"
	"github.com/modlink/registry-engine/internal/registry"
)

// ModuleView is a module together with its record address.
type ModuleView struct {
	Address address.Key `json:"address"`
	*registry.Module
}

// ModuleVersionView is a snapshot together with its record address.
type ModuleVersionView struct {
	Address address.Key `json:"address"`
	*registry.ModuleVersion
}

func moduleView(m *registry.Module) ModuleView { return ModuleView{Address: m.Address(), Module: m} }

func versionView(v *registry.ModuleVersion) ModuleVersionView {
	return ModuleVersionView{Address: v.Address(), ModuleVersion: v}
}

// RegisterModuleHandler registers a module under a repository, optionally
// snapshotting its first version.
// POST /api/v1/repos/:repo/modules
func (h *Handlers) RegisterModuleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := respond.Actor(c)
		if !ok {
			return
		}
		repoAddr, ok := respond.PathKey(c, "repo")
		if !ok {
			return
		}
		var req registry.RegisterModuleParams
		if !respond.Bind(c, &req) {
			return
		}

		module, err := h.engine.RegisterModule(c.Request.Context(), actor, repoAddr, req)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusCreated, moduleView(module))
	}
}

// ListModulesHandler lists the modules registered under a repository.
// GET /api/v1/repos/:repo/modules
func (h *Handlers) ListModulesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		repoAddr, ok := respond.PathKey(c, "repo")
		if !ok {
			return
		}
		if _, err := h.engine.Repo(c.Request.Context(), repoAddr); err != nil {
			respond.Error(c, err)
			return
		}
		modules, err := h.engine.Modules(c.Request.Context(), repoAddr)
		if err != nil {
			respond.Error(c, err)
			return
		}
		views := make([]ModuleView, 0, len(modules))
		for _, m := range modules {
			views = append(views, moduleView(m))
		}
		c.JSON(http.StatusOK, gin.H{"modules": views, "count": len(views)})
	}
}

// GetModuleHandler returns one module of a repository.
// GET /api/v1/repos/:repo/modules/:module
func (h *Handlers) GetModuleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		repoAddr, ok := respond.PathKey(c, "repo")
		if !ok {
			return
		}
		moduleAddr, ok := respond.PathKey(c, "module")
		if !ok {
			return
		}
		module, err := h.engine.Module(c.Request.Context(), moduleAddr)
		if err != nil {
			respond.Error(c, err)
			return
		}
		if module.Repo != repoAddr {
			c.JSON(http.StatusNotFound, gin.H{"error": "Module not found in repository", "code": registry.CodeNotFound})
			return
		}
		c.JSON(http.StatusOK, moduleView(module))
	}
}

// UpdateModuleHandler applies a partial update and optionally snapshots the new version.
// PATCH /api/v1/repos/:repo/modules/:module
func (h *Handlers) UpdateModuleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := respond.Actor(c)
		if !ok {
			return
		}
		repoAddr, ok := respond.PathKey(c, "repo")
		if !ok {
			return
		}
		moduleAddr, ok := respond.PathKey(c, "module")
		if !ok {
			return
		}
		var req registry.ModuleUpdate
		if !respond.Bind(c, &req) {
			return
		}

		module, err := h.engine.UpdateModule(c.Request.Context(), actor, repoAddr, moduleAddr, req)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, moduleView(module))
	}
}

// RecordUsageHandler counts one use of an active module. Any authenticated actor may call it.
// POST /api/v1/modules/:module/usage
func (h *Handlers) RecordUsageHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := respond.Actor(c)
		if !ok {
			return
		}
		moduleAddr, ok := respond.PathKey(c, "module")
		if !ok {
			return
		}

		module, err := h.engine.RecordModuleUsage(c.Request.Context(), actor, moduleAddr)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, moduleView(module))
	}
}

// ListVersionsHandler lists a module's snapshots, highest version first.
// GET /api/v1/modules/:module/versions
func (h *Handlers) ListVersionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		moduleAddr, ok := respond.PathKey(c, "module")
		if !ok {
			return
		}
		if _, err := h.engine.Module(c.Request.Context(), moduleAddr); err != nil {
			respond.Error(c, err)
			return
		}
		versions, err := h.engine.ModuleVersions(c.Request.Context(), moduleAddr)
		if err != nil {
			respond.Error(c, err)
			return
		}
		views := make([]ModuleVersionView, 0, len(versions))
		for _, v := range versions {
			views = append(views, versionView(v))
		}
		c.JSON(http.StatusOK, gin.H{"versions": views, "count": len(views)})
	}
}

// GetVersionHandler returns one snapshot. The version may carry a leading "v".
// GET /api/v1/modules/:module/versions/:version
func (h *Handlers) GetVersionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		moduleAddr, ok := respond.PathKey(c, "module")
		if !ok {
			return
		}
		v, ok := respond.PathVersion(c, "version")
		if !ok {
			return
		}

		mv, err := h.engine.ModuleVersion(c.Request.Context(), moduleAddr, v)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, versionView(mv))
	}
}

// DeprecateVersionHandler marks a snapshot deprecated; only the repo authority may call it.
// POST /api/v1/repos/:repo/modules/:module/versions/:version/deprecate
func (h *Handlers) DeprecateVersionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := respond.Actor(c)
		if !ok {
			return
		}
		repoAddr, ok := respond.PathKey(c, "repo")
		if !ok {
			return
		}
		moduleAddr, ok := respond.PathKey(c, "module")
		if !ok {
			return
		}
		v, ok := respond.PathVersion(c, "version")
		if !ok {
			return
		}

		mv, err := h.engine.DeprecateModuleVersion(c.Request.Context(), actor, repoAddr, moduleAddr, v)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, versionView(mv))
	}
}
