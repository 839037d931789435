// forks.go implements handlers for module links and fork lineage records.
package catalog

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/modlink/registry-engine/internal/address"
	"github.com/modlink/registry-engine/internal/api/respond"
	"github.com/modlink/registry-engine/internal/registry"
)

// ForkView is a fork together with its record address.
type ForkView struct {
	Address address.Key `json:"address"`
	*registry.Fork
}

func forkView(f *registry.Fork) ForkView { return ForkView{Address: f.Address(), Fork: f} }

// TransferForkRequest is the body of PUT /api/v1/forks/:fork/owner.
type TransferForkRequest struct {
	NewOwner address.Key `json:"new_owner" binding:"required"`
}

// LinkModuleHandler creates or updates the link between a module and a repository.
// PUT /api/v1/modules/:module/links/:repo
func (h *Handlers) LinkModuleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := respond.Actor(c)
		if !ok {
			return
		}
		moduleAddr, ok := respond.PathKey(c, "module")
		if !ok {
			return
		}
		repoAddr, ok := respond.PathKey(c, "repo")
		if !ok {
			return
		}
		var req registry.LinkParams
		if !respond.Bind(c, &req) {
			return
		}

		link, err := h.engine.LinkModuleToRepo(c.Request.Context(), actor, moduleAddr, repoAddr, req)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, link)
	}
}

// ListLinksHandler lists the repositories a module is linked to.
// GET /api/v1/modules/:module/links
func (h *Handlers) ListLinksHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		moduleAddr, ok := respond.PathKey(c, "module")
		if !ok {
			return
		}
		links, err := h.engine.Links(c.Request.Context(), moduleAddr)
		if err != nil {
			respond.Error(c, err)
			return
		}
		if links == nil {
			links = []*registry.ModuleRepoLink{}
		}
		c.JSON(http.StatusOK, gin.H{"links": links, "count": len(links)})
	}
}

// CreateForkHandler records a new fork owned by the caller.
// POST /api/v1/forks
func (h *Handlers) CreateForkHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := respond.Actor(c)
		if !ok {
			return
		}
		var req registry.CreateForkParams
		if !respond.Bind(c, &req) {
			return
		}

		fork, err := h.engine.CreateFork(c.Request.Context(), actor, req)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusCreated, forkView(fork))
	}
}

// ListForksHandler lists forks, filtered to the children of ?parent= when given.
// GET /api/v1/forks
func (h *Handlers) ListForksHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		parent := address.Zero
		if p := c.Query("parent"); p != "" {
			k, err := address.Parse(p)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid parent: " + err.Error()})
				return
			}
			parent = k
		}

		forks, err := h.engine.Forks(c.Request.Context(), parent)
		if err != nil {
			respond.Error(c, err)
			return
		}
		views := make([]ForkView, 0, len(forks))
		for _, f := range forks {
			views = append(views, forkView(f))
		}
		c.JSON(http.StatusOK, gin.H{"forks": views, "count": len(views)})
	}
}

// GetForkHandler returns one fork.
// GET /api/v1/forks/:fork
func (h *Handlers) GetForkHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		addr, ok := respond.PathKey(c, "fork")
		if !ok {
			return
		}
		fork, err := h.engine.Fork(c.Request.Context(), addr)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, forkView(fork))
	}
}

// UpdateForkHandler applies a partial update; only the owner may call it.
// PATCH /api/v1/forks/:fork
func (h *Handlers) UpdateForkHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := respond.Actor(c)
		if !ok {
			return
		}
		addr, ok := respond.PathKey(c, "fork")
		if !ok {
			return
		}
		var req registry.ForkUpdate
		if !respond.Bind(c, &req) {
			return
		}

		fork, err := h.engine.UpdateForkState(c.Request.Context(), actor, addr, req)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, forkView(fork))
	}
}

// TransferForkHandler hands a fork to a new owner.
// PUT /api/v1/forks/:fork/owner
func (h *Handlers) TransferForkHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := respond.Actor(c)
		if !ok {
			return
		}
		addr, ok := respond.PathKey(c, "fork")
		if !ok {
			return
		}
		var req TransferForkRequest
		if !respond.Bind(c, &req) {
			return
		}

		fork, err := h.engine.TransferFork(c.Request.Context(), actor, addr, req.NewOwner)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, forkView(fork))
	}
}
