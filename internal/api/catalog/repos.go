// Package catalog implements the handlers for repositories, modules, module
// versions, module links and forks. Path parameters are hex record addresses.
package catalog

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/modlink/registry-engine/internal/address"
	"github.com/modlink/registry-engine/internal/api/respond"
	"github.com/modlink/registry-engine/internal/registry"
)

// Handlers serves the catalog endpoints.
type Handlers struct {
	engine *registry.Engine
}

// NewHandlers creates a new Handlers instance
func NewHandlers(engine *registry.Engine) *Handlers {
	return &Handlers{engine: engine}
}

// RepoView is a repo together with its record address.
type RepoView struct {
	Address address.Key `json:"address"`
	*registry.Repo
}

func repoView(r *registry.Repo) RepoView { return RepoView{Address: r.Address(), Repo: r} }

// RegisterRepoHandler registers a repository owned by the caller.
// POST /api/v1/repos
func (h *Handlers) RegisterRepoHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := respond.Actor(c)
		if !ok {
			return
		}
		var req registry.RegisterRepoParams
		if !respond.Bind(c, &req) {
			return
		}

		repo, err := h.engine.RegisterRepo(c.Request.Context(), actor, req)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusCreated, repoView(repo))
	}
}

// ListReposHandler lists every repository.
// GET /api/v1/repos
func (h *Handlers) ListReposHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		repos, err := h.engine.Repos(c.Request.Context())
		if err != nil {
			respond.Error(c, err)
			return
		}
		views := make([]RepoView, 0, len(repos))
		for _, r := range repos {
			views = append(views, repoView(r))
		}
		c.JSON(http.StatusOK, gin.H{"repos": views, "count": len(views)})
	}
}

// GetRepoHandler returns one repository.
// GET /api/v1/repos/:repo
func (h *Handlers) GetRepoHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		addr, ok := respond.PathKey(c, "repo")
		if !ok {
			return
		}
		repo, err := h.engine.Repo(c.Request.Context(), addr)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, repoView(repo))
	}
}

// UpdateRepoHandler applies a partial update; only the repo authority may call it.
// PATCH /api/v1/repos/:repo
func (h *Handlers) UpdateRepoHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := respond.Actor(c)
		if !ok {
			return
		}
		addr, ok := respond.PathKey(c, "repo")
		if !ok {
			return
		}
		var req registry.RepoUpdate
		if !respond.Bind(c, &req) {
			return
		}

		repo, err := h.engine.UpdateRepo(c.Request.Context(), actor, addr, req)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, repoView(repo))
	}
}
