package controllers

import (
	"fmt"

	"stack-keeper/internal/models"
	"stack-keeper/services"

	"github.com/gin-gonic/gin"
)

type GitController struct {
	server *services.Server
}

/**
 * Create new Git controller instance
 * @param {*services.Server} server - Coordination layer instance
 * @returns {*GitController} New Git controller instance
 * @description
 * - Exposes cached repository state, explicit refresh, and the
 *   fast-forward-only update operation
 */
func NewGitController(server *services.Server) *GitController {
	return &GitController{
		server: server,
	}
}

/**
 * Register git API routes to Gin router group
 * @param {*gin.Engine} r - Gin router instance
 */
func (g *GitController) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	api.GET("/git", g.ListRepos)
	api.GET("/git/:repo", g.GetRepo)
	api.POST("/git/:repo/refresh", g.RefreshRepo)
	api.POST("/git/:repo/update", g.UpdateRepo)
}

// ListRepos returns the cached state of every repository
//
//	@Summary		List repositories
//	@Description	Get the cached branch/dirty/ahead-behind state of all managed repositories
//	@Tags			Git
//	@Produce		json
//	@Success		200	{array}	models.RepoState	"Cached repository states"
//	@Router			/api/v1/git [get]
func (g *GitController) ListRepos(c *gin.Context) {
	c.JSON(200, g.server.Git().StatusAll())
}

// GetRepo returns one repository's cached state
//
//	@Summary		Get repository
//	@Description	Get the cached state of a single repository without touching the network
//	@Tags			Git
//	@Produce		json
//	@Param			repo	path		string					true	"Repository name"
//	@Success		200		{object}	models.RepoState		"Cached repository state"
//	@Failure		404		{object}	models.ErrorResponse	"Repository not found error response"
//	@Router			/api/v1/git/{repo} [get]
func (g *GitController) GetRepo(c *gin.Context) {
	repo := c.Param("repo")

	state, err := g.server.Git().Status(repo)
	if err != nil {
		c.JSON(404, &models.ErrorResponse{
			Code:  models.CodeRepoNotExist,
			Error: fmt.Sprintf("repo [%s] isn't exist", repo),
		})
		return
	}
	c.JSON(200, state)
}

// RefreshRepo re-fetches one repository's remote-tracking state
//
//	@Summary		Refresh repository
//	@Description	Run a bounded fetch and recompute the repository's state. A failed fetch keeps last-known-good data and reports lastError.
//	@Tags			Git
//	@Produce		json
//	@Param			repo	path		string					true	"Repository name"
//	@Success		200		{object}	models.RepoState		"Refreshed repository state"
//	@Failure		404		{object}	models.ErrorResponse	"Repository not found error response"
//	@Router			/api/v1/git/{repo}/refresh [post]
func (g *GitController) RefreshRepo(c *gin.Context) {
	repo := c.Param("repo")

	state, err := g.server.Git().Refresh(c.Request.Context(), repo)
	if err != nil {
		c.JSON(404, &models.ErrorResponse{
			Code:  models.CodeRepoNotExist,
			Error: fmt.Sprintf("repo [%s] isn't exist", repo),
		})
		return
	}
	c.JSON(200, state)
}

// UpdateRepo fast-forwards one repository and restarts dependent services
//
//	@Summary		Update repository
//	@Description	Attempt a fast-forward-only update. Dirty, detached and upstream-less checkouts are skipped, never modified. Services mapped to the repository restart only when HEAD moved.
//	@Tags			Git
//	@Produce		json
//	@Param			repo	path		string					true	"Repository name"
//	@Success		200		{object}	models.UpdateResponse	"Update outcome plus restarted services"
//	@Failure		404		{object}	models.ErrorResponse	"Repository not found error response"
//	@Router			/api/v1/git/{repo}/update [post]
func (g *GitController) UpdateRepo(c *gin.Context) {
	repo := c.Param("repo")

	response, err := g.server.UpdateRepo(c.Request.Context(), repo)
	if err != nil {
		c.JSON(404, &models.ErrorResponse{
			Code:  models.CodeRepoNotExist,
			Error: fmt.Sprintf("repo [%s] isn't exist", repo),
		})
		return
	}
	c.JSON(200, response)
}
