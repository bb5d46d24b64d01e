package controllers

import (
	"stack-keeper/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type APIController struct {
	server *services.Server
}

/**
 * Create new API controller instance
 * @param {*services.Server} server - Coordination layer instance
 * @returns {*APIController} New API controller instance
 * @description
 * - Serves the probes that live outside the /api/v1 group
 */
func NewAPIController(server *services.Server) *APIController {
	return &APIController{
		server: server,
	}
}

/**
 * Register probe routes to Gin engine
 * @param {*gin.Engine} r - Gin router instance
 * @description
 * - Registers /healthz and the Prometheus scrape endpoint
 */
func (a *APIController) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", a.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Healthz reports keeper readiness
//
//	@Summary		Readiness probe
//	@Description	Returns keeper version, start time, request counters and the stack-fault flag
//	@Tags			System
//	@Produce		json
//	@Success		200	{object}	models.HealthResponse
//	@Router			/healthz [get]
func (a *APIController) Healthz(c *gin.Context) {
	c.JSON(200, a.server.GetHealthz())
}
