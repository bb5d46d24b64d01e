package controllers

import (
	"errors"
	"fmt"

	"stack-keeper/internal/models"
	"stack-keeper/services"

	"github.com/gin-gonic/gin"
)

type ServiceController struct {
	server *services.Server
}

/**
 * Create new Service controller instance
 * @param {*services.Server} server - Coordination layer instance
 * @returns {*ServiceController} New Service controller instance
 * @description
 * - Handles single-service and whole-stack lifecycle routes
 */
func NewServiceController(server *services.Server) *ServiceController {
	return &ServiceController{
		server: server,
	}
}

/**
 * Register all service API routes to Gin router group
 * @param {*gin.Engine} r - Gin router instance
 * @description
 * - Registers routes for:
 *   - Service management (list/get/start/stop/restart)
 *   - Stack-wide operations (start/stop/restart)
 */
func (s *ServiceController) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	api.GET("/services", s.ListServices)
	api.GET("/services/:name", s.GetService)
	api.POST("/services/:name/start", s.StartService)
	api.POST("/services/:name/stop", s.StopService)
	api.POST("/services/:name/restart", s.RestartService)
	api.POST("/stack/start", s.StartStack)
	api.POST("/stack/stop", s.StopStack)
	api.POST("/stack/restart", s.RestartStack)
}

// writeStartError maps supervisor errors to stable API error codes.
func writeStartError(c *gin.Context, err error) {
	var conflict *services.PortConflictError
	var launch *services.LaunchError
	var probe *services.ProbeTimeoutError

	switch {
	case errors.As(err, &conflict):
		c.JSON(409, &models.ErrorResponse{
			Code:  models.CodePortConflict,
			Error: conflict.Error(),
			Conflict: &models.PortConflictInfo{
				Port: conflict.Port,
				Pids: conflict.Pids,
			},
		})
	case errors.As(err, &launch):
		c.JSON(500, &models.ErrorResponse{
			Code:  models.CodeLaunchFailed,
			Error: launch.Error(),
		})
	case errors.As(err, &probe):
		c.JSON(500, &models.ErrorResponse{
			Code:  models.CodeProbeTimeout,
			Error: probe.Error(),
		})
	default:
		c.JSON(500, &models.ErrorResponse{
			Error: err.Error(),
		})
	}
}

// ListServices lists all managed services
//
//	@Summary		List all services
//	@Description	Get list of all managed services with their current status
//	@Tags			Services
//	@Produce		json
//	@Success		200	{array}	models.ServiceDetail	"List of service instances"
//	@Router			/api/v1/services [get]
func (s *ServiceController) ListServices(c *gin.Context) {
	c.JSON(200, s.server.Services().Snapshot())
}

// GetService returns one service's detail
//
//	@Summary		Get service
//	@Description	Get a single service's status, pid, listening flag and last exit
//	@Tags			Services
//	@Produce		json
//	@Param			name	path		string					true	"Service name"
//	@Success		200		{object}	models.ServiceDetail	"Service detail"
//	@Failure		404		{object}	models.ErrorResponse	"Service not found error response"
//	@Router			/api/v1/services/{name} [get]
func (s *ServiceController) GetService(c *gin.Context) {
	name := c.Param("name")

	svc := s.server.Services().GetInstance(name)
	if svc == nil {
		c.JSON(404, &models.ErrorResponse{
			Code:  models.CodeServiceNotExist,
			Error: fmt.Sprintf("service [%s] isn't exist", name),
		})
		return
	}
	c.JSON(200, svc.GetDetail())
}

// StartService starts a specific service by name
//
//	@Summary		Start service
//	@Description	Start a specific service by its name; no-op when already running
//	@Tags			Services
//	@Produce		json
//	@Param			name	path		string					true	"Service name"
//	@Success		200		{object}	models.ServiceDetail	"Service detail after start"
//	@Failure		404		{object}	models.ErrorResponse	"Service not found error response"
//	@Failure		409		{object}	models.ErrorResponse	"Port conflict error response"
//	@Failure		500		{object}	models.ErrorResponse	"Launch or probe failure response"
//	@Router			/api/v1/services/{name}/start [post]
func (s *ServiceController) StartService(c *gin.Context) {
	name := c.Param("name")

	svc := s.server.Services().GetInstance(name)
	if svc == nil {
		c.JSON(404, &models.ErrorResponse{
			Code:  models.CodeServiceNotExist,
			Error: fmt.Sprintf("service [%s] isn't exist", name),
		})
		return
	}
	if err := s.server.Services().StartService(c.Request.Context(), name); err != nil {
		writeStartError(c, err)
		return
	}
	c.JSON(200, svc.GetDetail())
}

// StopService stops a specific service by name
//
//	@Summary		Stop service
//	@Description	Stop a specific service by its name; no-op when already stopped
//	@Tags			Services
//	@Produce		json
//	@Param			name	path		string					true	"Service name"
//	@Success		200		{object}	models.ServiceDetail	"Service detail after stop"
//	@Failure		404		{object}	models.ErrorResponse	"Service not found error response"
//	@Failure		500		{object}	models.ErrorResponse	"Internal server error response"
//	@Router			/api/v1/services/{name}/stop [post]
func (s *ServiceController) StopService(c *gin.Context) {
	name := c.Param("name")

	svc := s.server.Services().GetInstance(name)
	if svc == nil {
		c.JSON(404, &models.ErrorResponse{
			Code:  models.CodeServiceNotExist,
			Error: fmt.Sprintf("service [%s] isn't exist", name),
		})
		return
	}
	if err := s.server.Services().StopService(name); err != nil {
		c.JSON(500, &models.ErrorResponse{
			Error: err.Error(),
		})
		return
	}
	c.JSON(200, svc.GetDetail())
}

// RestartService restarts a specific service by name
//
//	@Summary		Restart service
//	@Description	Restart a specific service by its name
//	@Tags			Services
//	@Produce		json
//	@Param			name	path		string					true	"Service name"
//	@Success		200		{object}	models.ServiceDetail	"Service detail after restart"
//	@Failure		404		{object}	models.ErrorResponse	"Service not found error response"
//	@Failure		409		{object}	models.ErrorResponse	"Port conflict error response"
//	@Failure		500		{object}	models.ErrorResponse	"Launch or probe failure response"
//	@Router			/api/v1/services/{name}/restart [post]
func (s *ServiceController) RestartService(c *gin.Context) {
	name := c.Param("name")

	svc := s.server.Services().GetInstance(name)
	if svc == nil {
		c.JSON(404, &models.ErrorResponse{
			Code:  models.CodeServiceNotExist,
			Error: fmt.Sprintf("service [%s] isn't exist", name),
		})
		return
	}
	if err := s.server.Services().RestartService(c.Request.Context(), name); err != nil {
		writeStartError(c, err)
		return
	}
	c.JSON(200, svc.GetDetail())
}

// StartStack starts every service in declaration order
//
//	@Summary		Start stack
//	@Description	Start all services in declaration order; per-service failures do not abort the rest
//	@Tags			Stack
//	@Produce		json
//	@Success		200	{array}	models.ServiceDetail	"State of every service after the operation"
//	@Router			/api/v1/stack/start [post]
func (s *ServiceController) StartStack(c *gin.Context) {
	s.server.Services().StartAll(c.Request.Context())
	c.JSON(200, s.server.Services().Snapshot())
}

// StopStack stops every service in reverse declaration order
//
//	@Summary		Stop stack
//	@Description	Stop all services in reverse declaration order
//	@Tags			Stack
//	@Produce		json
//	@Success		200	{array}	models.ServiceDetail	"State of every service after the operation"
//	@Router			/api/v1/stack/stop [post]
func (s *ServiceController) StopStack(c *gin.Context) {
	s.server.Services().StopAll()
	c.JSON(200, s.server.Services().Snapshot())
}

// RestartStack stops then starts the whole stack
//
//	@Summary		Restart stack
//	@Description	Stop all services, then start them again in declaration order
//	@Tags			Stack
//	@Produce		json
//	@Success		200	{array}	models.ServiceDetail	"State of every service after the operation"
//	@Router			/api/v1/stack/restart [post]
func (s *ServiceController) RestartStack(c *gin.Context) {
	s.server.Services().StopAll()
	s.server.Services().StartAll(c.Request.Context())
	c.JSON(200, s.server.Services().Snapshot())
}
