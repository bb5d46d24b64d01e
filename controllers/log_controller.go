package controllers

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"stack-keeper/internal/models"
	"stack-keeper/services"

	"github.com/gin-gonic/gin"
)

// subscriberWait bounds each blocking wait inside the SSE loop, so a
// disconnected client is detected within this interval.
const subscriberWait = 1500 * time.Millisecond

type LogController struct {
	server *services.Server
}

/**
 * Create new Log controller instance
 * @param {*services.Server} server - Coordination layer instance
 * @returns {*LogController} New Log controller instance
 * @description
 * - Serves both the one-shot poll endpoint and the SSE push stream
 */
func NewLogController(server *services.Server) *LogController {
	return &LogController{
		server: server,
	}
}

/**
 * Register log API routes to Gin router group
 * @param {*gin.Engine} r - Gin router instance
 */
func (l *LogController) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	api.GET("/logs/stream", l.StreamLogs)
	api.GET("/logs/:service", l.GetLogs)
}

// GetLogs returns retained log entries for one service
//
//	@Summary		Poll logs
//	@Description	Return retained entries for a service. since= returns entries newer than the given id; tail= returns the newest N. truncated flags a gap after the since cursor caused by eviction.
//	@Tags			Logs
//	@Produce		json
//	@Param			service	path		string	true	"Service name"
//	@Param			since	query		int		false	"Return entries with id greater than this"
//	@Param			tail	query		int		false	"Return only the newest N entries (default 100 without since)"
//	@Success		200		{object}	models.LogPage			"Log page with cursor bounds"
//	@Failure		404		{object}	models.ErrorResponse	"Service not found error response"
//	@Router			/api/v1/logs/{service} [get]
func (l *LogController) GetLogs(c *gin.Context) {
	service := c.Param("service")

	if l.server.Services().GetInstance(service) == nil {
		c.JSON(404, &models.ErrorResponse{
			Code:  models.CodeServiceNotExist,
			Error: fmt.Sprintf("service [%s] isn't exist", service),
		})
		return
	}

	store := l.server.Logs()
	page := models.LogPage{
		Service: service,
		MinID:   store.MinID(service),
		MaxID:   store.MaxID(service),
	}

	if sinceStr, ok := c.GetQuery("since"); ok {
		since, err := strconv.ParseInt(sinceStr, 10, 64)
		if err != nil || since < 0 {
			c.JSON(400, &models.ErrorResponse{
				Code:  models.CodeOperationRejected,
				Error: "since must be a non-negative integer",
			})
			return
		}
		page.Entries = store.Since(service, since)
		// The cursor points before the oldest retained entry: data was lost.
		page.Truncated = page.MinID > since+1
	} else {
		tail := 100
		if tailStr, ok := c.GetQuery("tail"); ok {
			n, err := strconv.Atoi(tailStr)
			if err != nil || n < 0 {
				c.JSON(400, &models.ErrorResponse{
					Code:  models.CodeOperationRejected,
					Error: "tail must be a non-negative integer",
				})
				return
			}
			tail = n
		}
		page.Entries = store.Tail(service, tail)
	}
	c.JSON(200, page)
}

// StreamLogs pushes log entries over Server-Sent Events
//
//	@Summary		Stream logs
//	@Description	Push new entries as SSE events. service=all merges every service's stream. since= replays retained entries newer than the given id before going live (single-service only). A comment line is emitted as keep-alive while idle.
//	@Tags			Logs
//	@Produce		text/event-stream
//	@Param			service	query		string	false	"Service name or 'all' (default all)"
//	@Param			since	query		int		false	"Replay entries with id greater than this before following"
//	@Failure		400		{object}	models.ErrorResponse	"Invalid cursor error response"
//	@Failure		404		{object}	models.ErrorResponse	"Service not found error response"
//	@Router			/api/v1/logs/stream [get]
func (l *LogController) StreamLogs(c *gin.Context) {
	service := c.DefaultQuery("service", services.AllServices)

	if service != services.AllServices && l.server.Services().GetInstance(service) == nil {
		c.JSON(404, &models.ErrorResponse{
			Code:  models.CodeServiceNotExist,
			Error: fmt.Sprintf("service [%s] isn't exist", service),
		})
		return
	}

	store := l.server.Logs()

	// Per-service cursors: each subscriber tracks its own position, so a slow
	// reader only ever loses entries the ring itself evicted.
	cursors := make(map[string]int64)
	if service == services.AllServices {
		for _, name := range store.Services() {
			cursors[name] = store.MaxID(name)
		}
	} else {
		cursors[service] = store.MaxID(service)
		if sinceStr, ok := c.GetQuery("since"); ok {
			since, err := strconv.ParseInt(sinceStr, 10, 64)
			if err != nil || since < 0 {
				c.JSON(400, &models.ErrorResponse{
					Code:  models.CodeOperationRejected,
					Error: "since must be a non-negative integer",
				})
				return
			}
			cursors[service] = since
		}
	}
	seqCursor := store.Seq()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		if ctx.Err() != nil {
			return false
		}

		batch := l.collect(service, cursors)
		if len(batch) == 0 {
			waitCursor := cursors[service]
			if service == services.AllServices {
				waitCursor = seqCursor
			}
			if !store.WaitForNew(service, waitCursor, subscriberWait) {
				// Idle: emit an SSE comment so dead connections surface.
				fmt.Fprint(w, ": keep-alive\n\n")
				return ctx.Err() == nil
			}
			seqCursor = store.Seq()
			batch = l.collect(service, cursors)
		}

		for _, entry := range batch {
			payload, err := json.Marshal(entry)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "id: %d\nevent: log\ndata: %s\n\n", entry.ID, payload)
		}
		return ctx.Err() == nil
	})
}

// collect drains new entries past the cursors, merged in time order for the
// all-services view, and advances the cursors.
func (l *LogController) collect(service string, cursors map[string]int64) []models.LogEntry {
	store := l.server.Logs()

	var names []string
	if service == services.AllServices {
		names = store.Services()
	} else {
		names = []string{service}
	}

	var out []models.LogEntry
	for _, name := range names {
		entries := store.Since(name, cursors[name])
		if len(entries) == 0 {
			continue
		}
		cursors[name] = entries[len(entries)-1].ID
		out = append(out, entries...)
	}
	if service == services.AllServices && len(out) > 1 {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Time.Before(out[j].Time)
		})
	}
	return out
}
