// Package server exposes the registry over HTTP: REST endpoints for
// lifecycle control and a websocket stream per server console.
package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/spawnkit/spawnd/internal/console"
	"github.com/spawnkit/spawnd/internal/metrics"
	"github.com/spawnkit/spawnd/internal/registry"
	"github.com/spawnkit/spawnd/internal/supervisor"
)

// Router provides embeddable HTTP handlers for managing game servers.
// Endpoints (relative to basePath):
//
//	GET    /servers                  list runtime snapshots
//	GET    /servers/:id              one snapshot
//	POST   /servers/:id/start
//	POST   /servers/:id/stop
//	POST   /servers/:id/restart
//	POST   /servers/:id/kill
//	POST   /servers/:id/command      body: {"command": "..."}
//	GET    /servers/:id/console      buffered console history
//	DELETE /servers/:id/console
//	GET    /servers/:id/console/ws   websocket: history replay then live events
//	GET    /metrics                  Prometheus exposition
type Router struct {
	reg      *registry.Registry
	hub      *Hub
	basePath string
}

// NewRouter constructs a Router. hub may be nil to disable the websocket
// endpoint (embedding callers that bring their own streaming).
func NewRouter(reg *registry.Registry, hub *Hub, basePath string) *Router {
	return &Router{reg: reg, hub: hub, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in
// any server or mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.Use(requireSafeID)
	group.GET("/servers", r.handleList)
	group.GET("/servers/:id", r.handleStatus)
	group.POST("/servers/:id/start", r.lifecycle(r.reg.Start))
	group.POST("/servers/:id/stop", r.lifecycle(r.reg.Stop))
	group.POST("/servers/:id/restart", r.lifecycle(r.reg.Restart))
	group.POST("/servers/:id/kill", r.lifecycle(r.reg.Kill))
	group.POST("/servers/:id/command", r.handleCommand)
	group.GET("/servers/:id/console", r.handleConsole)
	group.DELETE("/servers/:id/console", r.handleClearConsole)
	if r.hub != nil {
		group.GET("/servers/:id/console/ws", r.handleConsoleWS)
	}
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, reg *registry.Registry, hub *Hub) *http.Server {
	r := NewRouter(reg, hub, basePath)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

type errorResp struct {
	Error string `json:"error"`
}

type commandReq struct {
	Command string `json:"command"`
}

func (r *Router) handleList(c *gin.Context) {
	c.JSON(http.StatusOK, r.reg.StatusAll())
}

func (r *Router) handleStatus(c *gin.Context) {
	info, err := r.reg.Status(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// requireSafeID rejects hostile id path parameters before any handler
// runs. Routes without an id pass through.
func requireSafeID(c *gin.Context) {
	if id := c.Param("id"); id != "" && !isSafeName(id) {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResp{Error: "invalid server id"})
		return
	}
	c.Next()
}

func (r *Router) lifecycle(op func(string) (supervisor.RuntimeInfo, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		info, err := op(c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, info)
	}
}

func (r *Router) handleCommand(c *gin.Context) {
	var req commandReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.Command == "" {
		c.JSON(http.StatusBadRequest, errorResp{Error: "command required"})
		return
	}
	if err := r.reg.SendCommand(c.Param("id"), req.Command); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (r *Router) handleConsole(c *gin.Context) {
	lines, err := r.reg.History(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lines": lines})
}

func (r *Router) handleClearConsole(c *gin.Context) {
	if err := r.reg.ClearHistory(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (r *Router) handleConsoleWS(c *gin.Context) {
	id := c.Param("id")
	if _, err := r.reg.Status(id); err != nil {
		writeError(c, err)
		return
	}
	history := func() []console.Line {
		lines, err := r.reg.History(id)
		if err != nil {
			return nil
		}
		return lines
	}
	if err := r.hub.Attach(c.Writer, c.Request, id, history); err != nil {
		// Upgrade failures already wrote a response.
		return
	}
}

// writeError maps domain errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var spawnErr *supervisor.SpawnError
	switch {
	case errors.Is(err, registry.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, registry.ErrPortInUse),
		errors.Is(err, supervisor.ErrNotRunning),
		errors.Is(err, supervisor.ErrClosed):
		status = http.StatusConflict
	case errors.As(err, &spawnErr):
		status = http.StatusBadGateway
	}
	c.JSON(status, errorResp{Error: err.Error()})
}
