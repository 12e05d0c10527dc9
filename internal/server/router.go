package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/procman/internal/config"
	mng "github.com/loykin/procman/internal/manager"
	"github.com/loykin/procman/internal/process"
)

// Router provides embeddable HTTP handlers for the process registry.
// Endpoints (relative to basePath):
//
//	GET    /processes        list registered processes
//	GET    /processes/:name  one process plus its resource usage
//	POST   /processes        register; body: registerReq JSON
//	DELETE /processes/:name  stop and deregister
type Router struct {
	mgr      *mng.Manager
	basePath string
}

// NewRouter constructs a new Router with configurable basePath.
func NewRouter(mgr *mng.Manager, basePath string) *Router {
	return &Router{mgr: mgr, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/processes", r.handleList)
	group.GET("/processes/:name", r.handleGet)
	group.POST("/processes", r.handleRegister)
	group.DELETE("/processes/:name", r.handleStop)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, mgr *mng.Manager) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(mgr, basePath).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

type errorResp struct {
	Error string `json:"error"`
}

type registerReq struct {
	Name    string   `json:"name"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	WorkDir string   `json:"work_dir,omitempty"`
	Env     []string `json:"env,omitempty"`
}

type processResp struct {
	mng.Info
	Usage *process.Usage `json:"usage,omitempty"`
}

func (r *Router) handleList(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.mgr.List())
}

func (r *Router) handleGet(c *gin.Context) {
	info, err := r.mgr.Info(c.Param("name"))
	if err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	resp := processResp{Info: info}
	if !info.Terminated {
		// Usage is best effort; the process may have just exited.
		if u, err := process.UsageOf(info.PID); err == nil {
			resp.Usage = &u
		}
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleRegister(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if !config.ValidName(req.Name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid name: allowed [A-Za-z0-9._-], at most 64 characters"})
		return
	}
	if !isSafeAbsPath(req.WorkDir) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid work_dir: must be absolute path without traversal"})
		return
	}
	spec := process.Spec{Command: req.Command, Args: req.Args, WorkDir: req.WorkDir, Env: req.Env}
	if err := r.mgr.Register(req.Name, spec); err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	info, err := r.mgr.Info(req.Name)
	if err != nil {
		// Already exited and removed by the director.
		writeJSON(c, http.StatusCreated, mng.Info{Name: req.Name})
		return
	}
	writeJSON(c, http.StatusCreated, info)
}

func (r *Router) handleStop(c *gin.Context) {
	if err := r.mgr.Stop(c.Param("name")); err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
