package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/minekeeper/minekeeper/internal/config"
	"github.com/minekeeper/minekeeper/internal/metrics"
	"github.com/minekeeper/minekeeper/internal/supervisor"
)

// Router exposes the control surface for the supervised server.
// Endpoints (relative to basePath):
//
//	GET  /status   lifecycle snapshot plus connection endpoints
//	POST /start    launch the server
//	POST /stop     graceful-then-forced stop
//	POST /command  body: {"command": "..."} forwarded to the server console
//	GET  /health   daemon liveness, independent of the supervised server
//	GET  /metrics  Prometheus metrics
//
// Domain failures are conveyed by success:false in a 200 response; HTTP
// status codes are reserved for transport-level problems.
type Router struct {
	sup       *supervisor.Supervisor
	endpoints config.EndpointsConfig
	basePath  string
}

func NewRouter(sup *supervisor.Supervisor, endpoints config.EndpointsConfig, basePath string) *Router {
	return &Router{sup: sup, endpoints: endpoints, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.POST("/command", r.handleCommand)
	group.GET("/health", r.handleHealth)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr string, r *Router) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

// --- Handlers ---

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type endpointsView struct {
	Host        string `json:"host"`
	JavaPort    int    `json:"java_port,omitempty"`
	BedrockPort int    `json:"bedrock_port,omitempty"`
}

type statusResponse struct {
	Success   bool              `json:"success"`
	Server    supervisor.Status `json:"server"`
	Endpoints endpointsView     `json:"endpoints"`
}

type commandRequest struct {
	Command string `json:"command"`
}

func (r *Router) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, statusResponse{
		Success: true,
		Server:  r.sup.Status(),
		Endpoints: endpointsView{
			Host:        r.endpoints.Host,
			JavaPort:    r.endpoints.JavaPort,
			BedrockPort: r.endpoints.BedrockPort,
		},
	})
}

func (r *Router) handleStart(c *gin.Context) {
	if err := r.sup.Start(); err != nil {
		c.JSON(http.StatusOK, response{Success: false, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, response{Success: true, Message: "server starting"})
}

func (r *Router) handleStop(c *gin.Context) {
	if err := r.sup.Stop(); err != nil {
		c.JSON(http.StatusOK, response{Success: false, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, response{Success: true, Message: "server stopping"})
}

func (r *Router) handleCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response{Success: false, Message: "invalid JSON: " + err.Error()})
		return
	}
	if req.Command == "" {
		c.JSON(http.StatusOK, response{Success: false, Message: "command required"})
		return
	}
	if len(req.Command) >= r.sup.CommandLimit() {
		c.JSON(http.StatusOK, response{Success: false, Message: "command too long"})
		return
	}
	// Whether the command reaches the server is not reported: the endpoint
	// is unauthenticated and must not leak state.
	if err := r.sup.SendCommand(req.Command); err != nil {
		c.JSON(http.StatusOK, response{Success: false, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, response{Success: true, Message: "command dispatched"})
}

func (r *Router) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, response{Success: true, Message: "alive"})
}
