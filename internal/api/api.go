// Package api provides the HTTP API for the documentation service.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/loryanstrant/unifi-documenter/internal/config"
	"github.com/loryanstrant/unifi-documenter/internal/health"
	"github.com/loryanstrant/unifi-documenter/internal/model"
	"github.com/loryanstrant/unifi-documenter/internal/scheduler"
)

const service = "unifi-documenter"

// Scheduler is the part of the scheduler the API drives.
type Scheduler interface {
	State() scheduler.State
	Busy() bool
	NextRun() time.Time
	Trigger() error
}

// RunHistory exposes the most recent run.
type RunHistory interface {
	LastRun() (model.RunResult, bool)
}

// ConnectivityChecker contacts controllers on demand.
type ConnectivityChecker interface {
	Connectivity(ctx context.Context, controllers []config.ControllerConfig) health.ConnectivityReport
}

// Server represents the HTTP API server.
type Server struct {
	cfg          *config.Config
	version      string
	scheduler    Scheduler
	history      RunHistory
	connectivity ConnectivityChecker
	metrics      http.Handler
	logger       *zap.SugaredLogger
	router       *gin.Engine
}

// New creates a new API server. A nil metrics handler disables /metrics.
func New(
	cfg *config.Config,
	version string,
	sched Scheduler,
	history RunHistory,
	connectivity ConnectivityChecker,
	metrics http.Handler,
	logger *zap.SugaredLogger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:          cfg,
		version:      version,
		scheduler:    sched,
		history:      history,
		connectivity: connectivity,
		metrics:      metrics,
		logger:       logger,
		router:       gin.New(),
	}

	s.setupRoutes()
	return s
}

// Router returns the gin router.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())

	s.router.GET("/health", s.healthHandler)
	s.router.GET("/ready", s.readyHandler)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/status", s.statusHandler)
		v1.POST("/run", s.runHandler)
		v1.GET("/connectivity", s.connectivityHandler)
	}

	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics))
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		s.logger.Debugw("Request completed",
			"path", path,
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"duration", time.Since(start).String(),
		)
	}
}

func (s *Server) healthHandler(c *gin.Context) {
	report := health.Check(s.cfg, s.version)
	code := http.StatusOK
	if !report.Healthy() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, report)
}

// Ready once the scheduler has started and until it stops.
func (s *Server) readyHandler(c *gin.Context) {
	state := s.scheduler.State()
	if state != scheduler.StateRunning {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not_ready",
			"service": service,
			"state":   state.String(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ready",
		"service": service,
	})
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Service     string           `json:"service"`
	Version     string           `json:"version"`
	State       string           `json:"state"`
	Busy        bool             `json:"busy"`
	NextRun     *time.Time       `json:"next_run,omitempty"`
	Controllers int              `json:"controllers"`
	LastRun     *model.RunResult `json:"last_run,omitempty"`
}

func (s *Server) statusHandler(c *gin.Context) {
	resp := StatusResponse{
		Service:     service,
		Version:     s.version,
		State:       s.scheduler.State().String(),
		Busy:        s.scheduler.Busy(),
		Controllers: len(s.cfg.Controllers),
	}
	if next := s.scheduler.NextRun(); !next.IsZero() {
		resp.NextRun = &next
	}
	if last, ok := s.history.LastRun(); ok {
		resp.LastRun = &last
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) runHandler(c *gin.Context) {
	err := s.scheduler.Trigger()
	switch {
	case err == nil:
		s.logger.Infow("Documentation run requested via API")
		c.JSON(http.StatusAccepted, gin.H{
			"status":  "accepted",
			"message": "Documentation run started",
		})
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{
			"error": err.Error(),
		})
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": err.Error(),
		})
	}
}

func (s *Server) connectivityHandler(c *gin.Context) {
	report := s.connectivity.Connectivity(c.Request.Context(), s.cfg.Controllers)
	c.JSON(http.StatusOK, report)
}
