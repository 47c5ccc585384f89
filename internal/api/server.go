// Package api exposes the roster, the run history and run control over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/IshaanNene/pubharvest/internal/engine"
	"github.com/IshaanNene/pubharvest/internal/store"
	"github.com/IshaanNene/pubharvest/internal/types"
)

// RunController is the interface the API uses to control harvest runs.
type RunController interface {
	Start(opts engine.StartOptions) error
	Stop() error
	Current() engine.Status
}

// Server provides a REST API for the roster and run control.
type Server struct {
	router  *gin.Engine
	port    int
	runs    RunController
	roster  *store.Roster
	history *store.RunService
	logger  *slog.Logger
	srv     *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics serves h at path.
func WithMetrics(path string, h http.Handler) Option {
	return func(s *Server) {
		if path == "" {
			path = "/metrics"
		}
		s.router.GET(path, gin.WrapH(h))
	}
}

// NewServer creates a new API server over repo and the run controller.
func NewServer(port int, repo store.Repository, runs RunController, logger *slog.Logger, opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		router:  gin.New(),
		port:    port,
		runs:    runs,
		roster:  store.NewRoster(repo),
		history: store.NewRunService(repo),
		logger:  logger.With("component", "api_server"),
	}
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.registerRoutes()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the API server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("API server starting", "addr", addr)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.router.GET("/", s.handleDashboard)

	api := s.router.Group("/api")

	api.GET("/health", s.handleHealth)

	// Roster
	api.GET("/roster", s.handleListRoster)
	api.POST("/roster", s.handleAddRoster)

	// Runs
	api.GET("/runs", s.handleListRuns)
	api.GET("/runs/current", s.handleCurrentRun)
	api.GET("/runs/:key", s.handleGetRun)
	api.POST("/runs", s.handleStartRun)
	api.POST("/runs/stop", s.handleStopRun)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleListRoster(c *gin.Context) {
	var src types.Source
	if raw := strings.TrimSpace(c.Query("source")); raw != "" {
		parsed, err := types.ParseSource(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		src = parsed
	}

	entries, err := s.roster.List(c.Request.Context(), src)
	if err != nil {
		s.logger.Error("list roster failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries, "count": len(entries)})
}

type addRosterRequest struct {
	Name       string `json:"name" binding:"required"`
	ProfileURL string `json:"profile_url" binding:"required"`
	Source     string `json:"source" binding:"required"`
}

func (s *Server) handleAddRoster(c *gin.Context) {
	var body addRosterRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON: " + err.Error()})
		return
	}
	src, err := types.ParseSource(body.Source)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := s.roster.Add(c.Request.Context(), body.Name, body.ProfileURL, src)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.logger.Info("roster entry added", "name", entry.Name, "source", entry.Source)
	c.JSON(http.StatusCreated, entry)
}

func (s *Server) handleListRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 20
	}
	runs, err := s.history.List(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("list runs failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": runs, "count": len(runs)})
}

func (s *Server) handleGetRun(c *gin.Context) {
	run, err := s.history.Get(c.Request.Context(), c.Param("key"))
	if errors.Is(err, types.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleCurrentRun(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run control not available"})
		return
	}
	c.JSON(http.StatusOK, s.runs.Current())
}

func (s *Server) handleStartRun(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run control not available"})
		return
	}
	var opts engine.StartOptions
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&opts); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON: " + err.Error()})
			return
		}
	}
	opts.Trigger = "api"

	err := s.runs.Start(opts)
	switch {
	case errors.Is(err, types.ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, types.ErrUnknownSource):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		s.logger.Error("start run failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

func (s *Server) handleStopRun(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run control not available"})
		return
	}
	if err := s.runs.Stop(); err != nil {
		if errors.Is(err, types.ErrNoRunInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "stopping"})
}

// requestLogger logs each request through slog.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
