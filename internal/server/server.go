// Package server exposes the HTTP API: document upload and management,
// task observation over SSE, unification and community-refresh triggers.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lodestone-kg/lodestone/internal/config"
	"github.com/lodestone-kg/lodestone/internal/events"
	"github.com/lodestone-kg/lodestone/internal/extract"
	"github.com/lodestone-kg/lodestone/internal/graphstore"
	"github.com/lodestone-kg/lodestone/internal/metastore"
	"github.com/lodestone-kg/lodestone/internal/objectstore"
	"github.com/lodestone-kg/lodestone/internal/pipeline"
	"github.com/lodestone-kg/lodestone/internal/task"
)

// Server is the HTTP API server.
type Server struct {
	cfg          config.ServerConfig
	pipelineCfg  config.PipelineConfig
	orchestrator *pipeline.Orchestrator
	tasks        *task.Service
	meta         metastore.Store
	objects      objectstore.Store
	graph        graphstore.Store
	fetcher      *extract.Fetcher
	bus          events.Bus
	logger       *slog.Logger

	engine *gin.Engine
	http   *http.Server
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New creates the server and registers routes.
func New(cfg config.Config, orchestrator *pipeline.Orchestrator, tasks *task.Service,
	meta metastore.Store, objects objectstore.Store, graph graphstore.Store,
	bus events.Bus, opts ...Option) *Server {

	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:          cfg.Server,
		pipelineCfg:  cfg.Pipeline,
		orchestrator: orchestrator,
		tasks:        tasks,
		meta:         meta,
		objects:      objects,
		graph:        graph,
		fetcher:      extract.NewFetcher(),
		bus:          bus,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(s.requestLogger())
	engine.Use(func(c *gin.Context) {
		c.Set("RequestID", uuid.NewString())
		c.Next()
	})
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Owner-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	engine.NoRoute(func(c *gin.Context) { c.JSON(http.StatusNotFound, gin.H{"error": "not found"}) })

	s.routes(engine)
	s.engine = engine
	return s
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/healthz", s.handleHealth)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/documents", s.handleUpload)
		v1.GET("/documents", s.handleListDocuments)
		v1.GET("/documents/:id", s.handleGetDocument)
		v1.DELETE("/documents/:id", s.handleDeleteDocument)
		v1.POST("/documents/:id/unify", s.handleUnify)

		v1.GET("/tasks", s.handleListTasks)
		v1.GET("/tasks/:id", s.handleGetTask)
		v1.GET("/tasks/:id/stream", s.handleStreamTask)
		v1.POST("/tasks/:id/cancel", s.handleCancelTask)

		v1.POST("/communities/refresh", s.handleRefreshCommunities)
	}
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Bind, s.cfg.Port)
	s.http = &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := time.Duration(s.cfg.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("http server shutting down")
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}

// ownerID resolves the calling owner. Authentication is delegated to the
// fronting proxy; the header carries the already-authenticated principal.
func ownerID(c *gin.Context) int64 {
	raw := c.GetHeader("X-Owner-ID")
	if raw == "" {
		return 1
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 1
	}
	return id
}

func (s *Server) handleHealth(c *gin.Context) {
	status := gin.H{
		"status": "ok",
		"graph":  s.graph.IsConnected(),
	}
	if counts, err := s.graph.Counts(c.Request.Context()); err == nil {
		status["counts"] = counts
	}
	c.JSON(http.StatusOK, status)
}
