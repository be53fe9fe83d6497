// Package server exposes the communities and summaries of a pipeline run to
// a retrieval layer over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/go-graphrag/pkg/config"
	"github.com/soundprediction/go-graphrag/pkg/server/handlers"
)

// Server is the HTTP API.
type Server struct {
	config     *config.Config
	graph      handlers.Graph
	router     *gin.Engine
	httpServer *http.Server
	logger     *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for request logs.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a server over the read side of a pipeline.
func New(cfg *config.Config, graph handlers.Graph, opts ...Option) *Server {
	s := &Server{
		config: cfg,
		graph:  graph,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Setup builds the router and registers every route.
func (s *Server) Setup() {
	if s.config.Server.Mode != "" {
		gin.SetMode(s.config.Server.Mode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	health := handlers.NewHealthHandler(s.graph)
	router.GET("/healthcheck", health.HealthCheck)
	router.GET("/ready", health.ReadinessCheck)

	communities := handlers.NewCommunityHandler(s.graph)
	router.GET("/communities", communities.ListCommunities)
	router.GET("/communities/:id", communities.GetCommunity)
	router.GET("/summaries", communities.ListSummaries)
	router.GET("/entities/:id", communities.GetEntity)

	s.router = router
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Handler returns the router. Setup must have been called.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Stop is called. It returns nil after a graceful stop.
func (s *Server) Start() error {
	if s.httpServer == nil {
		return errors.New("server not set up")
	}
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down, waiting for in-flight requests until ctx
// expires.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
