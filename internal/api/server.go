package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/casperlundberg/fog-offloader/internal/database"
	"github.com/casperlundberg/fog-offloader/pkg/models"
)

// Config configures the API server
type Config struct {
	Port           int
	AllowedOrigins []string
	Gatherer       prometheus.Gatherer // nil uses prometheus.DefaultGatherer
}

// Server is the read API over stored runs and sweeps
type Server struct {
	router *gin.Engine
	repo   *database.Repository
	port   int
	logger hclog.Logger
}

// NewServer creates a new API server
func NewServer(repo *database.Repository, cfg Config, logger hclog.Logger) *Server {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	config := cors.DefaultConfig()
	config.AllowOrigins = cfg.AllowedOrigins
	if len(config.AllowOrigins) == 0 {
		config.AllowAllOrigins = true
	}
	config.AllowMethods = []string{"GET", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(config))

	server := &Server{
		router: router,
		repo:   repo,
		port:   cfg.Port,
		logger: logger,
	}

	server.setupRoutes(cfg.Gatherer)
	return server
}

func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := s.router.Group("/api/v1")

	api.GET("/health", s.healthCheck)

	api.GET("/runs", s.listRuns)
	api.GET("/runs/:id", s.getRun)
	api.DELETE("/runs/:id", s.deleteRun)
	api.GET("/runs/:id/placements", s.getPlacements)
	api.GET("/runs/:id/learning", s.getLearning)
	api.GET("/runs/:id/summary", s.getRunSummary)

	api.GET("/sweeps/:id", s.getSweep)
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info("api server shutting down")
	return srv.Shutdown(shutdownCtx)
}

func requestLogger(logger hclog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now(),
	})
}

func (s *Server) listRuns(c *gin.Context) {
	runs, err := s.repo.ListRuns(c.Query("sweep"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, runs)
}

func (s *Server) getRun(c *gin.Context) {
	run, err := s.repo.GetRun(c.Param("id"))
	if err != nil {
		s.writeError(c, err, "Run not found")
		return
	}

	c.JSON(http.StatusOK, run)
}

func (s *Server) deleteRun(c *gin.Context) {
	if err := s.repo.DeleteRun(c.Param("id")); err != nil {
		s.writeError(c, err, "Run not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Run deleted"})
}

func (s *Server) getPlacements(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.repo.GetRun(id); err != nil {
		s.writeError(c, err, "Run not found")
		return
	}

	var outcome *models.PlacementOutcome
	if q := c.Query("outcome"); q != "" {
		o, err := models.ParsePlacementOutcome(q)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		outcome = &o
	}

	limit := 0
	if q := c.Query("limit"); q != "" {
		l, err := strconv.Atoi(q)
		if err != nil || l < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = l
	}

	placements, err := s.repo.GetPlacements(id, outcome, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, placements)
}

func (s *Server) getLearning(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.repo.GetRun(id); err != nil {
		s.writeError(c, err, "Run not found")
		return
	}

	snapshots, err := s.repo.GetLearningSnapshots(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, snapshots)
}

func (s *Server) getRunSummary(c *gin.Context) {
	summary, err := s.repo.GetRunSummary(c.Param("id"))
	if err != nil {
		s.writeError(c, err, "Run not found")
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (s *Server) getSweep(c *gin.Context) {
	points, err := s.repo.GetSweepPoints(c.Param("id"))
	if err != nil {
		s.writeError(c, err, "Sweep not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sweep_id": c.Param("id"),
		"points":   points,
	})
}

func (s *Server) writeError(c *gin.Context, err error, notFound string) {
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
		return
	}
	s.logger.Error("request failed", "path", c.Request.URL.Path, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
