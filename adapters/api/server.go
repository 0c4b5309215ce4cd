// Package api exposes the evaluation service over HTTP. A chi router carries
// the operational endpoints and mounts the gin JSON API under /api.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"hypolab/app"
)

// Server wires the evaluation service to HTTP
type Server struct {
	svc     *app.EvaluationService
	metrics *Metrics
	logger  *zap.Logger
	router  *chi.Mux
	api     *gin.Engine
}

// Options tunes the server
type Options struct {
	// EnableMetrics serves /metrics; the collectors are always updated
	EnableMetrics bool
}

// NewServer creates the router tree for svc
func NewServer(svc *app.EvaluationService, logger *zap.Logger, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		svc:     svc,
		metrics: NewMetrics(),
		logger:  logger,
		router:  chi.NewRouter(),
		api:     gin.New(),
	}
	s.setupMiddleware()
	s.setupRoutes(opts)
	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Metrics returns the server's collectors
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)

	s.api.Use(gin.Recovery())
	s.api.Use(s.observe)
}

// observe logs and measures every API request by its route pattern
func (s *Server) observe(c *gin.Context) {
	start := time.Now()
	c.Next()

	elapsed := time.Since(start)
	status := c.Writer.Status()
	s.metrics.observeRequest(c.Request.Method, c.FullPath(), status, elapsed.Seconds())
	s.logger.Debug("api request",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", status),
		zap.Duration("elapsed", elapsed),
		zap.String("request_id", middleware.GetReqID(c.Request.Context())))
}

func (s *Server) setupRoutes(opts Options) {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opts.EnableMetrics {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}
	s.router.Mount("/api", s.api)

	api := s.api.Group("/api")
	{
		api.GET("/rubric", s.handleRubric)
		api.POST("/validate", s.handleValidateBundle)
		api.POST("/contributions/score", s.handleScoreContributions)

		api.GET("/sessions", s.handleListSessions)
		sessions := api.Group("/sessions/:session")
		{
			sessions.POST("/records", s.handleRegister)
			sessions.GET("/hypotheses", s.handleListHypotheses)
			sessions.GET("/hypotheses/:id", s.handleGetHypothesis)
			sessions.POST("/hypotheses/:id/transitions", s.handleTransition)
			sessions.GET("/predictions", s.handleListPredictions)
			sessions.GET("/tests/:id/report", s.handleTestReport)
			sessions.POST("/executions", s.handleExecute)
			sessions.GET("/history", s.handleGetHistory)
			sessions.PUT("/history", s.handleImportHistory)
			sessions.POST("/history/restore", s.handleRestoreHistory)
			sessions.GET("/transitions", s.handleTransitionsForResult)
			sessions.GET("/score", s.handleScoreSession)
			sessions.GET("/scorecard.xlsx", s.handleScorecardWorkbook)
		}
	}
}
