// Package api serves fits over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"gobayes/app"
	"gobayes/domain/sampler"
	"gobayes/internal"
	"gobayes/ports"

	"github.com/gin-gonic/gin"
)

// Server is the HTTP front end of the fit and analysis services
type Server struct {
	router   *gin.Engine
	fits     *app.FitService
	analysis *app.AnalysisService
	repo     ports.FitRepository
	defaults sampler.Control
	logger   *internal.Logger
}

// NewServer wires the routes. repo must be the repository fits is saving
// to; defaults fill control fields a request leaves unset.
func NewServer(fits *app.FitService, analysis *app.AnalysisService, repo ports.FitRepository, defaults sampler.Control) *Server {
	s := &Server{
		router:   gin.New(),
		fits:     fits,
		analysis: analysis,
		repo:     repo,
		defaults: defaults,
		logger:   internal.DefaultLogger.With("api"),
	}
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.router.Group("/api")
	api.POST("/fits", s.handleCreateFit)
	api.GET("/fits", s.handleListFits)
	api.GET("/fits/:id", s.handleGetFit)
	api.DELETE("/fits/:id", s.handleDeleteFit)
	api.GET("/fits/:id/summary", s.handleSummary)
	api.GET("/fits/:id/criterion", s.handleCriterion)
	api.POST("/fits/:id/hypothesis", s.handleHypothesis)
	api.POST("/compare", s.handleCompare)
	api.POST("/datasets/profile", s.handleProfile)
}

// requestLogger logs one line per request through the leveled logger
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		line := "%s %s -> %d (%s)"
		args := []interface{}{c.Request.Method, c.Request.URL.Path, status, time.Since(start).Round(time.Millisecond)}
		if status >= http.StatusInternalServerError {
			s.logger.Error(line, args...)
			return
		}
		s.logger.Debug(line, args...)
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then drains open requests.
// Fits can run for minutes, so the write timeout is left open.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
