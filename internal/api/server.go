// Package api exposes the print queue over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wiffzack/printspool/internal/api/handlers"
	"github.com/wiffzack/printspool/internal/api/middleware"
	"github.com/wiffzack/printspool/internal/config"
)

// StateReporter is implemented by sinks that track printer reachability.
type StateReporter interface {
	State() string
}

type Deps struct {
	Queue   handlers.Queue
	Builder handlers.Builder
	Jobs    handlers.JobStore

	// Optional.
	Templates handlers.TemplateLister
	Metrics   http.Handler
	Printer   StateReporter
}

type Server struct {
	cfg    config.Config
	deps   Deps
	logger *zap.Logger
	engine *gin.Engine
	srv    *http.Server
}

func NewServer(cfg config.Config, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{cfg: cfg, deps: deps, logger: logger}
	s.engine = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	engine := gin.New()
	engine.Use(middleware.Recovery(s.logger))
	engine.Use(middleware.RequestLogger(s.logger))

	engine.GET("/health", s.health)
	if s.deps.Metrics != nil && s.cfg.Metrics.Enabled {
		path := s.cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		engine.GET(path, gin.WrapH(s.deps.Metrics))
	}

	auth := middleware.NewAuthMiddleware(s.cfg.Auth)
	engine.POST("/api/auth/token", auth.TokenHandler)

	group := engine.Group("/api", auth.RequireAuth())
	handlers.NewJobHandler(s.deps.Queue, s.deps.Jobs).RegisterRoutes(group)
	handlers.NewInvoiceHandler(s.deps.Queue, s.deps.Builder, s.deps.Templates, s.logger).RegisterRoutes(group)

	return engine
}

func (s *Server) health(c *gin.Context) {
	resp := gin.H{
		"status": "ok",
		"queue":  s.deps.Queue.Stats(),
	}
	if s.deps.Printer != nil {
		state := s.deps.Printer.State()
		resp["printer"] = state
		if state != "closed" {
			resp["status"] = "degraded"
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Run serves until ctx is done and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
