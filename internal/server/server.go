package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rickgao/marketfeed/internal/metrics"
	"github.com/rickgao/marketfeed/internal/poller"
	"github.com/rickgao/marketfeed/internal/watermark"
)

// Pinger checks database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CycleReporter exposes the last poll cycle.
type CycleReporter interface {
	LastCycle() (poller.CycleResult, bool)
}

// Config holds server configuration.
type Config struct {
	Port int
	Mode string // gin mode: release, debug, test
	// StaleAfter marks the service unhealthy when the last cycle started longer ago.
	StaleAfter time.Duration
}

// Deps are the components the endpoints report on. Nil fields disable their checks.
type Deps struct {
	DB         Pinger
	Watermarks watermark.Store
	Cycles     CycleReporter
	Metrics    *metrics.Metrics
}

// Server is the health and inspection HTTP server.
type Server struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
	engine *gin.Engine
}

// New creates a Server and builds its routes.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("component", "server"),
		now:    time.Now,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	debug := r.Group("/debug")
	debug.GET("/watermarks", s.watermarks)
	debug.GET("/cycle", s.cycle)
	s.engine = r
	return s
}

// Handler returns the gin engine.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(s.cfg.Port)),
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}
