// Package server exposes the registry over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lewisedginton/npc_registry/internal/session_manager"
	"github.com/lewisedginton/npc_registry/internal/storage_manager"
	"github.com/lewisedginton/npc_registry/internal/turn"
	pkgconfig "github.com/lewisedginton/npc_registry/pkg/config"
	"github.com/lewisedginton/npc_registry/pkg/health"
	"github.com/lewisedginton/npc_registry/pkg/httpmiddleware"
	"github.com/lewisedginton/npc_registry/pkg/logger"
	"github.com/lewisedginton/npc_registry/pkg/metrics"
	"github.com/lewisedginton/npc_registry/pkg/utils"
)

// Config holds the server's settings and collaborators.
type Config struct {
	HTTP               pkgconfig.HTTPServerConfig
	Metrics            pkgconfig.MetricsConfig
	HealthCheckTimeout time.Duration

	Processor *turn.Processor
	Sessions  session_manager.Manager
	Storage   *storage_manager.StorageManager // optional, pinged by readiness
	Collector *metrics.Metrics
	Logger    logger.Logger
}

type Server struct {
	cfg      Config
	proc     *turn.Processor
	sessions session_manager.Manager
	metrics  *metrics.Metrics
	health   *health.Checker
	log      logger.Logger
	router   chi.Router
}

func New(cfg Config) (*Server, error) {
	if cfg.Processor == nil {
		return nil, fmt.Errorf("turn processor is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Collector == nil {
		cfg.Collector = metrics.NewMetrics(false, false, cfg.Logger)
	}

	s := &Server{
		cfg:      cfg,
		proc:     cfg.Processor,
		sessions: cfg.Sessions,
		metrics:  cfg.Collector,
		log:      cfg.Logger,
		health: health.New(
			health.WithTimeout(cfg.HealthCheckTimeout),
			health.WithLogger(cfg.Logger),
		),
	}
	s.registerChecks()
	s.router = s.routes()
	return s, nil
}

func (s *Server) registerChecks() {
	s.health.Register(health.Liveness, "process", func(context.Context) error { return nil })

	if s.cfg.Storage != nil {
		s.health.Register(health.Readiness, "storage", s.cfg.Storage.Ping)
	}

	// not ready while the identity store keeps failing to read or write
	var seen atomic.Int64
	s.health.Register(health.Readiness, "identity_store", func(context.Context) error {
		current := s.proc.StoreErrors()
		previous := seen.Swap(current)
		if current > previous {
			return fmt.Errorf("%d storage errors since last check", current-previous)
		}
		return nil
	})
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	mw := httpmiddleware.DefaultConfig(s.log)
	mw.AllowedOrigins = s.cfg.HTTP.AllowedOrigins
	mw.MaxBodyBytes = s.cfg.HTTP.MaxBodyBytes
	if s.cfg.HTTP.WriteTimeoutSeconds > 0 {
		mw.Timeout = s.cfg.HTTP.WriteTimeout()
	}
	r.Use(s.metrics.HTTPMiddleware())
	httpmiddleware.ApplyToRouter(r, mw)

	r.Get("/health/live", s.health.Handler(health.Liveness))
	r.Get("/health/ready", s.health.Handler(health.Readiness))
	if !s.cfg.Metrics.ExposeMetrics {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/sessions", s.listSessions)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Post("/turns", s.postTurn)
			r.Get("/npcs", s.listNPCs)
			r.Get("/npcs/{npcID}", s.getNPC)
			r.Delete("/npcs/{npcID}", s.deleteNPC)
			r.Get("/export", s.exportDocument)
			r.Post("/import", s.importDocument)
			r.Post("/cleanup", s.cleanup)
		})
	})
	return r
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled or a listener fails, then shuts down
// and flushes the bound identity document.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpServer := &http.Server{
		Addr:              s.cfg.HTTP.Addr(),
		Handler:           s.router,
		ReadTimeout:       s.cfg.HTTP.ReadTimeout(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.HTTP.WriteTimeout(),
		IdleTimeout:       s.cfg.HTTP.IdleTimeout(),
	}

	httpErrs := make(chan error, 1)
	go func() {
		defer close(httpErrs)
		s.log.Info("Starting HTTP server", logger.StringField("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErrs <- err
		}
	}()

	channels := []<-chan error{httpErrs}
	if s.cfg.Metrics.ExposeMetrics {
		channels = append(channels, s.metrics.Listen(ctx, s.cfg.Metrics.Port))
	}
	errs := utils.MergeErrorChans(channels...)

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-errs:
		if ok {
			runErr = fmt.Errorf("listener failed: %w", err)
		}
	}
	cancel()

	s.log.Info("Shutting down HTTP server")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Error("HTTP server shutdown failed", logger.ErrorField(err))
	}
	if err := s.proc.Flush(shutdownCtx); err != nil {
		s.log.Error("Final flush failed", logger.ErrorField(err))
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}
