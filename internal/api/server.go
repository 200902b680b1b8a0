package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/snarg/subsync/internal/batch"
	"github.com/snarg/subsync/internal/config"
	"github.com/snarg/subsync/internal/history"
	"github.com/snarg/subsync/internal/metrics"
)

// ServerOptions collects the subsystems the HTTP surface exposes. Pool and
// Watcher are nil outside watch mode.
type ServerOptions struct {
	Config    *config.Config
	Runner    SyncRunner
	Store     *history.Store
	Pool      *batch.Pool
	Watcher   *batch.Watcher
	Version   string
	StartTime time.Time
	Log       zerolog.Logger
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(opts ServerOptions) *Server {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(opts.Log))
	r.Use(metrics.InstrumentHandler)

	// Unauthenticated probes.
	health := NewHealthHandler(opts.Store, opts.Pool, opts.Watcher, opts.Version, opts.StartTime)
	r.Get("/api/v1/health", health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(opts.Config.AuthToken))
		r.Post("/api/v1/sync", NewSyncHandler(opts.Runner, opts.Store).ServeHTTP)
		r.Get("/api/v1/history", NewHistoryHandler(opts.Store).ServeHTTP)
	})

	return &Server{
		http: &http.Server{
			Addr:         opts.Config.HTTPAddr,
			Handler:      r,
			ReadTimeout:  opts.Config.ReadTimeout,
			WriteTimeout: opts.Config.WriteTimeout,
			IdleTimeout:  opts.Config.IdleTimeout,
		},
		log: opts.Log.With().Str("component", "api").Logger(),
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
