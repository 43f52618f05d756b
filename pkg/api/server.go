// Package api serves sensor logs over HTTP for inspection.
//
// Routes under /api/v1 require the X-API-Key header:
//
//	GET /health
//	GET /logs
//	GET /logs/{name}/header
//	GET /logs/{name}/records?start=&stop=&step=
//	GET /logs/{name}/stats
//	GET /archive/sources                 (when an archive is configured)
//	GET /archive/sources/{id}
//	GET /archive/sources/{id}/records?start=&stop=&step=
//
// Prometheus metrics are served unauthenticated on /metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// Routes builds the router for the server
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Prometheus metrics endpoint (unprotected for scraping)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	m := s.metrics
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(m.InstrumentAuthMiddleware(apiKeyMiddleware(s.config.APIKey)))

		r.Get("/health", m.InstrumentHandler("GET", "/api/v1/health", s.handleHealth))

		// Logs in the log directory
		r.Get("/logs", m.InstrumentHandler("GET", "/api/v1/logs", s.handleListLogs))
		r.Get("/logs/{name}/header", m.InstrumentHandler("GET", "/api/v1/logs/{name}/header", s.handleHeader))
		r.Get("/logs/{name}/records", m.InstrumentHandler("GET", "/api/v1/logs/{name}/records", s.handleRecords))
		r.Get("/logs/{name}/stats", m.InstrumentHandler("GET", "/api/v1/logs/{name}/stats", s.handleStats))

		if s.config.Archive != nil {
			r.Get("/archive/sources", m.InstrumentHandler("GET", "/api/v1/archive/sources", s.handleListSources))
			r.Get("/archive/sources/{id}", m.InstrumentHandler("GET", "/api/v1/archive/sources/{id}", s.handleGetSource))
			r.Get("/archive/sources/{id}/records", m.InstrumentHandler("GET", "/api/v1/archive/sources/{id}/records", s.handleSourceRecords))
		}
	})

	return r
}

// StartServer serves the API until ctx is cancelled
func StartServer(ctx context.Context, config ServerConfig) error {
	if config.APIKey == "" {
		return errors.New("api: an API key is required")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	server := NewServer(config, registry)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Bind, config.Port),
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		server.logger.Info().
			Str("addr", httpServer.Addr).
			Str("log_dir", config.LogDir).
			Msg("starting pinglog API server")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		server.logger.Info().Msg("shutting down API server")
		return httpServer.Shutdown(shutdownCtx)
	}
}
