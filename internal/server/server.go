// Package server exposes the monitor over HTTP: Prometheus metrics on
// /metrics, a liveness probe on /health, and a JSON snapshot on /api/stats
// for dashboards that talk to the monitor directly.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lanops/cachewatch/internal/stats"
)

// Server serves the metrics and stats endpoints.
type Server struct {
	agg    *stats.Aggregator
	logger zerolog.Logger
	http   *http.Server
}

// New builds a Server listening on addr.
func New(addr string, agg *stats.Aggregator, logger zerolog.Logger) *Server {
	s := &Server{
		agg:    agg,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", withCORS(promhttp.Handler()))
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/stats", s.handleStats)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler, exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start binds the listener and serves in the background. A bind failure is
// returned immediately so startup can abort before tailing begins.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("bind metrics listener: %w", err)
	}
	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "OK")
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := s.agg.Snapshot()
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.logger.Error().Err(err).Msg("encode stats response")
	}
}

// withCORS allows browser dashboards to pull the exporter endpoints
// cross-origin.
func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		h.ServeHTTP(w, r)
	})
}
