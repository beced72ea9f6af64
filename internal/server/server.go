// Package server exposes the analysis engine over HTTP JSON for the
// presentation layer. The server holds one immutable snapshot; every request
// runs an independent analysis over it, so requests need no coordination.
// Request timeouts live here, at the boundary, not inside the engine.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kubeseg/analyzer/internal/drift"
	"github.com/kubeseg/analyzer/internal/gaps"
	"github.com/kubeseg/analyzer/internal/ingest"
	"github.com/kubeseg/analyzer/internal/metrics"
	"github.com/kubeseg/analyzer/internal/risk"
)

// Server wraps the HTTP server and the analysis entry points.
type Server struct {
	server   *http.Server
	snap     *ingest.Snapshot
	analyzer *gaps.Analyzer
	detector *drift.Detector
	scorer   *risk.Scorer
	limiter  *perClientLimiter
	log      logr.Logger

	readyMu sync.RWMutex
	ready   bool
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080"
	Addr string
	// Snapshot is the loaded analysis input set
	Snapshot *ingest.Snapshot
	// RateLimitPerSec limits requests per client IP (0 = disabled)
	RateLimitPerSec float64
	// RateLimitBurst is the per-client burst size
	RateLimitBurst int
	// Logger for logging
	Logger logr.Logger
}

// NewServer creates the HTTP server and registers all handlers.
func NewServer(cfg ServerConfig) *Server {
	mux := http.NewServeMux()
	s := &Server{
		server: &http.Server{
			Addr:         cfg.Addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		snap:     cfg.Snapshot,
		analyzer: gaps.NewAnalyzer(gaps.AnalyzerConfig{Logger: cfg.Logger}),
		detector: drift.NewDetector(drift.DetectorConfig{Logger: cfg.Logger}),
		scorer:   risk.NewScorer(),
		log:      cfg.Logger.WithName("api-server"),
	}
	if cfg.RateLimitPerSec > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = int(cfg.RateLimitPerSec)
		}
		s.limiter = newPerClientLimiter(cfg.RateLimitPerSec, burst)
	}

	s.registerHandlers(mux)
	return s
}

func (s *Server) registerHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "healthy")
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		s.readyMu.RLock()
		ready := s.ready
		s.readyMu.RUnlock()

		if ready {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, "ready")
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "not ready")
		}
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/gaps", s.limited(s.handleGaps))
	mux.HandleFunc("/api/drift", s.limited(s.handleDrift))
	mux.HandleFunc("/api/flows", s.limited(s.handleFlows))
	mux.HandleFunc("/api/score", s.limited(s.handleScore))
	mux.HandleFunc("/api/debug", s.limited(s.handleDebug))
}

// limited wraps a handler with the per-client rate limiter.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.allow(r.RemoteAddr) {
			metrics.RateLimited.Inc()
			metrics.HTTPRequests.WithLabelValues(r.URL.Path, "429").Inc()
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// Start begins serving and marks the server ready. It returns immediately;
// the server shuts down when the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.log.Info("Starting API server", "addr", s.server.Addr)

	metrics.SnapshotRecords.WithLabelValues("flows").Set(float64(len(s.snap.Flows)))
	metrics.SnapshotRecords.WithLabelValues("policies").Set(float64(len(s.snap.Policies)))
	metrics.SnapshotRecords.WithLabelValues("intents").Set(float64(len(s.snap.Intents)))

	if s.limiter != nil {
		go s.limiter.run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Give ListenAndServe a moment to fail fast on bind errors.
	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	s.setReady(true)

	go func() {
		<-ctx.Done()
		s.log.Info("Shutting down API server")
		s.setReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.log.Error(err, "Server shutdown failed")
		}
	}()

	return nil
}

func (s *Server) setReady(ready bool) {
	s.readyMu.Lock()
	s.ready = ready
	s.readyMu.Unlock()
}
