// Package httpserver wires the metrics/health/readiness HTTP surface.
// Grounded on the teacher's examples/sample-app producer API: stdlib
// net/http, Go 1.22+ method-pattern ServeMux routing, graceful shutdown
// tied to a signal-derived context.
package httpserver

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tmancill/kommitted/internal/clusterstatus"
	"github.com/tmancill/kommitted/internal/exposition"
	"github.com/tmancill/kommitted/internal/lagregister"
	"github.com/tmancill/kommitted/internal/partitionoffsets"
)

const greeting = "kommitted: Kafka consumer-lag exporter\n"

const shutdownTimeout = 5 * time.Second

// Server is the metrics/health/readiness HTTP surface.
type Server struct {
	httpServer *http.Server
	logger     log.Logger

	healthy atomic.Bool
	ready   atomic.Bool
}

// Dependencies bundles every component the /metrics handler reads from.
type Dependencies struct {
	Registry         *prometheus.Registry
	ClusterStatus    *clusterstatus.Register
	PartitionOffsets *partitionoffsets.Register
	LagRegister      *lagregister.Register
}

// New builds a Server listening on bind. It starts unhealthy and unready;
// call MarkHealthy once startup completes and MarkReady once
// PartitionOffsetsRegister.AwaitReady returns true.
func New(bind string, logger log.Logger, deps Dependencies) *Server {
	s := &Server{logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleIndex)
	mux.HandleFunc("GET /metrics", s.handleMetrics(deps))
	mux.HandleFunc("GET /status/healthy", s.handleHealthy)
	mux.HandleFunc("GET /status/ready", s.handleReady)

	s.httpServer = &http.Server{
		Addr:    bind,
		Handler: mux,
	}
	return s
}

// MarkHealthy flips the /status/healthy response to 200.
func (s *Server) MarkHealthy() { s.healthy.Store(true) }

// MarkReady flips the /status/ready response to 200. Once shutdown begins,
// callers should not call this again — readiness never re-latches true
// after AwaitReady returns false on cancellation.
func (s *Server) MarkReady() { s.ready.Store(true) }

// MarkNotReady flips /status/ready back to 503, used when shutdown begins.
func (s *Server) MarkNotReady() { s.ready.Store(false) }

// ListenAndServe blocks serving HTTP until ctx is canceled, then gracefully
// shuts down within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		level.Info(s.logger).Log("msg", "shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(greeting))
}

func (s *Server) handleMetrics(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := exposition.Render(s.logger, deps.Registry, deps.ClusterStatus, deps.PartitionOffsets, deps.LagRegister)
		if err != nil {
			level.Error(s.logger).Log("msg", "metrics encoding failed", "err", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.Write([]byte(body))
	}
}

func (s *Server) handleHealthy(w http.ResponseWriter, r *http.Request) {
	if s.healthy.Load() {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready.Load() {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
}
