// Package service exposes the harness's health, last-run status and Prometheus
// metrics over HTTP while it runs.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// Status describes the most recent completed run.
type Status struct {
	Mode     string    `json:"mode"`
	RunID    string    `json:"run_id,omitempty"`
	Passed   int       `json:"passed"`
	Total    int       `json:"total"`
	OK       bool      `json:"ok"`
	Finished time.Time `json:"finished"`
}

// StatusServer serves /healthz, /status and /metrics.
type StatusServer struct {
	log      log.Logger
	registry *prometheus.Registry

	mu     sync.RWMutex
	status *Status

	server   *http.Server
	listener net.Listener
}

// NewStatusServer creates a server exporting the metrics gathered in registry.
func NewStatusServer(logger log.Logger, registry *prometheus.Registry) *StatusServer {
	return &StatusServer{
		log:      logger,
		registry: registry,
	}
}

// Handler returns the router with CORS applied.
func (s *StatusServer) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return c.Handler(r)
}

// Start listens on addr and serves in the background. Use Addr to learn the
// bound address when addr has port 0.
func (s *StatusServer) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Status server stopped unexpectedly", "err", err)
		}
	}()
	s.log.Info("Status server started", "addr", listener.Addr().String())
	return nil
}

// Addr returns the address the server is bound to, or "" before Start.
func (s *StatusServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down, waiting for in-flight requests until ctx expires.
func (s *StatusServer) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop status server: %w", err)
	}
	s.log.Info("Status server stopped")
	return nil
}

// SetStatus records the outcome of the latest run.
func (s *StatusServer) SetStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = &status
}

func (s *StatusServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.log.Debug("Received health check request", "path", r.URL.Path)
	w.Write([]byte("OK")) //nolint:errcheck
}

func (s *StatusServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	status := s.status
	s.mu.RUnlock()

	if status == nil {
		http.Error(w, "no run has completed yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.log.Warn("Failed to write status", "err", err)
	}
}
