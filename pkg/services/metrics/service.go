// Package metrics serves the healthcheck and Prometheus endpoints and holds
// the solver's metric counters.
package metrics

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Service serves /health and /metrics on one listener. The healthcheck
// reports 503 until MarkReady is called, which the solver does once every
// configured chain delivered its first state snapshot.
type Service struct {
	srv   *http.Server
	log   *zap.Logger
	ready atomic.Bool
}

// NewService creates the service listening on addr.
func NewService(addr string, log *zap.Logger) *Service {
	s := &Service{log: log}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start runs the HTTP service on the configured address. It blocks until
// ShutDown is called.
func (s *Service) Start() {
	s.log.Info("healthcheck service is running", zap.String("endpoint", s.srv.Addr))
	err := s.srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		s.log.Warn("healthcheck service couldn't start on configured port", zap.Error(err))
	}
}

// ShutDown stops the service.
func (s *Service) ShutDown() {
	s.log.Info("shutting down healthcheck service", zap.String("endpoint", s.srv.Addr))
	if err := s.srv.Shutdown(context.Background()); err != nil {
		s.log.Error("can't shut healthcheck service down", zap.Error(err))
	}
}

// MarkReady flips the healthcheck to 200.
func (s *Service) MarkReady() {
	s.ready.Store(true)
}

// Handler exposes the mux for tests.
func (s *Service) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !s.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"starting"}`))
		return
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
