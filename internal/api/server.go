// Package api exposes the customer and staff HTTP gateways. Both client UIs
// poll their list views on a short fixed interval, so reads are bounded and
// idempotent; every mutating response carries the full authoritative record.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/minibank/counter-service/internal/domain"
)

// Server hosts the HTTP gateways.
type Server struct {
	engine *domain.LifecycleEngine
	logger *zap.Logger
	server *http.Server
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns a default configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         ":8080",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(engine *domain.LifecycleEngine, config ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		engine: engine,
		logger: logger,
	}

	router := mux.NewRouter()
	router.Use(s.logRequests)

	v1 := router.PathPrefix("/api/v1").Subrouter()

	// Customer gateway
	v1.HandleFunc("/transactions/deposit", s.handleCreateDeposit).Methods(http.MethodPost)
	v1.HandleFunc("/transactions/withdraw", s.handleCreateWithdraw).Methods(http.MethodPost)
	v1.HandleFunc("/transactions", s.handleListMine).Methods(http.MethodGet)
	v1.HandleFunc("/transactions/{id}", s.handleGet).Methods(http.MethodGet)
	v1.HandleFunc("/transactions/{id}/cancel", s.handleCancel).Methods(http.MethodPost)

	// Staff gateway
	v1.HandleFunc("/counters/{id}/queue", s.handleListQueue).Methods(http.MethodGet)
	v1.HandleFunc("/transactions/{id}/confirm", s.handleConfirm).Methods(http.MethodPost)

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

// Handler returns the configured HTTP handler, useful in tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// ListenAndServe starts serving until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server starting", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
