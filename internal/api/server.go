// Package api exposes the DR controller to the operations dashboard:
// read-only status/history queries plus JWT-guarded commands.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/FairForge/drctl/internal/dr"
	"github.com/FairForge/drctl/internal/metrics"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Server is the operations HTTP server.
type Server struct {
	logger     *zap.Logger
	controller *dr.Controller
	secret     []byte
	router     *mux.Router
	httpServer *http.Server
}

// NewServer wires routes and middleware. secret signs operator tokens
// for command endpoints; metrics may be nil (no /metrics route then).
func NewServer(port int, secret string, controller *dr.Controller, m *metrics.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		logger:     logger,
		controller: controller,
		secret:     []byte(secret),
		router:     mux.NewRouter(),
	}
	s.setupRoutes(m)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes(m *metrics.Metrics) {
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	if m != nil {
		s.router.Handle("/metrics", m.Handler()).Methods("GET")
	}

	s.router.HandleFunc("/api/v1/dr/status", s.handleStatus).Methods("GET")
	s.router.HandleFunc("/api/v1/dr/regions/{id}/history", s.handleHistory).Methods("GET")
	s.router.HandleFunc("/api/v1/dr/events", s.handleEvents).Methods("GET")
	s.router.HandleFunc("/api/v1/dr/alerts", s.handleAlerts).Methods("GET")

	commands := s.router.PathPrefix("/api/v1/dr").Subrouter()
	commands.Use(s.requireOperator)
	commands.HandleFunc("/failover", s.handleFailover).Methods("POST")
	commands.HandleFunc("/chaos/enable", s.handleChaosEnable).Methods("POST")
	commands.HandleFunc("/chaos/disable", s.handleChaosDisable).Methods("POST")
	commands.HandleFunc("/maintenance", s.handleMaintenance).Methods("POST")
	commands.HandleFunc("/monitoring/start", s.handleMonitoringStart).Methods("POST")
	commands.HandleFunc("/monitoring/stop", s.handleMonitoringStop).Methods("POST")

	s.router.Use(s.loggingMiddleware)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("latency", time.Since(start)),
		)
	})
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("operations api listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: serve: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
