// Package api provides the HTTP server for taskd.
// It exposes the task endpoints plus health and Prometheus metrics.
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tutu-network/taskd/internal/domain"
	"github.com/tutu-network/taskd/internal/health"
	"github.com/tutu-network/taskd/internal/infra/metrics"
)

// DefaultMaxBodyBytes caps request bodies when no limit is configured.
const DefaultMaxBodyBytes = 1 << 20

// Server is the taskd HTTP API server.
type Server struct {
	tasks          domain.TaskRegistry
	health         *health.Checker // nil if not set
	metricsEnabled bool
	accessLog      bool
	corsOrigins    []string
	requestTimeout time.Duration
	maxBodyBytes   int64
}

// NewServer creates a new API server backed by the given registry.
func NewServer(tasks domain.TaskRegistry) *Server {
	return &Server{
		tasks:          tasks,
		corsOrigins:    []string{"*"},
		requestTimeout: 30 * time.Second,
		maxBodyBytes:   DefaultMaxBodyBytes,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint and request instrumentation.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// EnableAccessLog turns on chi's request logger.
func (s *Server) EnableAccessLog() { s.accessLog = true }

// SetHealth sets the checker reported by /health.
func (s *Server) SetHealth(c *health.Checker) { s.health = c }

// SetCORSOrigins sets the allowed origins. "*" allows any origin.
func (s *Server) SetCORSOrigins(origins []string) { s.corsOrigins = origins }

// SetRequestTimeout bounds handler run time.
func (s *Server) SetRequestTimeout(d time.Duration) {
	if d > 0 {
		s.requestTimeout = d
	}
}

// SetMaxBodyBytes caps request body size.
func (s *Server) SetMaxBodyBytes(n int64) {
	if n > 0 {
		s.maxBodyBytes = n
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if s.accessLog {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.requestTimeout))
	r.Use(s.corsMiddleware)
	if s.metricsEnabled {
		r.Use(metrics.Instrument)
	}

	r.Get("/health", s.handleHealth)

	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", s.handleCreateTask)
		r.Get("/", s.handleListTasks)
		r.Get("/{id}", s.handleGetTask)
		r.Put("/{id}", s.handleCompleteTask)
	})

	// Prometheus metrics endpoint
	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	status, code := "ok", http.StatusOK
	if !s.health.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": s.health.Statuses(),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeText writes a plain-text response.
func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, msg)
}

// corsMiddleware adds CORS headers for browser clients.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case slices.Contains(s.corsOrigins, "*"):
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(s.corsOrigins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
