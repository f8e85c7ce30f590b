// Package api exposes the planner over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/p-n-ai/pai-planner/internal/notify"
	"github.com/p-n-ai/pai-planner/internal/planner"
)

// Check is a named readiness probe.
type Check struct {
	Name string
	Func func(ctx context.Context) error
}

// Config wires the HTTP surface.
type Config struct {
	Planner *planner.Service
	// Hub serves the event stream. A nil hub disables the route.
	Hub *notify.Hub
	// Checks run on GET /readyz.
	Checks []Check
	// Registry receives the HTTP collectors and backs GET /metrics. A nil
	// registry gets a fresh one.
	Registry *prometheus.Registry
	// CommitsPerMinute limits schedule commits per student. Zero disables the
	// limit.
	CommitsPerMinute int
}

// Server routes HTTP requests to the planner.
type Server struct {
	planner  *planner.Service
	hub      *notify.Hub
	checks   []Check
	registry *prometheus.Registry
	commits  *limiter
	metrics  *httpMetrics
}

// New builds a Server from cfg.
func New(cfg Config) *Server {
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &Server{
		planner:  cfg.Planner,
		hub:      cfg.Hub,
		checks:   cfg.Checks,
		registry: reg,
		commits:  newLimiter(cfg.CommitsPerMinute, time.Minute),
		metrics:  newHTTPMetrics(reg),
	}
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /v1/students/{student}/courses/{course}/path", s.handlePath)
	mux.HandleFunc("GET /v1/students/{student}/courses/{course}/priorities", s.handlePriorities)
	mux.HandleFunc("POST /v1/students/{student}/courses/{course}/schedule/preview", s.handlePreview)
	mux.HandleFunc("PUT /v1/students/{student}/courses/{course}/schedule", s.handleCommit)
	mux.HandleFunc("GET /v1/students/{student}/courses/{course}/schedule.xlsx", s.handleWorkbook)
	mux.HandleFunc("GET /v1/students/{student}/schedule", s.handleStoredSchedule)
	mux.HandleFunc("PUT /v1/students/{student}/topics/{topic}/progress", s.handleProgress)
	mux.HandleFunc("GET /v1/students/{student}/workload", s.handleWorkload)
	if s.hub != nil {
		mux.HandleFunc("GET /v1/students/{student}/events", s.handleEvents)
	}
	mux.HandleFunc("POST /v1/topics/{topic}/dependencies", s.handleAddDependency)
	mux.HandleFunc("GET /v1/topics/{topic}/dependencies", s.handleListDependencies)

	return s.metrics.instrument(mux)
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	failed := map[string]string{}
	for _, c := range s.checks {
		if err := c.Func(ctx); err != nil {
			slog.Warn("readiness check failed", "check", c.Name, "error", err)
			failed[c.Name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
