// Package metrics provides Prometheus metrics for taskd.
// Counters and gauges for the task registry, plus HTTP request latency.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tutu-network/taskd/internal/domain"
)

// ─── Tasks ──────────────────────────────────────────────────────────────────

// TasksCreated tracks tasks submitted. Task types are caller-supplied and
// unbounded, so they are never used as label values.
var TasksCreated = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "taskd",
	Name:      "tasks_created_total",
	Help:      "Total tasks created.",
})

// TasksCompleted tracks first completions.
var TasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "taskd",
	Name:      "tasks_completed_total",
	Help:      "Total tasks moved from pending to completed.",
})

// TasksRecompleted tracks completions that overwrote an earlier result.
var TasksRecompleted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "taskd",
	Name:      "tasks_recompleted_total",
	Help:      "Total completions that overwrote an existing result.",
})

// TasksPending tracks tasks waiting for a result.
var TasksPending = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "taskd",
	Name:      "tasks_pending",
	Help:      "Number of tasks currently pending.",
})

// TaskTimeToComplete tracks time from creation to first completion.
var TaskTimeToComplete = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "taskd",
	Name:      "task_time_to_complete_seconds",
	Help:      "Time from task creation to its first completion.",
	Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
})

// ─── Journal ────────────────────────────────────────────────────────────────

// JournalDropped tracks events dropped because the journal buffer was full.
var JournalDropped = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "taskd",
	Name:      "journal_dropped_total",
	Help:      "Task events dropped because the journal buffer was full.",
})

// JournalWriteErrors tracks failed journal inserts.
var JournalWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "taskd",
	Name:      "journal_write_errors_total",
	Help:      "Task events that could not be written to the journal.",
})

// ─── HTTP ───────────────────────────────────────────────────────────────────

// HTTPRequestDuration tracks API latency by route pattern.
var HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "taskd",
	Name:      "http_request_duration_seconds",
	Help:      "HTTP request duration in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route", "code"})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "taskd",
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})

// ─── Registry Observer ──────────────────────────────────────────────────────

// Observer feeds task metrics from registry events.
type Observer struct{}

// TaskCreated implements registry.Observer.
func (Observer) TaskCreated(domain.Task) {
	TasksCreated.Inc()
	TasksPending.Inc()
}

// TaskCompleted implements registry.Observer.
func (Observer) TaskCompleted(t domain.Task, overwrote bool) {
	if overwrote {
		TasksRecompleted.Inc()
		return
	}
	TasksCompleted.Inc()
	TasksPending.Dec()
	if !t.CreatedAt.IsZero() && !t.CompletedAt.IsZero() {
		TaskTimeToComplete.Observe(t.CompletedAt.Sub(t.CreatedAt).Seconds())
	}
}

// ─── Middleware ─────────────────────────────────────────────────────────────

// Instrument records request latency. Routes are labeled by chi pattern
// (e.g. /tasks/{id}) so path parameters do not explode cardinality.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		HTTPRequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(code)).
			Observe(time.Since(start).Seconds())
	})
}
