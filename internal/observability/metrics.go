// Package observability collects Prometheus metrics for the portal.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the Prometheus registry and application metrics.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	timerTransitions *prometheus.CounterVec
	expensesCreated  prometheus.Counter
	reconcileErrors  prometheus.Counter
	reconcileRuns    *prometheus.CounterVec
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "opsledger_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "opsledger_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "opsledger_timer_transitions_total",
		Help: "Work-item timer transitions by action and outcome.",
	}, []string{"action", "outcome"})
	created := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "opsledger_expenses_created_total",
		Help: "Expense records created by reconciliation runs.",
	})
	recErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "opsledger_reconcile_item_errors_total",
		Help: "Per-candidate failures recorded during reconciliation.",
	})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "opsledger_reconcile_runs_total",
		Help: "Reconciliation runs by result.",
	}, []string{"result"})
	registry.MustRegister(requests, duration, transitions, created, recErrors, runs)
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:    requests,
		requestDuration:  duration,
		timerTransitions: transitions,
		expensesCreated:  created,
		reconcileErrors:  recErrors,
		reconcileRuns:    runs,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveTimerTransition counts a timer action and its outcome
// ("applied", "noop" or "error").
func (m *Metrics) ObserveTimerTransition(action, outcome string) {
	if m == nil {
		return
	}
	m.timerTransitions.WithLabelValues(action, outcome).Inc()
}

// ObserveReconcileRun counts a reconciliation run result
// ("ok", "partial" or "error").
func (m *Metrics) ObserveReconcileRun(result string, created, itemErrors int) {
	if m == nil {
		return
	}
	m.reconcileRuns.WithLabelValues(result).Inc()
	m.expensesCreated.Add(float64(created))
	m.reconcileErrors.Add(float64(itemErrors))
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
