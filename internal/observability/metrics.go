// Package observability exposes the service's Prometheus metrics.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the HTTP and pipeline metrics of the service.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rateLimited     *prometheus.CounterVec
	guardDecisions  *prometheus.CounterVec
	auditDepth      prometheus.Gauge
	auditFailures   prometheus.Counter
}

// NewMetrics initialises the registry and registers every collector.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workdesk_http_requests_total",
		Help: "HTTP requests by route pattern and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "workdesk_http_request_duration_seconds",
		Help:    "HTTP request duration by route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	rateLimited := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workdesk_rate_limited_total",
		Help: "Requests rejected by the rate limiter, by tier.",
	}, []string{"tier"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workdesk_guard_decisions_total",
		Help: "Authorization decisions by outcome.",
	}, []string{"outcome"})
	depth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "workdesk_audit_queue_depth",
		Help: "Audit records waiting to be persisted.",
	})
	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "workdesk_audit_flush_failed_records_total",
		Help: "Audit records whose flush failed and were re-queued.",
	})
	registry.MustRegister(requests, duration, rateLimited, decisions, depth, failures)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		rateLimited:     rateLimited,
		guardDecisions:  decisions,
		auditDepth:      depth,
		auditFailures:   failures,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency per route pattern.
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

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// RateLimited counts a 429 issued for tier.
func (m *Metrics) RateLimited(tier string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(tier).Inc()
}

// GuardDecision counts one authorization outcome.
func (m *Metrics) GuardDecision(outcome string) {
	if m == nil {
		return
	}
	m.guardDecisions.WithLabelValues(outcome).Inc()
}

// AuditQueueDepth sets the current audit buffer length.
func (m *Metrics) AuditQueueDepth(n int) {
	if m == nil {
		return
	}
	m.auditDepth.Set(float64(n))
}

// AuditFlushFailed counts records re-queued after a failed flush.
func (m *Metrics) AuditFlushFailed(records int) {
	if m == nil || records <= 0 {
		return
	}
	m.auditFailures.Add(float64(records))
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
