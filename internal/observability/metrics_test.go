package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nia-ro/workdesk/internal/audit"
	"github.com/nia-ro/workdesk/internal/guard"
	"github.com/nia-ro/workdesk/internal/ratelimit"
)

var (
	_ ratelimit.Observer = (*Metrics)(nil)
	_ guard.Observer     = (*Metrics)(nil)
	_ audit.Observer     = (*Metrics)(nil)
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	assert.Contains(t, body, `workdesk_http_requests_total{code="418",route="/test"} 1`)
	assert.Contains(t, body, `workdesk_http_request_duration_seconds_bucket{route="/test"`)
}

func TestPipelineObservers(t *testing.T) {
	metrics := NewMetrics()
	metrics.RateLimited("auth")
	metrics.RateLimited("auth")
	metrics.GuardDecision("forbidden")
	metrics.AuditQueueDepth(7)
	metrics.AuditFlushFailed(3)
	metrics.AuditFlushFailed(0)

	body := scrape(t, metrics)
	assert.Contains(t, body, `workdesk_rate_limited_total{tier="auth"} 2`)
	assert.Contains(t, body, `workdesk_guard_decisions_total{outcome="forbidden"} 1`)
	assert.Contains(t, body, "workdesk_audit_queue_depth 7")
	assert.Contains(t, body, "workdesk_audit_flush_failed_records_total 3")
}

func TestNilMetricsAreInert(t *testing.T) {
	var metrics *Metrics
	metrics.RateLimited("api")
	metrics.GuardDecision("authorized")
	metrics.AuditQueueDepth(1)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
