package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/userdesk/internal/shared"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	body := scrape(t, NewMetrics())
	if !strings.Contains(body, `userdesk_session_events_total{event="token_set"} 0`) {
		t.Fatalf("expected session counters to be pre-initialised, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsBody := scrape(t, metrics)
	if !strings.Contains(metricsBody, "userdesk_http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "userdesk_http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}

func TestObserveUpstreamAndTokenEvents(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveUpstream("list_users", "ok", 20*time.Millisecond)
	metrics.ObserveUpstream("list_users", "error", time.Millisecond)

	metrics.OnTokenEvent(context.Background(), shared.TokenEvent{Kind: shared.TokenSet})
	metrics.OnTokenEvent(context.Background(), shared.TokenEvent{Kind: shared.TokenCleared})
	metrics.OnTokenEvent(context.Background(), shared.TokenEvent{Kind: shared.TokenSet})

	body := scrape(t, metrics)
	for _, want := range []string{
		`userdesk_upstream_requests_total{op="list_users",outcome="ok"} 1`,
		`userdesk_upstream_requests_total{op="list_users",outcome="error"} 1`,
		`userdesk_session_events_total{event="token_set"} 2`,
		`userdesk_session_events_total{event="token_cleared"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %s in: %s", want, body)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveUpstream("login", "ok", time.Second)
	m.OnTokenEvent(context.Background(), shared.TokenEvent{Kind: shared.TokenSet})
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
