package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.QuoteTransition("send", "ok")

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `comercia_quote_transitions_total{action="send",outcome="ok"} 1`)
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

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requestsTotal.WithLabelValues("/test", "418")))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.requestDuration))
}

func TestCommercialCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.QuoteTransition("send", "conflict")
	metrics.QuoteTransition("send", "conflict")
	metrics.WinOutcome("won")
	metrics.WinOutcome("needs_fiscal_data")

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.quoteTransitions.WithLabelValues("send", "conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.wins.WithLabelValues("won")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.wins.WithLabelValues("needs_fiscal_data")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	assert.NotPanics(t, func() {
		metrics.QuoteTransition("send", "ok")
		metrics.WinOutcome("won")
	})
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
