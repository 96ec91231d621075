package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_ObserveRequest(t *testing.T) {
	m := NewMetrics("test")

	m.ObserveRequest(http.MethodGet, "/api/v1/ask", http.StatusOK, 25*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "/api/v1/ask", http.StatusOK, 30*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "/api/v1/ask", http.StatusTooManyRequests, time.Millisecond)

	count := testutil.ToFloat64(m.requestsTotal.WithLabelValues(http.MethodGet, "/api/v1/ask", "200"))
	assert.Equal(t, 2.0, count)
}

func TestMetrics_SpanCounters(t *testing.T) {
	m := NewMetrics("test")

	m.AddSpansExported(512)
	m.AddSpansDropped("buffer_overflow", 3)
	m.IncExportFailure()
	m.SetExportQueueSize(17)

	assert.Equal(t, 512.0, testutil.ToFloat64(m.spansExported))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.spansDropped.WithLabelValues("buffer_overflow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exportFailures))
	assert.Equal(t, 17.0, testutil.ToFloat64(m.exportQueueSize))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics("test")
	m.SetBuildInfo("1.2.3")
	m.IncAuthFailure()
	m.IncRateLimitHit()
	m.RequestStarted()
	m.RequestFinished()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "test_auth_failures_total 1")
	assert.Contains(t, body, "test_rate_limit_rejections_total 1")
	assert.Contains(t, body, `test_build_info{version="1.2.3"} 1`)
}
