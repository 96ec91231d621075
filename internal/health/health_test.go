package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecker_Health(t *testing.T) {
	checker := NewChecker("vector-store")

	resp := checker.Health()
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "vector-store", resp.Service)
	assert.False(t, resp.Timestamp.IsZero())
}

func healthServer(t *testing.T, status Status) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"` + string(status) + `","service":"stub"}`))
	}))
}

func TestProber_AllHealthy(t *testing.T) {
	llm := healthServer(t, StatusHealthy)
	defer llm.Close()
	vs := healthServer(t, StatusHealthy)
	defer vs.Close()

	prober := NewProber(time.Second)
	prober.Register("llm-service", llm.URL)
	prober.Register("vector-store", vs.URL)

	agg := prober.Aggregate(context.Background(), "api-gateway")
	assert.Equal(t, StatusHealthy, agg.Status)
	require.Len(t, agg.Services, 2)
	assert.Equal(t, StatusHealthy, agg.Services["llm-service"].Status)
	assert.GreaterOrEqual(t, agg.Services["vector-store"].LatencyMS, 0.0)
}

func TestProber_UnreachableDependencyIsUnhealthy(t *testing.T) {
	llm := healthServer(t, StatusHealthy)
	defer llm.Close()

	prober := NewProber(200 * time.Millisecond)
	prober.Register("llm-service", llm.URL)
	prober.Register("vector-store", "http://127.0.0.1:1")

	agg := prober.Aggregate(context.Background(), "api-gateway")
	assert.Equal(t, StatusUnhealthy, agg.Status)
	assert.Equal(t, StatusHealthy, agg.Services["llm-service"].Status)
	assert.Equal(t, StatusUnhealthy, agg.Services["vector-store"].Status)
	assert.NotEmpty(t, agg.Services["vector-store"].Error)
}

func TestProber_Non200IsUnhealthy(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer failing.Close()

	prober := NewProber(time.Second)
	prober.Register("llm-service", failing.URL)

	agg := prober.Aggregate(context.Background(), "api-gateway")
	assert.Equal(t, StatusUnhealthy, agg.Status)
	assert.Contains(t, agg.Services["llm-service"].Error, "status 503")
}
