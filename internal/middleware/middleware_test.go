package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avaqa/internal/auth"
	"github.com/vyrodovalexey/avaqa/internal/observability"
	"github.com/vyrodovalexey/avaqa/internal/ratelimit"
	"github.com/vyrodovalexey/avaqa/internal/trace"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// captureSink collects enqueued spans for assertions.
type captureSink struct {
	mu    sync.Mutex
	spans []*trace.Span
}

func (s *captureSink) Enqueue(span *trace.Span) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spans = append(s.spans, span)
}

func (s *captureSink) all() []*trace.Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*trace.Span(nil), s.spans...)
}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	engine := gin.New()
	engine.Use(handlers...)
	engine.GET("/ask", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"answer": "ok"})
	})
	engine.GET("/boom", func(c *gin.Context) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "backend unavailable"})
	})
	return engine
}

func TestRequestID_GeneratedAndEchoed(t *testing.T) {
	engine := newEngine(RequestID())

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ask", nil))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ask", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	engine.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
}

func TestRecovery_AnswersInternalError(t *testing.T) {
	engine := gin.New()
	engine.Use(Recovery(nil))
	engine.GET("/panic", func(c *gin.Context) {
		panic("kaboom")
	})

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestResponseTime_HeaderPresent(t *testing.T) {
	engine := newEngine(ResponseTime())

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ask", nil))

	assert.NotEmpty(t, rec.Header().Get(ResponseTimeHeader))
}

func TestTracing_NewRootWhenNoHeaders(t *testing.T) {
	sink := &captureSink{}
	recorder := trace.NewRecorder(sink)
	engine := newEngine(Tracing(recorder, "api-gateway"))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ask", nil))

	spans := sink.all()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.True(t, span.TraceID.IsValid())
	assert.False(t, span.ParentSpanID.IsValid())
	assert.Equal(t, trace.StatusOK, span.Status)
	assert.Equal(t, "GET", span.Attributes["http.method"])
	assert.Equal(t, http.StatusOK, span.Attributes["http.status_code"])
}

func TestTracing_ContinuesPropagatedTrace(t *testing.T) {
	sink := &captureSink{}
	recorder := trace.NewRecorder(sink)
	engine := newEngine(Tracing(recorder, "llm-service"))

	caller := trace.StartChild(trace.StartRoot())
	req := httptest.NewRequest(http.MethodGet, "/ask", nil)
	trace.Inject(caller, req.Header)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	spans := sink.all()
	require.Len(t, spans, 1)
	assert.Equal(t, caller.TraceID, spans[0].TraceID)
	assert.Equal(t, caller.SpanID, spans[0].ParentSpanID)
	assert.NotEqual(t, caller.SpanID, spans[0].SpanID)
}

func TestTracing_MalformedHeaderStartsRoot(t *testing.T) {
	sink := &captureSink{}
	recorder := trace.NewRecorder(sink)
	engine := newEngine(Tracing(recorder, "api-gateway"))

	req := httptest.NewRequest(http.MethodGet, "/ask", nil)
	req.Header.Set(trace.TraceparentHeader, "00-zz-zz-01")

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	spans := sink.all()
	require.Len(t, spans, 1)
	assert.False(t, spans[0].ParentSpanID.IsValid())
}

func TestTracing_ServerErrorMarksSpan(t *testing.T) {
	sink := &captureSink{}
	recorder := trace.NewRecorder(sink)
	engine := newEngine(Tracing(recorder, "api-gateway"))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	spans := sink.all()
	require.Len(t, spans, 1)
	assert.Equal(t, trace.StatusError, spans[0].Status)
}

func TestAuth_RejectsBadToken(t *testing.T) {
	engine := newEngine(Auth(auth.NewAuthenticator(""), nil))

	req := httptest.NewRequest(http.MethodGet, "/ask", nil)
	req.Header.Set("Authorization", "Bearer nonsense")

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid credentials"}`, rec.Body.String())
}

func TestAuth_AnonymousPassesThrough(t *testing.T) {
	engine := gin.New()
	engine.Use(Auth(auth.NewAuthenticator(""), nil))
	engine.GET("/ask", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"subject": GetPrincipal(c).Subject})
	})

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ask", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"subject":"anonymous"}`, rec.Body.String())
}

func TestRateLimit_RejectsAfterBurst(t *testing.T) {
	limiter := ratelimit.NewLimiter(2, 0.001)
	defer limiter.Close()

	engine := newEngine(Auth(auth.NewAuthenticator(""), nil), RateLimit(limiter, nil))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ask", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ask", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())
}

func TestRateLimit_PrincipalsDoNotShareBuckets(t *testing.T) {
	limiter := ratelimit.NewLimiter(1, 0.001)
	defer limiter.Close()

	engine := newEngine(Auth(auth.NewAuthenticator(""), nil), RateLimit(limiter, nil))

	alice := httptest.NewRequest(http.MethodGet, "/ask", nil)
	alice.Header.Set("Authorization", "Bearer user-alice")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, alice)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, alice)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	bob := httptest.NewRequest(http.MethodGet, "/ask", nil)
	bob.Header.Set("Authorization", "Bearer user-bob")
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, bob)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetrics_CountsRequests(t *testing.T) {
	m := observability.NewMetrics("test")
	engine := newEngine(Metrics(m))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ask", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
