package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avaqa/internal/health"
	"github.com/vyrodovalexey/avaqa/internal/llm"
	"github.com/vyrodovalexey/avaqa/internal/middleware"
	"github.com/vyrodovalexey/avaqa/internal/observability"
	"github.com/vyrodovalexey/avaqa/internal/phoenix"
	"github.com/vyrodovalexey/avaqa/internal/ratelimit"
	"github.com/vyrodovalexey/avaqa/internal/trace"
)

// GatewayInfo is the request metadata block attached to ask responses.
type GatewayInfo struct {
	UserID    string    `json:"user_id"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AskResponse is the answer augmented with gateway metadata.
type AskResponse struct {
	llm.Answer
	GatewayInfo GatewayInfo `json:"gateway_info"`
}

// StatsResponse is the body of GET /api/v1/stats.
type StatsResponse struct {
	Gateway  GatewayStats               `json:"gateway"`
	Services map[string]json.RawMessage `json:"services"`
}

// GatewayStats holds the gateway's own counters.
type GatewayStats struct {
	TotalRequests uint64 `json:"total_requests"`
	ActiveClients int    `json:"active_clients"`
}

// Handler serves the gateway HTTP API.
type Handler struct {
	llmClient      *LLMClient
	snapshots      *SnapshotClient
	traces         *phoenix.Client
	prober         *health.Prober
	limiter        *ratelimit.Limiter
	recorder       *trace.Recorder
	logger         observability.Logger
	llmURL         string
	vectorStoreURL string

	requests atomic.Uint64
}

// NewHandler creates the gateway handler.
func NewHandler(
	llmClient *LLMClient,
	snapshots *SnapshotClient,
	traces *phoenix.Client,
	prober *health.Prober,
	limiter *ratelimit.Limiter,
	recorder *trace.Recorder,
	logger observability.Logger,
	llmURL, vectorStoreURL string,
) *Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Handler{
		llmClient:      llmClient,
		snapshots:      snapshots,
		traces:         traces,
		prober:         prober,
		limiter:        limiter,
		recorder:       recorder,
		logger:         logger,
		llmURL:         llmURL,
		vectorStoreURL: vectorStoreURL,
	}
}

// Register mounts the public routes. The protected group carries the
// auth and rate limit middleware; health stays open.
func (h *Handler) Register(engine *gin.Engine, protected ...gin.HandlerFunc) {
	engine.GET("/health", h.handleHealth)

	api := engine.Group("/api/v1", protected...)
	api.POST("/ask", h.handleAsk)
	api.GET("/stats", h.handleStats)
	api.GET("/trace/:id", h.handleTrace)
}

func (h *Handler) handleHealth(c *gin.Context) {
	agg := h.prober.Aggregate(c.Request.Context(), "api-gateway")

	status := http.StatusOK
	if agg.Status != health.StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, agg)
}

func (h *Handler) handleAsk(c *gin.Context) {
	h.requests.Add(1)

	var req llm.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
		return
	}

	principal := middleware.GetPrincipal(c)
	if span := middleware.GetSpan(c); span != nil {
		span.SetAttribute("user.id", principal.Subject)
		span.SetAttribute("user.role", string(principal.Role))
		span.SetAttribute("question.text", req.Question)
	}
	parent, _ := middleware.GetTraceContext(c)

	forwardSpan := h.recorder.Open(trace.StartChild(parent), "gateway.forward_to_llm")
	forwardSpan.SetAttribute("downstream.service", "llm-service")
	forwardStart := time.Now()

	answer, err := h.llmClient.Ask(c.Request.Context(), forwardSpan.Context(), req)
	forwardSpan.SetAttribute("downstream.response_time_ms",
		float64(time.Since(forwardStart).Microseconds())/1000)

	if err != nil {
		forwardSpan.Close(trace.StatusError)
		h.respondDownstreamError(c, err)
		return
	}
	forwardSpan.Close(trace.StatusOK)

	if span := middleware.GetSpan(c); span != nil {
		span.SetAttribute("response.confidence", answer.Confidence)
		span.SetAttribute("response.processing_time_ms", answer.ProcessingTimeMS)
	}

	c.JSON(http.StatusOK, AskResponse{
		Answer: *answer,
		GatewayInfo: GatewayInfo{
			UserID:    principal.Subject,
			RequestID: middleware.GetRequestID(c),
			Timestamp: time.Now().UTC(),
		},
	})
}

// respondDownstreamError maps downstream failures to the gateway's
// stable error responses. Every shape is {"error": "..."} so clients
// never see backend internals.
func (h *Handler) respondDownstreamError(c *gin.Context, err error) {
	h.logger.WithContext(c.Request.Context()).Error("llm service call failed",
		observability.Error(err),
	)

	var downstream *DownstreamError
	switch {
	case errors.Is(err, ErrDownstreamTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "llm service timeout"})
	case errors.As(err, &downstream):
		c.JSON(http.StatusBadGateway, gin.H{"error": "llm service error"})
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "llm service unavailable"})
	}
}

func (h *Handler) handleStats(c *gin.Context) {
	if span := middleware.GetSpan(c); span != nil {
		span.SetAttribute("user.id", middleware.GetPrincipal(c).Subject)
	}

	ctx := c.Request.Context()
	c.JSON(http.StatusOK, StatsResponse{
		Gateway: GatewayStats{
			TotalRequests: h.requests.Load(),
			ActiveClients: h.limiter.ActiveBuckets(),
		},
		Services: map[string]json.RawMessage{
			"llm-service":  h.snapshots.Fetch(ctx, h.llmURL+"/metrics"),
			"vector-store": h.snapshots.Fetch(ctx, h.vectorStoreURL+"/stats"),
		},
	})
}

func (h *Handler) handleTrace(c *gin.Context) {
	traceID := c.Param("id")
	if _, ok := trace.ParseTraceID(traceID); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid trace id"})
		return
	}

	if span := middleware.GetSpan(c); span != nil {
		span.SetAttribute("trace.lookup_id", traceID)
	}

	info, err := h.traces.GetTrace(c.Request.Context(), traceID)
	switch {
	case errors.Is(err, phoenix.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "trace not found"})
	case err != nil:
		h.logger.WithContext(c.Request.Context()).Error("trace lookup failed",
			observability.Error(err),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": "collector unavailable"})
	default:
		c.JSON(http.StatusOK, info)
	}
}
