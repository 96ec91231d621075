package llm

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avaqa/internal/health"
	"github.com/vyrodovalexey/avaqa/internal/middleware"
	"github.com/vyrodovalexey/avaqa/internal/observability"
	"github.com/vyrodovalexey/avaqa/internal/trace"
)

// AskRequest is the body of POST /ask.
type AskRequest struct {
	Question     string   `json:"question" binding:"required"`
	ContextLimit int      `json:"context_limit"`
	Temperature  *float64 `json:"temperature"`
}

// Answer is the body of a successful ask.
type Answer struct {
	Answer           string   `json:"answer"`
	Confidence       float64  `json:"confidence"`
	Sources          []string `json:"sources"`
	PromptTokens     int      `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
	ProcessingTimeMS int64    `json:"processing_time_ms"`
}

// ChatMessage is one turn of a chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Messages    []ChatMessage `json:"messages" binding:"required"`
	Model       string        `json:"model"`
	Temperature *float64      `json:"temperature"`
}

// ChatUsage is the token accounting block of a chat completion.
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatChoice is one completion alternative.
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatResponse mirrors the OpenAI chat completion shape.
type ChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   ChatUsage    `json:"usage"`
}

// MetricsSnapshot is the JSON counters body of GET /metrics.
type MetricsSnapshot struct {
	RequestsTotal     uint64  `json:"requests_total"`
	VectorSearchCalls uint64  `json:"vector_search_calls"`
	LLMCalls          uint64  `json:"llm_calls"`
	Errors            uint64  `json:"errors"`
	ErrorRate         float64 `json:"error_rate"`
}

// DefaultMaxContextDocs caps how many context documents one ask may
// request unless overridden.
const DefaultMaxContextDocs = 20

// Handler serves the LLM answer service HTTP API.
type Handler struct {
	retriever      *VectorStoreClient
	answerer       Answerer
	injector       FailureInjector
	recorder       *trace.Recorder
	checker        *health.Checker
	logger         observability.Logger
	maxContextDocs int

	requests       atomic.Uint64
	vectorSearches atomic.Uint64
	completions    atomic.Uint64
	errors         atomic.Uint64
}

// HandlerOption configures the handler.
type HandlerOption func(*Handler)

// WithMaxContextDocs overrides the per-ask context document cap.
func WithMaxContextDocs(n int) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxContextDocs = n
		}
	}
}

// NewHandler creates the LLM service handler.
func NewHandler(retriever *VectorStoreClient, answerer Answerer, injector FailureInjector, recorder *trace.Recorder, logger observability.Logger, opts ...HandlerOption) *Handler {
	if answerer == nil {
		answerer = TemplateAnswerer{}
	}
	if injector == nil {
		injector = NeverFail{}
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	h := &Handler{
		retriever:      retriever,
		answerer:       answerer,
		injector:       injector,
		recorder:       recorder,
		checker:        health.NewChecker("llm-service"),
		logger:         logger,
		maxContextDocs: DefaultMaxContextDocs,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the routes on the engine.
func (h *Handler) Register(engine *gin.Engine) {
	engine.GET("/health", h.handleHealth)
	engine.POST("/ask", h.handleAsk)
	engine.POST("/chat", h.handleChat)
	engine.GET("/metrics", h.handleMetrics)
}

func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, h.checker.Health())
}

func (h *Handler) handleAsk(c *gin.Context) {
	h.requests.Add(1)
	start := time.Now()

	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
		return
	}
	if req.ContextLimit <= 0 {
		req.ContextLimit = 5
	}
	if req.ContextLimit > h.maxContextDocs {
		req.ContextLimit = h.maxContextDocs
	}
	temperature := 0.7
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	if span := middleware.GetSpan(c); span != nil {
		span.SetAttribute("question.text", req.Question)
		span.SetAttribute("question.context_limit", req.ContextLimit)
		span.SetAttribute("question.temperature", temperature)
	}
	parent, _ := middleware.GetTraceContext(c)

	// Retrieval runs under its own span whose context is propagated to
	// the vector store, so its server span nests below this one.
	retrieveSpan := h.recorder.Open(trace.StartChild(parent), "llm.retrieve_context")
	retrieveSpan.SetAttribute("vector_store.query", req.Question)
	retrieveSpan.SetAttribute("vector_store.limit", req.ContextLimit)
	h.vectorSearches.Add(1)

	docs, err := h.retriever.Search(c.Request.Context(), retrieveSpan.Context(), req.Question, req.ContextLimit)
	if err != nil {
		retrieveSpan.Close(trace.StatusError)
		h.errors.Add(1)
		h.logger.WithContext(c.Request.Context()).Error("context retrieval failed",
			observability.Error(err),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": "context retrieval failed"})
		return
	}
	retrieveSpan.SetAttribute("vector_store.results_count", len(docs))
	if len(docs) > 0 {
		retrieveSpan.SetAttribute("vector_store.top_score", docs[0].Score)
	}
	retrieveSpan.Close(trace.StatusOK)

	contexts := make([]string, 0, len(docs))
	sources := make([]string, 0, len(docs))
	scores := make([]float64, 0, len(docs))
	for _, doc := range docs {
		contexts = append(contexts, doc.Content)
		scores = append(scores, doc.Score)
		if src, ok := doc.Metadata["source"].(string); ok {
			sources = append(sources, src)
		}
	}

	completionSpan := h.recorder.Open(trace.StartChild(parent), "llm.completion")
	completionSpan.SetAttribute("llm.request.model", h.answerer.Model())
	completionSpan.SetAttribute("llm.request.temperature", temperature)
	h.completions.Add(1)

	if h.injector.ShouldFail() {
		completionSpan.AddEvent("synthetic generation failure injected")
		completionSpan.Close(trace.StatusError)
		h.errors.Add(1)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "llm generation failed"})
		return
	}

	answer := h.answerer.Answer(req.Question, contexts, temperature)
	promptTokens := EstimateTokens(req.Question)
	for _, ctx := range contexts {
		promptTokens += EstimateTokens(ctx)
	}
	completionTokens := EstimateTokens(answer)
	completionSpan.SetAttribute("llm.usage.prompt_tokens", promptTokens)
	completionSpan.SetAttribute("llm.usage.completion_tokens", completionTokens)
	completionSpan.SetAttribute("llm.usage.total_tokens", promptTokens+completionTokens)
	completionSpan.SetAttribute("llm.response.finish_reason", "stop")
	completionSpan.Close(trace.StatusOK)

	confidenceSpan := h.recorder.Open(trace.StartChild(parent), "llm.calculate_confidence")
	confidence := Confidence(scores)
	confidenceSpan.SetAttribute("confidence.final", confidence)
	confidenceSpan.Close(trace.StatusOK)

	elapsed := time.Since(start).Milliseconds()
	if span := middleware.GetSpan(c); span != nil {
		span.SetAttribute("response.confidence", confidence)
		span.SetAttribute("response.sources_count", len(sources))
		span.SetAttribute("response.processing_time_ms", elapsed)
	}

	c.JSON(http.StatusOK, Answer{
		Answer:           answer,
		Confidence:       confidence,
		Sources:          sources,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		ProcessingTimeMS: elapsed,
	})
}

func (h *Handler) handleChat(c *gin.Context) {
	h.requests.Add(1)

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "messages are required"})
		return
	}
	model := req.Model
	if model == "" {
		model = h.answerer.Model()
	}

	if span := middleware.GetSpan(c); span != nil {
		span.SetAttribute("llm.request.model", model)
		span.SetAttribute("llm.request.messages_count", len(req.Messages))
	}

	last := req.Messages[len(req.Messages)-1].Content
	preview := last
	if len(preview) > 50 {
		preview = preview[:50]
	}
	content := fmt.Sprintf("I understand your message: '%s...' Here's my response based on that.", preview)

	promptTokens := 0
	for _, msg := range req.Messages {
		promptTokens += EstimateTokens(msg.Content)
	}
	completionTokens := EstimateTokens(content)

	if span := middleware.GetSpan(c); span != nil {
		span.SetAttribute("llm.usage.prompt_tokens", promptTokens)
		span.SetAttribute("llm.usage.completion_tokens", completionTokens)
		span.SetAttribute("llm.usage.total_tokens", promptTokens+completionTokens)
	}

	c.JSON(http.StatusOK, ChatResponse{
		ID:     "chatcmpl-" + trace.NewSpanID().String(),
		Object: "chat.completion",
		Model:  model,
		Choices: []ChatChoice{{
			Index:        0,
			Message:      ChatMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: ChatUsage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	})
}

func (h *Handler) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.Snapshot())
}

// Snapshot returns the current service counters.
func (h *Handler) Snapshot() MetricsSnapshot {
	requests := h.requests.Load()
	errors := h.errors.Load()
	var rate float64
	if requests > 0 {
		rate = float64(errors) / float64(requests)
	}
	return MetricsSnapshot{
		RequestsTotal:     requests,
		VectorSearchCalls: h.vectorSearches.Load(),
		LLMCalls:          h.completions.Load(),
		Errors:            errors,
		ErrorRate:         rate,
	}
}
