package vectorstore

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avaqa/internal/health"
	"github.com/vyrodovalexey/avaqa/internal/middleware"
	"github.com/vyrodovalexey/avaqa/internal/observability"
	"github.com/vyrodovalexey/avaqa/internal/trace"
)

// DefaultSearchThreshold excludes documents whose blended score falls
// below it unless the caller overrides.
const DefaultSearchThreshold = 0.5

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Query     string   `json:"query" binding:"required"`
	Limit     int      `json:"limit"`
	Threshold *float64 `json:"threshold"`
}

// SearchResponse is the body of a successful search.
type SearchResponse struct {
	Results []Result `json:"results"`
	Count   int      `json:"count"`
}

// EmbedRequest is the body of POST /embed.
type EmbedRequest struct {
	Text string `json:"text" binding:"required"`
}

// EmbedResponse is the body of a successful embed call.
type EmbedResponse struct {
	Embedding  []float64 `json:"embedding"`
	Model      string    `json:"model"`
	Dimensions int       `json:"dimensions"`
}

// Handler serves the vector store HTTP API.
type Handler struct {
	store    *Store
	recorder *trace.Recorder
	checker  *health.Checker
	logger   observability.Logger
}

// NewHandler creates the vector store handler.
func NewHandler(store *Store, recorder *trace.Recorder, logger observability.Logger) *Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Handler{
		store:    store,
		recorder: recorder,
		checker:  health.NewChecker("vector-store"),
		logger:   logger,
	}
}

// Register mounts the routes on the engine.
func (h *Handler) Register(engine *gin.Engine) {
	engine.GET("/health", h.handleHealth)
	engine.POST("/search", h.handleSearch)
	engine.POST("/embed", h.handleEmbed)
	engine.GET("/stats", h.handleStats)
}

func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, h.checker.Health())
}

func (h *Handler) handleSearch(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}
	threshold := DefaultSearchThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	if span := middleware.GetSpan(c); span != nil {
		span.SetAttribute("search.query", req.Query)
		span.SetAttribute("search.limit", req.Limit)
		span.SetAttribute("search.threshold", threshold)
	}

	// The embedding and ranking phases get their own child spans so
	// collector timelines show where search time goes.
	parent, _ := middleware.GetTraceContext(c)

	embedSpan := h.recorder.Open(trace.StartChild(parent), "vectorstore.embed_query")
	embedStart := time.Now()
	queryVec := h.store.Embedder().Embed(req.Query)
	embedSpan.SetAttribute("embedding.dimensions", h.store.Embedder().Dimensions())
	embedSpan.SetAttribute("embedding.time_ms", float64(time.Since(embedStart).Microseconds())/1000)
	embedSpan.Close(trace.StatusOK)

	searchSpan := h.recorder.Open(trace.StartChild(parent), "vectorstore.similarity_search")
	searchStart := time.Now()
	results := h.store.SearchEmbedded(queryVec, req.Query, req.Limit, threshold)
	searchSpan.SetAttribute("search.candidates_count", h.store.CandidateCount())
	searchSpan.SetAttribute("search.results_count", len(results))
	searchSpan.SetAttribute("search.time_ms", float64(time.Since(searchStart).Microseconds())/1000)
	if len(results) > 0 {
		searchSpan.SetAttribute("search.top_score", results[0].Score)
	}
	searchSpan.Close(trace.StatusOK)

	if span := middleware.GetSpan(c); span != nil {
		span.SetAttribute("response.results_count", len(results))
	}

	c.JSON(http.StatusOK, SearchResponse{Results: results, Count: len(results)})
}

func (h *Handler) handleEmbed(c *gin.Context) {
	var req EmbedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	if span := middleware.GetSpan(c); span != nil {
		span.SetAttribute("embedding.input_length", len(req.Text))
		span.SetAttribute("embedding.model", h.store.Embedder().Model())
	}

	embedding := h.store.Embedder().Embed(req.Text)
	c.JSON(http.StatusOK, EmbedResponse{
		Embedding:  embedding,
		Model:      h.store.Embedder().Model(),
		Dimensions: len(embedding),
	})
}

func (h *Handler) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Stats())
}
