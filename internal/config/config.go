// Package config loads per-service configuration from environment
// variables. Each service has its own top-level struct so unrelated
// settings never leak across process boundaries.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// LogConfig holds logging configuration shared by all services.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

// TracingConfig holds trace export configuration shared by all services.
type TracingConfig struct {
	// CollectorEndpoint is the base URL (HTTP) or target (gRPC) of the
	// trace collector.
	CollectorEndpoint string `envconfig:"COLLECTOR_ENDPOINT" default:"http://localhost:6006"`
	Protocol          string `envconfig:"COLLECTOR_PROTOCOL" default:"http"`

	BufferCapacity int `envconfig:"TRACE_BUFFER_CAPACITY" default:"2048"`
	BatchSize      int `envconfig:"TRACE_BATCH_SIZE" default:"512"`
	FlushIntervalS int `envconfig:"TRACE_FLUSH_INTERVAL_S" default:"5"`
	MaxAttempts    int `envconfig:"TRACE_MAX_ATTEMPTS" default:"3"`
}

// GatewayConfig holds API Gateway configuration.
type GatewayConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	LLMServiceURL  string `envconfig:"LLM_SERVICE_URL" default:"http://localhost:8001"`
	VectorStoreURL string `envconfig:"VECTOR_STORE_URL" default:"http://localhost:8002"`

	// AdminToken overrides the development admin credential.
	AdminToken string `envconfig:"ADMIN_TOKEN" default:""`

	// DownstreamTimeoutS bounds every proxied call to a backend service.
	DownstreamTimeoutS int `envconfig:"DOWNSTREAM_TIMEOUT_S" default:"10"`

	RateLimitCapacity int     `envconfig:"RATE_LIMIT_CAPACITY" default:"20"`
	RateLimitRefill   float64 `envconfig:"RATE_LIMIT_REFILL" default:"10"`

	Logging LogConfig
	Tracing TracingConfig
}

// LLMConfig holds LLM answer service configuration.
type LLMConfig struct {
	Port string `envconfig:"PORT" default:"8001"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	VectorStoreURL string `envconfig:"VECTOR_STORE_URL" default:"http://localhost:8002"`

	// RetrievalTimeoutS bounds each retrieval call to the vector store.
	RetrievalTimeoutS int `envconfig:"RETRIEVAL_TIMEOUT_S" default:"5"`

	// ErrorProbability injects synthetic generation failures for
	// trace demonstration. Zero disables injection.
	ErrorProbability float64 `envconfig:"ERROR_PROBABILITY" default:"0.1"`

	// MaxContextDocs caps how many context documents one ask may pull
	// from the vector store.
	MaxContextDocs int `envconfig:"MAX_CONTEXT_DOCS" default:"20"`

	Logging LogConfig
	Tracing TracingConfig
}

// VectorStoreConfig holds vector store service configuration.
type VectorStoreConfig struct {
	Port string `envconfig:"PORT" default:"8002"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	// EmbeddingDim is the dimensionality of the deterministic embedding.
	EmbeddingDim int `envconfig:"EMBEDDING_DIM" default:"128"`

	Logging LogConfig
	Tracing TracingConfig
}

// LoadGateway loads API Gateway configuration from the environment.
func LoadGateway() (*GatewayConfig, error) {
	var cfg GatewayConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load gateway config: %w", err)
	}
	if err := validateTracing(&cfg.Tracing); err != nil {
		return nil, err
	}
	if cfg.DownstreamTimeoutS <= 0 {
		return nil, fmt.Errorf("DOWNSTREAM_TIMEOUT_S must be positive, got %d", cfg.DownstreamTimeoutS)
	}
	if cfg.RateLimitCapacity <= 0 || cfg.RateLimitRefill <= 0 {
		return nil, fmt.Errorf("rate limit capacity and refill must be positive")
	}
	return &cfg, nil
}

// LoadLLM loads LLM service configuration from the environment.
func LoadLLM() (*LLMConfig, error) {
	var cfg LLMConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load llm config: %w", err)
	}
	if err := validateTracing(&cfg.Tracing); err != nil {
		return nil, err
	}
	if cfg.ErrorProbability < 0 || cfg.ErrorProbability > 1 {
		return nil, fmt.Errorf("ERROR_PROBABILITY must be in [0,1], got %g", cfg.ErrorProbability)
	}
	if cfg.MaxContextDocs <= 0 {
		return nil, fmt.Errorf("MAX_CONTEXT_DOCS must be positive, got %d", cfg.MaxContextDocs)
	}
	return &cfg, nil
}

// LoadVectorStore loads vector store configuration from the environment.
func LoadVectorStore() (*VectorStoreConfig, error) {
	var cfg VectorStoreConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load vector store config: %w", err)
	}
	if err := validateTracing(&cfg.Tracing); err != nil {
		return nil, err
	}
	if cfg.EmbeddingDim <= 0 {
		return nil, fmt.Errorf("EMBEDDING_DIM must be positive, got %d", cfg.EmbeddingDim)
	}
	return &cfg, nil
}

func validateTracing(tc *TracingConfig) error {
	if tc.Protocol != "http" && tc.Protocol != "grpc" {
		return fmt.Errorf("COLLECTOR_PROTOCOL must be http or grpc, got %q", tc.Protocol)
	}
	if tc.BufferCapacity <= 0 || tc.BatchSize <= 0 {
		return fmt.Errorf("trace buffer capacity and batch size must be positive")
	}
	if tc.BatchSize > tc.BufferCapacity {
		return fmt.Errorf("TRACE_BATCH_SIZE %d exceeds TRACE_BUFFER_CAPACITY %d", tc.BatchSize, tc.BufferCapacity)
	}
	return nil
}
