package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadGateway_Defaults(t *testing.T) {
	cfg, err := LoadGateway()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "http://localhost:8001", cfg.LLMServiceURL)
	assert.Equal(t, "http://localhost:8002", cfg.VectorStoreURL)
	assert.Equal(t, 20, cfg.RateLimitCapacity)
	assert.Equal(t, 10.0, cfg.RateLimitRefill)
	assert.Equal(t, "http://localhost:6006", cfg.Tracing.CollectorEndpoint)
	assert.Equal(t, "http", cfg.Tracing.Protocol)
	assert.Equal(t, 2048, cfg.Tracing.BufferCapacity)
}

func TestLoadGateway_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("ADMIN_TOKEN", "s3cret")
	t.Setenv("COLLECTOR_PROTOCOL", "grpc")

	cfg, err := LoadGateway()
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, "s3cret", cfg.AdminToken)
	assert.Equal(t, "grpc", cfg.Tracing.Protocol)
}

func TestLoadGateway_RejectsBadProtocol(t *testing.T) {
	t.Setenv("COLLECTOR_PROTOCOL", "carrier-pigeon")

	_, err := LoadGateway()
	assert.ErrorContains(t, err, "COLLECTOR_PROTOCOL")
}

func TestLoadGateway_RejectsBatchLargerThanBuffer(t *testing.T) {
	t.Setenv("TRACE_BATCH_SIZE", "4096")
	t.Setenv("TRACE_BUFFER_CAPACITY", "1024")

	_, err := LoadGateway()
	assert.ErrorContains(t, err, "TRACE_BATCH_SIZE")
}

func TestLoadLLM_RejectsBadErrorProbability(t *testing.T) {
	t.Setenv("ERROR_PROBABILITY", "1.5")

	_, err := LoadLLM()
	assert.ErrorContains(t, err, "ERROR_PROBABILITY")
}

func TestLoadLLM_RejectsNonPositiveMaxContextDocs(t *testing.T) {
	t.Setenv("MAX_CONTEXT_DOCS", "0")

	_, err := LoadLLM()
	assert.ErrorContains(t, err, "MAX_CONTEXT_DOCS")
}

func TestLoadVectorStore_Defaults(t *testing.T) {
	cfg, err := LoadVectorStore()
	require.NoError(t, err)
	assert.Equal(t, "8002", cfg.Port)
	assert.Equal(t, 128, cfg.EmbeddingDim)
}
