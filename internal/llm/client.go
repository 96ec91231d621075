package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vyrodovalexey/avaqa/internal/trace"
	"github.com/vyrodovalexey/avaqa/internal/vectorstore"
)

// VectorStoreClient retrieves context documents over HTTP, propagating
// the caller's trace so retrieval shows up in the same timeline.
type VectorStoreClient struct {
	baseURL string
	client  *http.Client
}

// NewVectorStoreClient creates a client for the vector store at baseURL.
// Every search is bounded by timeout.
func NewVectorStoreClient(baseURL string, timeout time.Duration) *VectorStoreClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &VectorStoreClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Search queries the vector store for documents similar to query. The
// trace context tc identifies the calling span and is propagated in the
// request headers.
func (c *VectorStoreClient) Search(ctx context.Context, tc trace.Context, query string, limit int) ([]vectorstore.Result, error) {
	body, err := json.Marshal(vectorstore.SearchRequest{Query: query, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	trace.Inject(tc, req.Header)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vector store search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("vector store search failed: status %d", resp.StatusCode)
	}

	var result vectorstore.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return result.Results, nil
}
