// Package phoenix queries the trace collector for stored traces. The
// gateway exposes this as a read-only passthrough so operators can look
// up a trace by ID without direct collector access.
package phoenix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/vyrodovalexey/avaqa/internal/observability"
)

// Sentinel errors for trace queries.
var (
	// ErrNotFound indicates the collector has no trace with that ID.
	ErrNotFound = errors.New("trace not found")

	// ErrUnavailable indicates the collector could not be reached.
	ErrUnavailable = errors.New("collector unavailable")
)

// TraceInfo is the gateway's view of one stored trace.
type TraceInfo struct {
	TraceID    string          `json:"trace_id"`
	PhoenixURL string          `json:"phoenix_url"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Client queries the collector's trace API with retries on transient
// failures.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
	logger  observability.Logger
}

// NewClient creates a collector query client for the endpoint the
// exporter ships to.
func NewClient(baseURL string, logger observability.Logger) *Client {
	if logger == nil {
		logger = observability.NopLogger()
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    rc,
		logger:  logger,
	}
}

// GetTrace fetches the stored trace with the given ID. The raw collector
// payload is passed through untouched.
func (c *Client) GetTrace(ctx context.Context, traceID string) (*TraceInfo, error) {
	url := fmt.Sprintf("%s/v1/traces/%s", c.baseURL, traceID)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build trace query: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("trace query failed",
			observability.String("trace_id", traceID),
			observability.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &TraceInfo{
		TraceID:    traceID,
		PhoenixURL: fmt.Sprintf("%s/traces/%s", c.baseURL, traceID),
		Data:       body,
	}, nil
}
