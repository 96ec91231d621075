// Package gateway implements the public API Gateway: authentication and
// rate limiting happen in middleware, this package routes admitted
// requests to the backend services and maps their failures to a stable
// error taxonomy.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/avaqa/internal/llm"
	"github.com/vyrodovalexey/avaqa/internal/observability"
	"github.com/vyrodovalexey/avaqa/internal/trace"
)

// Sentinel errors for downstream calls.
var (
	// ErrDownstreamTimeout indicates the backend missed the deadline.
	ErrDownstreamTimeout = errors.New("downstream timeout")

	// ErrDownstreamUnavailable indicates the backend could not be
	// reached or the circuit is open.
	ErrDownstreamUnavailable = errors.New("downstream unavailable")
)

// DownstreamError carries a backend's non-2xx response.
type DownstreamError struct {
	Status int
	Body   string
}

func (e *DownstreamError) Error() string {
	return fmt.Sprintf("downstream returned status %d", e.Status)
}

// LLMClient forwards questions to the LLM service behind a circuit
// breaker, with every call bounded by a deadline.
type LLMClient struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  observability.Logger
}

// NewLLMClient creates the gateway's LLM service client.
func NewLLMClient(baseURL string, timeout time.Duration, logger observability.Logger) *LLMClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	c := &LLMClient{
		baseURL: baseURL,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm-service",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
	})

	return c
}

// Ask forwards an ask request to the LLM service, propagating the trace
// context tc. Timeouts, unreachable backends, and backend error statuses
// map to the gateway's sentinel errors.
func (c *LLMClient) Ask(ctx context.Context, tc trace.Context, req llm.AskRequest) (*llm.Answer, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.ask(ctx, tc, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit open", ErrDownstreamUnavailable)
		}
		return nil, err
	}
	return result.(*llm.Answer), nil
}

func (c *LLMClient) ask(ctx context.Context, tc trace.Context, askReq llm.AskRequest) (*llm.Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(askReq)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ask request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ask", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build ask request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	trace.Inject(tc, req.Header)

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrDownstreamTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrDownstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &DownstreamError{Status: resp.StatusCode, Body: string(payload)}
	}

	var answer llm.Answer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return nil, fmt.Errorf("failed to decode answer: %w", err)
	}
	return &answer, nil
}

// SnapshotClient fetches downstream statistics snapshots for the
// gateway's stats endpoint.
type SnapshotClient struct {
	client *http.Client
}

// NewSnapshotClient creates a snapshot client with the given timeout.
func NewSnapshotClient(timeout time.Duration) *SnapshotClient {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &SnapshotClient{client: &http.Client{Timeout: timeout}}
}

// Fetch performs a GET and returns the raw JSON body, or an
// "unavailable" marker object when the service cannot answer.
func (s *SnapshotClient) Fetch(ctx context.Context, url string) json.RawMessage {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return unavailableSnapshot()
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return unavailableSnapshot()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return unavailableSnapshot()
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil || !json.Valid(body) {
		return unavailableSnapshot()
	}
	return body
}

func unavailableSnapshot() json.RawMessage {
	return json.RawMessage(`{"status":"unavailable"}`)
}
