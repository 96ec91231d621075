// Package health provides per-service health endpoints and downstream
// dependency aggregation for the API Gateway.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Status represents the health status.
type Status string

const (
	// StatusHealthy indicates the service is healthy.
	StatusHealthy Status = "healthy"
	// StatusUnhealthy indicates the service is unhealthy.
	StatusUnhealthy Status = "unhealthy"
)

// Response is the body of a single service's health endpoint.
type Response struct {
	Status    Status    `json:"status"`
	Service   string    `json:"service"`
	Uptime    string    `json:"uptime,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DependencyStatus is the aggregated view of one downstream service.
type DependencyStatus struct {
	Status Status `json:"status"`
	// LatencyMS is the probe round-trip time in milliseconds.
	LatencyMS float64 `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
}

// AggregateResponse is the gateway health body: its own status plus one
// entry per downstream dependency.
type AggregateResponse struct {
	Status    Status                      `json:"status"`
	Service   string                      `json:"service"`
	Services  map[string]DependencyStatus `json:"services"`
	Timestamp time.Time                   `json:"timestamp"`
}

// Checker reports a service's own health.
type Checker struct {
	service   string
	startTime time.Time
}

// NewChecker creates a health checker for the named service.
func NewChecker(service string) *Checker {
	return &Checker{
		service:   service,
		startTime: time.Now(),
	}
}

// Health returns the service's own health. A process that can answer
// the probe is healthy.
func (c *Checker) Health() Response {
	return Response{
		Status:    StatusHealthy,
		Service:   c.service,
		Uptime:    time.Since(c.startTime).Round(time.Second).String(),
		Timestamp: time.Now(),
	}
}

// Prober checks downstream service health over HTTP.
type Prober struct {
	client *http.Client

	mu      sync.RWMutex
	targets map[string]string // name -> base URL
}

// NewProber creates a dependency prober with the given probe timeout.
func NewProber(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Prober{
		client:  &http.Client{Timeout: timeout},
		targets: make(map[string]string),
	}
}

// Register adds a downstream service to probe at baseURL + /health.
func (p *Prober) Register(name, baseURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.targets[name] = baseURL
}

// Aggregate probes every registered dependency concurrently and folds
// the results into one gateway-level status. Any unhealthy dependency
// makes the aggregate unhealthy.
func (p *Prober) Aggregate(ctx context.Context, service string) AggregateResponse {
	p.mu.RLock()
	targets := make(map[string]string, len(p.targets))
	for name, url := range p.targets {
		targets[name] = url
	}
	p.mu.RUnlock()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]DependencyStatus, len(targets))
	)
	for name, url := range targets {
		wg.Add(1)
		go func(name, url string) {
			defer wg.Done()
			status := p.probe(ctx, url)
			mu.Lock()
			results[name] = status
			mu.Unlock()
		}(name, url)
	}
	wg.Wait()

	overall := StatusHealthy
	for _, r := range results {
		if r.Status != StatusHealthy {
			overall = StatusUnhealthy
		}
	}

	return AggregateResponse{
		Status:    overall,
		Service:   service,
		Services:  results,
		Timestamp: time.Now(),
	}
}

// probe performs one health request against a downstream service.
func (p *Prober) probe(ctx context.Context, baseURL string) DependencyStatus {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return DependencyStatus{Status: StatusUnhealthy, Error: err.Error()}
	}

	resp, err := p.client.Do(req)
	latency := float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		return DependencyStatus{
			Status:    StatusUnhealthy,
			LatencyMS: latency,
			Error:     err.Error(),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return DependencyStatus{
			Status:    StatusUnhealthy,
			LatencyMS: latency,
			Error:     fmt.Sprintf("status %d", resp.StatusCode),
		}
	}

	var body Response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return DependencyStatus{
			Status:    StatusUnhealthy,
			LatencyMS: latency,
			Error:     "invalid health response",
		}
	}

	return DependencyStatus{Status: body.Status, LatencyMS: latency}
}
