package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"google.golang.org/protobuf/proto"

	"github.com/vyrodovalexey/avaqa/internal/observability"
	"github.com/vyrodovalexey/avaqa/internal/trace"
)

// OTLP/HTTP transport constants.
const (
	// TracesPath is the OTLP HTTP traces ingestion path, as served by
	// the Phoenix collector.
	TracesPath = "/v1/traces"

	contentTypeProtobuf = "application/x-protobuf"
)

// HTTPExporter ships span batches as OTLP/HTTP protobuf requests.
type HTTPExporter struct {
	url         string
	serviceName string
	client      *http.Client
	logger      observability.Logger
}

// NewHTTPExporter creates an OTLP/HTTP exporter posting to
// <endpoint>/v1/traces.
func NewHTTPExporter(cfg ExporterConfig, logger observability.Logger) *HTTPExporter {
	if logger == nil {
		logger = observability.NopLogger()
	}

	url := strings.TrimRight(cfg.Endpoint, "/")
	if !strings.HasSuffix(url, TracesPath) {
		url += TracesPath
	}

	return &HTTPExporter{
		url:         url,
		serviceName: cfg.ServiceName,
		client: &http.Client{
			Timeout: DefaultExportTimeout,
		},
		logger: logger,
	}
}

// Export implements Exporter.
func (e *HTTPExporter) Export(ctx context.Context, spans []*trace.Span) error {
	payload, err := proto.Marshal(buildExportRequest(e.serviceName, spans))
	if err != nil {
		return fmt.Errorf("marshal trace batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build export request: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeProtobuf)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("post trace batch: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("collector rejected trace batch: status %d", resp.StatusCode)
	}

	e.logger.Debug("exported span batch",
		observability.Int("count", len(spans)),
		observability.String("endpoint", e.url),
	)
	return nil
}

// Shutdown implements Exporter.
func (e *HTTPExporter) Shutdown(ctx context.Context) error {
	e.client.CloseIdleConnections()
	return nil
}

var _ Exporter = (*HTTPExporter)(nil)
