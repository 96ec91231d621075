package export

import (
	"context"
	"fmt"

	"github.com/vyrodovalexey/avaqa/internal/observability"
	"github.com/vyrodovalexey/avaqa/internal/trace"
)

// Exporter ships a batch of completed spans to the collector. The export
// queue's worker is the only caller, so implementations need not be safe
// for concurrent Export calls.
type Exporter interface {
	// Export submits one batch. An error marks the whole batch as failed;
	// the queue decides whether to retry.
	Export(ctx context.Context, spans []*trace.Span) error

	// Shutdown releases transport resources.
	Shutdown(ctx context.Context) error
}

// Collector transport protocols.
const (
	ProtocolHTTP = "http"
	ProtocolGRPC = "grpc"
)

// ExporterConfig configures the wire exporter.
type ExporterConfig struct {
	// Protocol selects the transport: "http" (OTLP/HTTP protobuf to
	// <endpoint>/v1/traces, Phoenix-compatible) or "grpc".
	Protocol string

	// Endpoint is the collector base URL for HTTP (e.g.
	// "http://phoenix:6006") or host:port for gRPC.
	Endpoint string

	// ServiceName is recorded as the resource service.name attribute.
	ServiceName string
}

// NewExporter creates a wire exporter for the configured protocol.
func NewExporter(cfg ExporterConfig, logger observability.Logger) (Exporter, error) {
	switch cfg.Protocol {
	case ProtocolGRPC:
		return NewGRPCExporter(cfg, logger)
	case ProtocolHTTP, "":
		return NewHTTPExporter(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported collector protocol %q", cfg.Protocol)
	}
}
