package export

import (
	"context"
	"fmt"

	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/vyrodovalexey/avaqa/internal/observability"
	"github.com/vyrodovalexey/avaqa/internal/trace"
)

// GRPCExporter ships span batches over the OTLP gRPC TraceService.
type GRPCExporter struct {
	conn        *grpc.ClientConn
	client      coltracepb.TraceServiceClient
	serviceName string
	logger      observability.Logger
}

// NewGRPCExporter creates an OTLP/gRPC exporter. The connection is lazy;
// dial errors surface on the first Export.
func NewGRPCExporter(cfg ExporterConfig, logger observability.Logger) (*GRPCExporter, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	conn, err := grpc.NewClient(cfg.Endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("create collector connection: %w", err)
	}

	return &GRPCExporter{
		conn:        conn,
		client:      coltracepb.NewTraceServiceClient(conn),
		serviceName: cfg.ServiceName,
		logger:      logger,
	}, nil
}

// Export implements Exporter.
func (e *GRPCExporter) Export(ctx context.Context, spans []*trace.Span) error {
	resp, err := e.client.Export(ctx, buildExportRequest(e.serviceName, spans))
	if err != nil {
		return fmt.Errorf("export trace batch: %w", err)
	}

	if partial := resp.GetPartialSuccess(); partial != nil && partial.GetRejectedSpans() > 0 {
		e.logger.Warn("collector rejected part of the batch",
			observability.Int64("rejected", partial.GetRejectedSpans()),
			observability.String("message", partial.GetErrorMessage()),
		)
	}

	e.logger.Debug("exported span batch",
		observability.Int("count", len(spans)),
	)
	return nil
}

// Shutdown implements Exporter.
func (e *GRPCExporter) Shutdown(ctx context.Context) error {
	return e.conn.Close()
}

var _ Exporter = (*GRPCExporter)(nil)
