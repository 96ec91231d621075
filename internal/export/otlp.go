package export

import (
	"fmt"

	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/vyrodovalexey/avaqa/internal/trace"
)

// instrumentationScopeName identifies this span pipeline in exported data.
const instrumentationScopeName = "github.com/vyrodovalexey/avaqa"

// buildExportRequest converts a batch of completed spans into an OTLP
// ExportTraceServiceRequest with the service name as a resource attribute.
func buildExportRequest(serviceName string, spans []*trace.Span) *coltracepb.ExportTraceServiceRequest {
	pbSpans := make([]*tracepb.Span, 0, len(spans))
	for _, span := range spans {
		pbSpans = append(pbSpans, toPBSpan(span))
	}

	return &coltracepb.ExportTraceServiceRequest{
		ResourceSpans: []*tracepb.ResourceSpans{
			{
				Resource: &resourcepb.Resource{
					Attributes: []*commonpb.KeyValue{
						{
							Key:   "service.name",
							Value: toPBValue(serviceName),
						},
					},
				},
				ScopeSpans: []*tracepb.ScopeSpans{
					{
						Scope: &commonpb.InstrumentationScope{
							Name: instrumentationScopeName,
						},
						Spans: pbSpans,
					},
				},
			},
		},
	}
}

// toPBSpan converts one span to its OTLP representation.
func toPBSpan(span *trace.Span) *tracepb.Span {
	pb := &tracepb.Span{
		TraceId:           span.TraceID[:],
		SpanId:            span.SpanID[:],
		Name:              span.Name,
		Kind:              tracepb.Span_SPAN_KIND_INTERNAL,
		StartTimeUnixNano: uint64(span.StartTime.UnixNano()),
		EndTimeUnixNano:   uint64(span.EndTime.UnixNano()),
		Status:            toPBStatus(span.Status),
	}

	if span.ParentSpanID.IsValid() {
		pb.ParentSpanId = span.ParentSpanID[:]
	}

	for key, value := range span.Attributes {
		pb.Attributes = append(pb.Attributes, &commonpb.KeyValue{
			Key:   key,
			Value: toPBValue(value),
		})
	}

	for _, event := range span.Events {
		pb.Events = append(pb.Events, &tracepb.Span_Event{
			TimeUnixNano: uint64(event.Timestamp.UnixNano()),
			Name:         event.Message,
		})
	}

	return pb
}

// toPBStatus maps a span status to the OTLP status message.
func toPBStatus(status trace.Status) *tracepb.Status {
	if status == trace.StatusError {
		return &tracepb.Status{Code: tracepb.Status_STATUS_CODE_ERROR}
	}
	return &tracepb.Status{Code: tracepb.Status_STATUS_CODE_OK}
}

// toPBValue converts a scalar attribute value to an OTLP AnyValue.
// Unknown types are stringified rather than dropped.
func toPBValue(value any) *commonpb.AnyValue {
	switch v := value.(type) {
	case string:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: v}}
	case bool:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_BoolValue{BoolValue: v}}
	case int:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: int64(v)}}
	case int64:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: v}}
	case float64:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_DoubleValue{DoubleValue: v}}
	case float32:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_DoubleValue{DoubleValue: float64(v)}}
	default:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: fmt.Sprint(v)}}
	}
}
