package export

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/vyrodovalexey/avaqa/internal/trace"
)

func TestBuildExportRequest(t *testing.T) {
	root := trace.StartRoot()
	child := trace.StartChild(root)
	start := time.Now()
	end := start.Add(30 * time.Millisecond)

	span := &trace.Span{
		TraceID:      child.TraceID,
		SpanID:       child.SpanID,
		ParentSpanID: child.ParentSpanID,
		Name:         "vectorstore.search",
		StartTime:    start,
		EndTime:      end,
		Status:       trace.StatusOK,
		Attributes: map[string]any{
			"search.query":      "what is ai",
			"search.limit":      3,
			"search.top_score":  0.91,
			"search.cache_hit":  false,
			"search.elapsed_ns": int64(123456),
		},
		Events: []trace.Event{
			{Timestamp: start, Message: "embedding computed"},
		},
	}

	req := buildExportRequest("vector-store", []*trace.Span{span})

	require.Len(t, req.ResourceSpans, 1)
	rs := req.ResourceSpans[0]

	require.Len(t, rs.Resource.Attributes, 1)
	assert.Equal(t, "service.name", rs.Resource.Attributes[0].Key)
	assert.Equal(t, "vector-store", rs.Resource.Attributes[0].Value.GetStringValue())

	require.Len(t, rs.ScopeSpans, 1)
	require.Len(t, rs.ScopeSpans[0].Spans, 1)
	pb := rs.ScopeSpans[0].Spans[0]

	assert.Equal(t, span.TraceID[:], pb.TraceId)
	assert.Equal(t, span.SpanID[:], pb.SpanId)
	assert.Equal(t, span.ParentSpanID[:], pb.ParentSpanId)
	assert.Equal(t, "vectorstore.search", pb.Name)
	assert.Equal(t, uint64(start.UnixNano()), pb.StartTimeUnixNano)
	assert.Equal(t, uint64(end.UnixNano()), pb.EndTimeUnixNano)
	assert.Equal(t, tracepb.Status_STATUS_CODE_OK, pb.Status.Code)

	attrs := make(map[string]*commonpb.AnyValue, len(pb.Attributes))
	for _, kv := range pb.Attributes {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "what is ai", attrs["search.query"].GetStringValue())
	assert.Equal(t, int64(3), attrs["search.limit"].GetIntValue())
	assert.InDelta(t, 0.91, attrs["search.top_score"].GetDoubleValue(), 1e-9)
	assert.False(t, attrs["search.cache_hit"].GetBoolValue())
	assert.Equal(t, int64(123456), attrs["search.elapsed_ns"].GetIntValue())

	require.Len(t, pb.Events, 1)
	assert.Equal(t, "embedding computed", pb.Events[0].Name)
	assert.Equal(t, uint64(start.UnixNano()), pb.Events[0].TimeUnixNano)
}

func TestBuildExportRequest_RootSpanHasNoParent(t *testing.T) {
	ctx := trace.StartRoot()
	span := &trace.Span{
		TraceID:   ctx.TraceID,
		SpanID:    ctx.SpanID,
		Name:      "gateway.ask",
		StartTime: time.Now(),
		EndTime:   time.Now(),
		Status:    trace.StatusError,
	}

	req := buildExportRequest("api-gateway", []*trace.Span{span})
	pb := req.ResourceSpans[0].ScopeSpans[0].Spans[0]

	assert.Nil(t, pb.ParentSpanId)
	assert.Equal(t, tracepb.Status_STATUS_CODE_ERROR, pb.Status.Code)
}

func TestToPBValue_UnknownTypeIsStringified(t *testing.T) {
	v := toPBValue(time.Duration(5 * time.Second))
	assert.Equal(t, "5s", v.GetStringValue())
}
