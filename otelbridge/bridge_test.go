package otelbridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/ptrace"

	"github.com/spanflow/spanflow-go/core/span"
)

var (
	testTraceID = pcommon.TraceID([16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16})
	testSpanID  = pcommon.SpanID([8]byte{1, 2, 3, 4, 5, 6, 7, 8})
	testParent  = pcommon.SpanID([8]byte{9, 10, 11, 12, 13, 14, 15, 16})
)

func makeTraces() ptrace.Traces {
	td := ptrace.NewTraces()
	rs := td.ResourceSpans().AppendEmpty()
	rs.Resource().Attributes().PutStr("service.name", "checkout")

	ss := rs.ScopeSpans().AppendEmpty()
	ss.Scope().SetName("spanflow-test")
	ss.Scope().SetVersion("1.0.0")

	s := ss.Spans().AppendEmpty()
	s.SetTraceID(testTraceID)
	s.SetSpanID(testSpanID)
	s.SetParentSpanID(testParent)
	s.SetName("HTTP GET /cart")
	s.SetKind(ptrace.SpanKindClient)
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.SetStartTimestamp(pcommon.NewTimestampFromTime(start))
	s.SetEndTimestamp(pcommon.NewTimestampFromTime(start.Add(150 * time.Millisecond)))
	s.Status().SetCode(ptrace.StatusCodeError)
	s.Status().SetMessage("upstream timeout")
	s.Attributes().PutStr("http.method", "GET")
	s.Attributes().PutInt("http.status_code", 504)
	s.Attributes().PutBool("retryable", true)

	ev := s.Events().AppendEmpty()
	ev.SetName("exception")
	ev.SetTimestamp(pcommon.NewTimestampFromTime(start.Add(100 * time.Millisecond)))
	ev.Attributes().PutStr("exception.type", "TimeoutError")

	ln := s.Links().AppendEmpty()
	ln.SetTraceID(testTraceID)
	ln.SetSpanID(testParent)

	return td
}

func TestConvertSpanFields(t *testing.T) {
	records := Convert(makeTraces())
	require.Len(t, records, 1)
	rec := records[0]

	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", rec.TraceID)
	assert.Len(t, rec.TraceID, 32)
	assert.Equal(t, "0102030405060708", rec.SpanID)
	assert.Len(t, rec.SpanID, 16)
	assert.Equal(t, "090a0b0c0d0e0f10", rec.ParentSpanID)

	assert.Equal(t, "HTTP GET /cart", rec.Name)
	assert.Equal(t, span.Kind(ptrace.SpanKindClient), rec.Kind)
	assert.True(t, rec.Ended)
	assert.Equal(t, 150*time.Millisecond, rec.Duration())
	assert.Equal(t, span.StatusError, rec.Status.Code)
	assert.Equal(t, "upstream timeout", rec.Status.Message)
}

func TestConvertAttributes(t *testing.T) {
	records := Convert(makeTraces())
	require.Len(t, records, 1)
	rec := records[0]

	v, ok := rec.Attributes.Get("http.method")
	require.True(t, ok)
	assert.Equal(t, span.StringValue("GET"), v)

	v, ok = rec.Attributes.Get("http.status_code")
	require.True(t, ok)
	assert.Equal(t, span.IntValue(504), v)

	v, ok = rec.Attributes.Get("retryable")
	require.True(t, ok)
	assert.Equal(t, span.BoolValue(true), v)

	v, ok = rec.Resource.Get("service.name")
	require.True(t, ok)
	assert.Equal(t, span.StringValue("checkout"), v)

	assert.Equal(t, "spanflow-test", rec.Scope.Name)
	assert.Equal(t, "1.0.0", rec.Scope.Version)
}

func TestConvertEventsAndLinks(t *testing.T) {
	records := Convert(makeTraces())
	require.Len(t, records, 1)
	rec := records[0]

	require.Len(t, rec.Events, 1)
	assert.Equal(t, "exception", rec.Events[0].Name)
	v, ok := rec.Events[0].Attributes.Get("exception.type")
	require.True(t, ok)
	assert.Equal(t, span.StringValue("TimeoutError"), v)

	require.Len(t, rec.Links, 1)
	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", rec.Links[0].TraceID)
	assert.Equal(t, "090a0b0c0d0e0f10", rec.Links[0].SpanID)
}

func TestConvertEmptyParentOmitted(t *testing.T) {
	td := ptrace.NewTraces()
	s := td.ResourceSpans().AppendEmpty().ScopeSpans().AppendEmpty().Spans().AppendEmpty()
	s.SetTraceID(testTraceID)
	s.SetSpanID(testSpanID)
	s.SetName("root")

	records := Convert(td)
	require.Len(t, records, 1)
	assert.Empty(t, records[0].ParentSpanID)
	assert.False(t, records[0].Ended, "no end timestamp means not ended")
}

func TestConvertNestedValues(t *testing.T) {
	td := ptrace.NewTraces()
	s := td.ResourceSpans().AppendEmpty().ScopeSpans().AppendEmpty().Spans().AppendEmpty()
	s.SetTraceID(testTraceID)
	s.SetSpanID(testSpanID)

	nested := s.Attributes().PutEmptyMap("http.request")
	nested.PutStr("path", "/cart")
	nested.PutDouble("duration_ms", 12.5)
	list := s.Attributes().PutEmptySlice("tags")
	list.AppendEmpty().SetStr("a")
	list.AppendEmpty().SetStr("b")

	records := Convert(td)
	require.Len(t, records, 1)

	v, ok := records[0].Attributes.Get("http.request")
	require.True(t, ok)
	assert.Equal(t, span.MapValue(span.Map{
		{Key: "path", Value: span.StringValue("/cart")},
		{Key: "duration_ms", Value: span.DoubleValue(12.5)},
	}), v)

	v, ok = records[0].Attributes.Get("tags")
	require.True(t, ok)
	assert.Equal(t, span.SliceValue(span.StringValue("a"), span.StringValue("b")), v)
}

func TestConvertMultipleResources(t *testing.T) {
	td := ptrace.NewTraces()
	for i := 0; i < 2; i++ {
		ss := td.ResourceSpans().AppendEmpty().ScopeSpans().AppendEmpty()
		for j := 0; j < 3; j++ {
			s := ss.Spans().AppendEmpty()
			s.SetTraceID(testTraceID)
			s.SetSpanID(pcommon.SpanID([8]byte{byte(i), byte(j), 3, 4, 5, 6, 7, 8}))
		}
	}
	assert.Len(t, Convert(td), 6)
}
