// Package otelbridge converts OpenTelemetry pdata traces into pipeline span
// records, so an OTel SDK or collector pipeline can hand finished spans to
// the exporter without knowing its model.
package otelbridge

import (
	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/ptrace"

	"github.com/spanflow/spanflow-go/core/span"
	"github.com/spanflow/spanflow-go/pipeline"
)

// Convert flattens a pdata trace payload into span records in document
// order: resource by resource, scope by scope, span by span.
func Convert(td ptrace.Traces) []span.Record {
	records := make([]span.Record, 0, td.SpanCount())
	rss := td.ResourceSpans()
	for i := 0; i < rss.Len(); i++ {
		rs := rss.At(i)
		resource := convertMap(rs.Resource().Attributes())
		sss := rs.ScopeSpans()
		for j := 0; j < sss.Len(); j++ {
			ss := sss.At(j)
			scope := span.Scope{Name: ss.Scope().Name(), Version: ss.Scope().Version()}
			spans := ss.Spans()
			for k := 0; k < spans.Len(); k++ {
				records = append(records, convertSpan(spans.At(k), resource, scope))
			}
		}
	}
	return records
}

// Feed converts and appends a pdata payload into the pipeline. It matches
// the shape of a trace consumer callback and never blocks on network I/O.
func Feed(p *pipeline.Pipeline, td ptrace.Traces) pipeline.AppendStats {
	return p.Append(Convert(td)...)
}

func convertSpan(s ptrace.Span, resource span.Map, scope span.Scope) span.Record {
	rec := span.Record{
		TraceID:    s.TraceID().String(),
		SpanID:     s.SpanID().String(),
		Name:       s.Name(),
		Kind:       span.Kind(s.Kind()),
		StartTime:  s.StartTimestamp().AsTime(),
		EndTime:    s.EndTimestamp().AsTime(),
		TraceFlags: uint32(s.Flags()),
		Ended:      s.EndTimestamp() != 0,
		Status: span.Status{
			Code:    span.StatusCode(s.Status().Code()),
			Message: s.Status().Message(),
		},
		Attributes: convertMap(s.Attributes()),
		Resource:   resource,
		Scope:      scope,
	}
	if !s.ParentSpanID().IsEmpty() {
		rec.ParentSpanID = s.ParentSpanID().String()
	}

	events := s.Events()
	for i := 0; i < events.Len(); i++ {
		ev := events.At(i)
		rec.Events = append(rec.Events, span.Event{
			Name:       ev.Name(),
			Timestamp:  ev.Timestamp().AsTime(),
			Attributes: convertMap(ev.Attributes()),
		})
	}

	links := s.Links()
	for i := 0; i < links.Len(); i++ {
		ln := links.At(i)
		rec.Links = append(rec.Links, span.Link{
			TraceID:    ln.TraceID().String(),
			SpanID:     ln.SpanID().String(),
			Attributes: convertMap(ln.Attributes()),
		})
	}
	return rec
}

func convertMap(m pcommon.Map) span.Map {
	if m.Len() == 0 {
		return nil
	}
	out := make(span.Map, 0, m.Len())
	m.Range(func(k string, v pcommon.Value) bool {
		out = append(out, span.KeyValue{Key: k, Value: convertValue(v)})
		return true
	})
	return out
}

func convertValue(v pcommon.Value) span.Value {
	switch v.Type() {
	case pcommon.ValueTypeStr:
		return span.StringValue(v.Str())
	case pcommon.ValueTypeInt:
		return span.IntValue(v.Int())
	case pcommon.ValueTypeDouble:
		return span.DoubleValue(v.Double())
	case pcommon.ValueTypeBool:
		return span.BoolValue(v.Bool())
	case pcommon.ValueTypeMap:
		return span.MapValue(convertMap(v.Map()))
	case pcommon.ValueTypeSlice:
		s := v.Slice()
		vs := make([]span.Value, 0, s.Len())
		for i := 0; i < s.Len(); i++ {
			vs = append(vs, convertValue(s.At(i)))
		}
		return span.SliceValue(vs...)
	case pcommon.ValueTypeBytes:
		return span.StringValue(v.AsString())
	default:
		return span.EmptyValue()
	}
}
