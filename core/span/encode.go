package span

import (
	"time"

	"github.com/bytedance/sonic"
)

// Wire shape expected by the collector's span endpoint. Timestamps are split
// into coarse and fine components; identifiers stay hex strings.

type wireTimestamp struct {
	Seconds int64 `json:"seconds"`
	Nanos   int32 `json:"nanos"`
}

type wireStatus struct {
	Code    int32  `json:"code"`
	Message string `json:"message,omitempty"`
}

type wireScope struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type wireEvent struct {
	Name       string        `json:"name"`
	Timestamp  wireTimestamp `json:"timestamp"`
	Attributes Map           `json:"attributes,omitempty"`
}

type wireLink struct {
	TraceID    string `json:"traceId"`
	SpanID     string `json:"spanId"`
	Attributes Map    `json:"attributes,omitempty"`
}

type wireSpan struct {
	TraceID       string        `json:"traceId"`
	SpanID        string        `json:"spanId"`
	ParentSpanID  string        `json:"parentSpanId,omitempty"`
	Name          string        `json:"name"`
	Kind          int32         `json:"kind"`
	StartTime     wireTimestamp `json:"startTime"`
	EndTime       wireTimestamp `json:"endTime"`
	DurationNanos int64         `json:"durationNanos"`
	Status        wireStatus    `json:"status"`
	Attributes    Map           `json:"attributes,omitempty"`
	Events        []wireEvent   `json:"events,omitempty"`
	Links         []wireLink    `json:"links,omitempty"`
	Resource      Map           `json:"resource,omitempty"`
	TraceFlags    uint32        `json:"traceFlags"`
	Ended         bool          `json:"ended"`
	Scope         wireScope     `json:"instrumentationLibrary"`
}

func toWireTimestamp(t time.Time) wireTimestamp {
	if t.IsZero() {
		return wireTimestamp{}
	}
	return wireTimestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

func toWire(r Record) wireSpan {
	w := wireSpan{
		TraceID:       r.TraceID,
		SpanID:        r.SpanID,
		ParentSpanID:  r.ParentSpanID,
		Name:          r.Name,
		Kind:          int32(r.Kind),
		StartTime:     toWireTimestamp(r.StartTime),
		EndTime:       toWireTimestamp(r.EndTime),
		DurationNanos: r.Duration().Nanoseconds(),
		Status:        wireStatus{Code: int32(r.Status.Code), Message: r.Status.Message},
		Attributes:    r.Attributes,
		Resource:      r.Resource,
		TraceFlags:    r.TraceFlags,
		Ended:         r.Ended,
		Scope:         wireScope{Name: r.Scope.Name, Version: r.Scope.Version},
	}
	for _, ev := range r.Events {
		w.Events = append(w.Events, wireEvent{
			Name:       ev.Name,
			Timestamp:  toWireTimestamp(ev.Timestamp),
			Attributes: ev.Attributes,
		})
	}
	for _, ln := range r.Links {
		w.Links = append(w.Links, wireLink{
			TraceID:    ln.TraceID,
			SpanID:     ln.SpanID,
			Attributes: ln.Attributes,
		})
	}
	return w
}

// Encode serializes a record into the collector's JSON span shape.
func Encode(r Record) ([]byte, error) {
	return sonic.Marshal(toWire(r))
}
