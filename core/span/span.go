package span

import (
	"time"

	"github.com/cespare/xxhash/v2"
)

// Hex lengths of the wire identifiers.
const (
	TraceIDHexLen = 32
	SpanIDHexLen  = 16
)

// StatusCode mirrors the collector's status values.
type StatusCode int32

const (
	StatusUnset StatusCode = 0
	StatusOK    StatusCode = 1
	StatusError StatusCode = 2
)

// Status is the outcome recorded on a finished span.
type Status struct {
	Code    StatusCode
	Message string
}

// Kind mirrors the collector's span kind values.
type Kind int32

const (
	KindUnspecified Kind = 0
	KindInternal    Kind = 1
	KindServer      Kind = 2
	KindClient      Kind = 3
	KindProducer    Kind = 4
	KindConsumer    Kind = 5
)

// Event is a timestamped annotation within a span.
type Event struct {
	Name       string
	Timestamp  time.Time
	Attributes Map
}

// Link references a span in another (or the same) trace.
type Link struct {
	TraceID    string
	SpanID     string
	Attributes Map
}

// Scope identifies the instrumentation library that produced a span.
type Scope struct {
	Name    string
	Version string
}

// Record is an immutable finished span as handed over by the tracer. The
// pipeline never mutates a Record after ingestion; redaction produces a
// fresh copy.
type Record struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	Name         string
	Kind         Kind
	StartTime    time.Time
	EndTime      time.Time
	Status       Status
	TraceFlags   uint32
	Ended        bool
	Attributes   Map
	Events       []Event
	Links        []Link
	Resource     Map
	Scope        Scope
}

// Duration is the span's elapsed time; zero when the span never ended.
func (r Record) Duration() time.Duration {
	if r.EndTime.IsZero() || r.StartTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// IdentityKey hashes the (traceId, spanId) pair into the buffer's dedup key.
func IdentityKey(traceID, spanID string) uint64 {
	h := xxhash.New()
	h.WriteString(traceID)
	h.WriteString("/")
	h.WriteString(spanID)
	return h.Sum64()
}

// Entry is a redacted, wire-encoded span held in the buffer until the
// collector confirms delivery.
type Entry struct {
	TraceID string
	SpanID  string
	Key     uint64
	Encoded []byte
}

// Size is the entry's serialized byte length, as charged against the batch
// budget.
func (e Entry) Size() int { return len(e.Encoded) }
