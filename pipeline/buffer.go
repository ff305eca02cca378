package pipeline

import (
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/spanflow/spanflow-go/core/redact"
	"github.com/spanflow/spanflow-go/core/span"
)

// AppendStats reports the outcome of one Append call.
type AppendStats struct {
	Accepted   int
	Duplicates int
	Dropped    int
}

// SpanBuffer is the bounded, deduplicating store of encoded spans shared by
// all producers. Insertion order is preserved so batching reflects arrival
// order. Identity keys stay tracked while an entry is buffered or in flight;
// they are released only on confirmed delivery.
type SpanBuffer struct {
	mu      sync.Mutex
	entries []span.Entry
	keys    map[uint64]struct{}
	max     int

	// size mirrors len(entries) for lock-free inspection.
	size *atomic.Int64

	filter *redact.Filter
	logger *zap.Logger
}

func newSpanBuffer(max int, filter *redact.Filter, logger *zap.Logger) *SpanBuffer {
	return &SpanBuffer{
		keys:   make(map[uint64]struct{}),
		max:    max,
		size:   atomic.NewInt64(0),
		filter: filter,
		logger: logger,
	}
}

// Append redacts and buffers each record. A record whose (traceId, spanId)
// is already tracked counts as a duplicate; one arriving at capacity counts
// as dropped. The decision for each record is atomic with respect to other
// appends and a concurrent drain.
func (b *SpanBuffer) Append(records []span.Record) AppendStats {
	var stats AppendStats

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, rec := range records {
		key := span.IdentityKey(rec.TraceID, rec.SpanID)
		if _, tracked := b.keys[key]; tracked {
			stats.Duplicates++
			b.logger.Debug("duplicate span skipped",
				zap.String("trace_id", rec.TraceID),
				zap.String("span_id", rec.SpanID))
			continue
		}
		if len(b.entries) >= b.max {
			stats.Dropped++
			b.logger.Warn("span buffer full, dropping span",
				zap.String("trace_id", rec.TraceID),
				zap.String("span_id", rec.SpanID))
			continue
		}

		encoded, err := span.Encode(b.redact(rec))
		if err != nil {
			stats.Dropped++
			b.logger.Error("failed to encode span, dropping",
				zap.String("trace_id", rec.TraceID),
				zap.String("span_id", rec.SpanID),
				zap.Error(err))
			continue
		}

		b.entries = append(b.entries, span.Entry{
			TraceID: rec.TraceID,
			SpanID:  rec.SpanID,
			Key:     key,
			Encoded: encoded,
		})
		b.keys[key] = struct{}{}
		stats.Accepted++
	}

	b.size.Store(int64(len(b.entries)))
	return stats
}

// redact returns a copy of the record with every attribute mapping passed
// through the filter. The record itself is never mutated.
func (b *SpanBuffer) redact(rec span.Record) span.Record {
	out := rec
	out.Attributes = b.filter.ApplyMap(rec.Attributes)
	out.Resource = b.filter.ApplyMap(rec.Resource)
	if len(rec.Events) > 0 {
		out.Events = make([]span.Event, len(rec.Events))
		for i, ev := range rec.Events {
			ev.Attributes = b.filter.ApplyMap(ev.Attributes)
			out.Events[i] = ev
		}
	}
	if len(rec.Links) > 0 {
		out.Links = make([]span.Link, len(rec.Links))
		for i, ln := range rec.Links {
			ln.Attributes = b.filter.ApplyMap(ln.Attributes)
			out.Links[i] = ln
		}
	}
	return out
}

// DrainAll atomically removes and returns the buffer contents. Identity keys
// remain tracked so a re-submitted span is still seen as a duplicate while
// its first copy is in flight.
func (b *SpanBuffer) DrainAll() []span.Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	drained := b.entries
	b.entries = nil
	b.size.Store(0)
	return drained
}

// Release forgets the identity keys of delivered entries.
func (b *SpanBuffer) Release(entries []span.Entry) {
	if len(entries) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, e := range entries {
		delete(b.keys, e.Key)
	}
}

// Requeue re-inserts entries at the front of the buffer in their original
// relative order. The entries are already tracked, so neither capacity nor
// dedup is re-checked.
func (b *SpanBuffer) Requeue(entries []span.Entry) {
	if len(entries) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	combined := make([]span.Entry, 0, len(entries)+len(b.entries))
	combined = append(combined, entries...)
	combined = append(combined, b.entries...)
	b.entries = combined
	b.size.Store(int64(len(b.entries)))
}

// Restore re-inserts previously checkpointed entries at the front of the
// buffer and tracks their identity keys again. Entries beyond capacity or
// whose key is already tracked are dropped.
func (b *SpanBuffer) Restore(entries []span.Entry) int {
	if len(entries) == 0 {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	restored := make([]span.Entry, 0, len(entries))
	for _, e := range entries {
		if _, tracked := b.keys[e.Key]; tracked {
			continue
		}
		if len(b.entries)+len(restored) >= b.max {
			break
		}
		b.keys[e.Key] = struct{}{}
		restored = append(restored, e)
	}
	b.entries = append(restored, b.entries...)
	b.size.Store(int64(len(b.entries)))
	return len(restored)
}

// Len is the current number of buffered entries. It reads an atomic mirror,
// so it may trail a concurrent mutation.
func (b *SpanBuffer) Len() int {
	return int(b.size.Load())
}

// trackedKeys reports how many identity keys are tracked, including keys of
// in-flight entries.
func (b *SpanBuffer) trackedKeys() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.keys)
}
