// Package batch partitions buffered spans into payloads that respect the
// transport's size budget while preserving arrival order.
package batch

import (
	"bytes"

	"github.com/spanflow/spanflow-go/core/span"
)

// Batch is an ordered, non-empty group of entries sent in one request.
// Oversized marks a singleton whose lone entry exceeds the budget on its
// own; such batches are still sent.
type Batch struct {
	Entries   []span.Entry
	Bytes     int
	Oversized bool
}

// Split greedily partitions entries into batches of at most maxBytes each.
// The concatenation of all batches equals the input sequence: order is kept
// both within and across batches. An entry larger than maxBytes becomes its
// own flagged batch.
func Split(entries []span.Entry, maxBytes int) []Batch {
	var out []Batch
	var cur Batch
	for _, e := range entries {
		size := e.Size()
		if size > maxBytes {
			if len(cur.Entries) > 0 {
				out = append(out, cur)
				cur = Batch{}
			}
			out = append(out, Batch{Entries: []span.Entry{e}, Bytes: size, Oversized: true})
			continue
		}
		if len(cur.Entries) > 0 && cur.Bytes+size > maxBytes {
			out = append(out, cur)
			cur = Batch{}
		}
		cur.Entries = append(cur.Entries, e)
		cur.Bytes += size
	}
	if len(cur.Entries) > 0 {
		out = append(out, cur)
	}
	return out
}

// Payload renders the batch as the JSON array the collector expects. The
// entries are already encoded objects, so this is pure concatenation.
func (b Batch) Payload() []byte {
	var buf bytes.Buffer
	buf.Grow(b.Bytes + len(b.Entries) + 2)
	buf.WriteByte('[')
	for i, e := range b.Entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(e.Encoded)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}
