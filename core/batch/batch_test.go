package batch

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanflow/spanflow-go/core/span"
)

// makeEntry builds an entry with an encoded payload of exactly size bytes.
func makeEntry(i, size int) span.Entry {
	traceID := fmt.Sprintf("%032x", i+1)
	spanID := fmt.Sprintf("%016x", i+1)
	return span.Entry{
		TraceID: traceID,
		SpanID:  spanID,
		Key:     span.IdentityKey(traceID, spanID),
		Encoded: []byte(strings.Repeat("x", size)),
	}
}

func TestSplitEmpty(t *testing.T) {
	assert.Empty(t, Split(nil, 100))
}

func TestSplitEqualSizes(t *testing.T) {
	// Five equal spans, two per batch: [2,2,1] in original order.
	entries := make([]span.Entry, 5)
	for i := range entries {
		entries[i] = makeEntry(i, 40)
	}

	batches := Split(entries, 100)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0].Entries, 2)
	assert.Len(t, batches[1].Entries, 2)
	assert.Len(t, batches[2].Entries, 1)

	for _, b := range batches {
		assert.False(t, b.Oversized)
		assert.LessOrEqual(t, b.Bytes, 100)
	}
}

func TestSplitOversizedEntry(t *testing.T) {
	entries := []span.Entry{
		makeEntry(0, 30),
		makeEntry(1, 250), // alone exceeds the budget
		makeEntry(2, 30),
	}

	batches := Split(entries, 100)
	require.Len(t, batches, 3)

	assert.False(t, batches[0].Oversized)
	assert.Len(t, batches[0].Entries, 1)

	assert.True(t, batches[1].Oversized, "oversized entry becomes its own flagged batch")
	assert.Len(t, batches[1].Entries, 1)
	assert.Equal(t, 250, batches[1].Bytes)

	assert.False(t, batches[2].Oversized)
}

func TestSplitPreservesOrder(t *testing.T) {
	entries := make([]span.Entry, 20)
	for i := range entries {
		size := 10 + (i*7)%60
		entries[i] = makeEntry(i, size)
	}

	batches := Split(entries, 64)

	var flattened []span.Entry
	for _, b := range batches {
		require.NotEmpty(t, b.Entries, "batches are never empty")
		flattened = append(flattened, b.Entries...)
	}
	assert.Equal(t, entries, flattened, "concatenated batches must equal the input")
}

func TestSplitSizeBound(t *testing.T) {
	entries := make([]span.Entry, 50)
	for i := range entries {
		entries[i] = makeEntry(i, 1+(i*13)%120)
	}

	for _, b := range Split(entries, 100) {
		if b.Oversized {
			require.Len(t, b.Entries, 1)
			assert.Greater(t, b.Bytes, 100)
			continue
		}
		assert.LessOrEqual(t, b.Bytes, 100)
	}
}

func TestPayloadIsJSONArray(t *testing.T) {
	a := span.Entry{Encoded: []byte(`{"name":"a"}`)}
	b := span.Entry{Encoded: []byte(`{"name":"b"}`)}

	payload := Batch{Entries: []span.Entry{a, b}, Bytes: 24}.Payload()
	assert.Equal(t, `[{"name":"a"},{"name":"b"}]`, string(payload))

	payload = Batch{Entries: []span.Entry{a}, Bytes: 12}.Payload()
	assert.Equal(t, `[{"name":"a"}]`, string(payload))
}
