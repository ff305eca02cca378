package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spanflow/spanflow-go/core/batch"
	"github.com/spanflow/spanflow-go/core/span"
)

func testBatch(t *testing.T, n int) batch.Batch {
	t.Helper()
	entries := make([]span.Entry, n)
	for i := range entries {
		rec := span.Record{
			TraceID: "0123456789abcdef0123456789abcdef",
			SpanID:  "0123456789abcdef",
			Name:    "op",
		}
		encoded, err := span.Encode(rec)
		require.NoError(t, err)
		entries[i] = span.Entry{
			TraceID: rec.TraceID,
			SpanID:  rec.SpanID,
			Key:     span.IdentityKey(rec.TraceID, rec.SpanID),
			Encoded: encoded,
		}
	}
	b := batch.Split(entries, 1<<20)
	require.Len(t, b, 1)
	return b[0]
}

func TestSendPostsSpansWithAuth(t *testing.T) {
	var gotPath, gotAuth, gotContentType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	h := NewHTTP(HTTPOptions{
		BaseURL: srv.URL,
		APIKey:  "test-key-123",
		Timeout: 5 * time.Second,
	}, zap.NewNop())

	require.NoError(t, h.Send(context.Background(), testBatch(t, 2)))

	assert.Equal(t, "/v1/spans", gotPath)
	assert.Equal(t, "ApiKey test-key-123", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, byte('['), gotBody[0], "payload is a JSON array")
	assert.Equal(t, byte(']'), gotBody[len(gotBody)-1])
	assert.Contains(t, string(gotBody), `"traceId":"0123456789abcdef0123456789abcdef"`)
}

func TestSendOmitsAuthWithoutKey(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := NewHTTP(HTTPOptions{BaseURL: srv.URL, Timeout: 5 * time.Second}, zap.NewNop())
	require.NoError(t, h.Send(context.Background(), testBatch(t, 1)))
	assert.Empty(t, gotAuth)
}

func TestSendErrorCarriesResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid api key"}`))
	}))
	defer srv.Close()

	h := NewHTTP(HTTPOptions{BaseURL: srv.URL, Timeout: 5 * time.Second}, zap.NewNop())
	err := h.Send(context.Background(), testBatch(t, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestSendRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := NewHTTP(HTTPOptions{
		BaseURL:  srv.URL,
		Timeout:  10 * time.Second,
		RetryMax: 2,
	}, zap.NewNop())

	require.NoError(t, h.Send(context.Background(), testBatch(t, 1)))
	assert.Equal(t, int32(2), calls.Load())
}

func TestSendTrimsTrailingSlash(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := NewHTTP(HTTPOptions{BaseURL: srv.URL + "/", Timeout: 5 * time.Second}, zap.NewNop())
	require.NoError(t, h.Send(context.Background(), testBatch(t, 1)))
	assert.Equal(t, "/v1/spans", gotPath)
}

func TestFuncAdapter(t *testing.T) {
	var sent int
	var tr Transport = Func(func(ctx context.Context, b batch.Batch) error {
		sent = len(b.Entries)
		return nil
	})
	require.NoError(t, tr.Send(context.Background(), testBatch(t, 3)))
	assert.Equal(t, 3, sent)
}
