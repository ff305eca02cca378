package transport

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/spanflow/spanflow-go/core/batch"
)

const spansPath = "/v1/spans"

// HTTPOptions configures the collector HTTP client.
type HTTPOptions struct {
	// BaseURL is the collector base URL, e.g. "https://collector.example.com".
	BaseURL string
	// APIKey, when non-empty, is sent as "Authorization: ApiKey <key>".
	APIKey string
	// Timeout bounds a whole send including HTTP-level retries.
	Timeout time.Duration
	// RetryMax is the number of transparent HTTP retries per send. The
	// pipeline's requeue handles anything beyond that.
	RetryMax int
}

// HTTP posts batches to the collector's span endpoint as a JSON array.
type HTTP struct {
	client *resty.Client
	logger *zap.Logger
}

// NewHTTP builds the collector client. Connection errors, 5xx responses and
// 429s are retried up to RetryMax times before the send is declared failed.
func NewHTTP(opts HTTPOptions, logger *zap.Logger) *HTTP {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.Logger = nil

	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryMax).
		SetRetryWaitTime(100*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil ||
				r.StatusCode() >= http.StatusInternalServerError ||
				r.StatusCode() == http.StatusTooManyRequests
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "spanflow-go")
	if opts.APIKey != "" {
		client.SetHeader("Authorization", "ApiKey "+opts.APIKey)
	}
	client.SetTransport(retryClient.HTTPClient.Transport)

	return &HTTP{client: client, logger: logger}
}

// Send posts one batch. Non-2xx responses are failures; the response body,
// if any, is carried in the error for diagnostics.
func (h *HTTP) Send(ctx context.Context, b batch.Batch) error {
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(b.Payload()).
		Post(spansPath)
	if err != nil {
		return fmt.Errorf("send batch of %d spans: %w", len(b.Entries), err)
	}
	if resp.IsError() {
		body := strings.TrimSpace(resp.String())
		if body == "" {
			return fmt.Errorf("collector returned %s", resp.Status())
		}
		return fmt.Errorf("collector returned %s: %s", resp.Status(), body)
	}
	h.logger.Debug("batch delivered",
		zap.Int("spans", len(b.Entries)),
		zap.Int("bytes", b.Bytes))
	return nil
}
