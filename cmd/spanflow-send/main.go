// spanflow-send reads finished spans from a JSON file and exports them
// through the pipeline. Useful for replaying captured traces against a
// collector.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/spanflow/spanflow-go/config"
	"github.com/spanflow/spanflow-go/core/span"
	"github.com/spanflow/spanflow-go/logging"
	"github.com/spanflow/spanflow-go/pipeline"
)

// inputSpan is the replay file shape: one JSON array of these objects.
type inputSpan struct {
	TraceID      string                 `json:"traceId"`
	SpanID       string                 `json:"spanId"`
	ParentSpanID string                 `json:"parentSpanId"`
	Name         string                 `json:"name"`
	Kind         int32                  `json:"kind"`
	StartTime    time.Time              `json:"startTime"`
	EndTime      time.Time              `json:"endTime"`
	StatusCode   int32                  `json:"statusCode"`
	StatusMsg    string                 `json:"statusMessage"`
	Attributes   map[string]interface{} `json:"attributes"`
	Resource     map[string]interface{} `json:"resource"`
}

func (in inputSpan) toRecord() span.Record {
	return span.Record{
		TraceID:      in.TraceID,
		SpanID:       in.SpanID,
		ParentSpanID: in.ParentSpanID,
		Name:         in.Name,
		Kind:         span.Kind(in.Kind),
		StartTime:    in.StartTime,
		EndTime:      in.EndTime,
		Ended:        !in.EndTime.IsZero(),
		Status:       span.Status{Code: span.StatusCode(in.StatusCode), Message: in.StatusMsg},
		Attributes:   span.MapFromAny(in.Attributes),
		Resource:     span.MapFromAny(in.Resource),
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		input        = pflag.StringP("input", "i", "", "path to a JSON file holding an array of spans (required)")
		collectorURL = pflag.String("collector-url", "", "collector base URL (overrides SPANFLOW_COLLECTOR_URL)")
		apiKey       = pflag.String("api-key", "", "collector API key (overrides SPANFLOW_API_KEY)")
		timeout      = pflag.Duration("timeout", time.Minute, "overall deadline for the final flush")
	)
	pflag.Parse()

	if *input == "" {
		pflag.Usage()
		return fmt.Errorf("--input is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *collectorURL != "" {
		cfg.CollectorURL = *collectorURL
	}
	if *apiKey != "" {
		cfg.APIKey = *apiKey
	}

	logger, err := logging.New(cfg.LogConfig())
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	data, err := os.ReadFile(*input)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	var inputs []inputSpan
	if err := sonic.Unmarshal(data, &inputs); err != nil {
		return fmt.Errorf("failed to parse input: %w", err)
	}

	p, err := pipeline.New(cfg, pipeline.WithLogger(logger))
	if err != nil {
		return err
	}

	records := make([]span.Record, 0, len(inputs))
	for _, in := range inputs {
		records = append(records, in.toRecord())
	}
	stats := p.Append(records...)
	logger.Info("spans buffered",
		zap.Int("accepted", stats.Accepted),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("dropped", stats.Dropped))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to deliver spans: %w", err)
	}
	logger.Info("all spans delivered")
	return nil
}
