// Package pipeline implements the span export pipeline: a bounded
// deduplicating buffer fed by concurrent producers, drained by a
// single-flight flush controller that batches spans under a byte budget and
// delivers them to a collector with at-least-once semantics.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/spanflow/spanflow-go/checkpoint"
	"github.com/spanflow/spanflow-go/config"
	"github.com/spanflow/spanflow-go/core/batch"
	"github.com/spanflow/spanflow-go/core/redact"
	"github.com/spanflow/spanflow-go/core/span"
	"github.com/spanflow/spanflow-go/transport"
)

// Pipeline owns the buffer, the flush controller, and the auto-flush
// scheduler. It is constructed explicitly and passed by reference to
// producers; there is no package-level instance.
type Pipeline struct {
	cfg    *config.Config
	logger *zap.Logger

	buffer  *SpanBuffer
	sender  transport.Transport
	metrics *Metrics

	checkpoints *checkpoint.Store
	scheduler   *cron.Cron

	// flushMu makes Flush single-flight: a second caller waits for the
	// in-progress flush instead of racing the drain.
	flushMu sync.Mutex
	down    *atomic.Bool
}

// Option customizes pipeline construction.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	sender   transport.Transport
	registry prometheus.Registerer
}

// WithLogger sets the pipeline logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTransport overrides the HTTP collector client, mainly for tests.
func WithTransport(t transport.Transport) Option {
	return func(o *options) { o.sender = t }
}

// WithMetricsRegistry sets the Prometheus registerer the pipeline metrics
// are registered with. Defaults to the global registerer.
func WithMetricsRegistry(reg prometheus.Registerer) Option {
	return func(o *options) { o.registry = reg }
}

// New builds and starts a pipeline: restores a checkpoint when one is
// configured and begins auto-flushing on the configured interval.
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	rules, err := cfg.Rules()
	if err != nil {
		return nil, err
	}
	filter := redact.New(rules...)

	p := &Pipeline{
		cfg:     cfg,
		logger:  logger,
		buffer:  newSpanBuffer(cfg.MaxBufferEntries, filter, logger),
		metrics: NewMetrics(o.registry),
		down:    atomic.NewBool(false),
	}

	p.sender = o.sender
	if p.sender == nil && cfg.CollectorURL != "" {
		p.sender = transport.NewHTTP(transport.HTTPOptions{
			BaseURL:  cfg.CollectorURL,
			APIKey:   cfg.APIKey,
			Timeout:  cfg.SendTimeout,
			RetryMax: cfg.SendRetryMax,
		}, logger)
	}
	if p.sender == nil {
		logger.Warn("collector URL not configured; flushed spans will be discarded")
	}

	if cfg.CheckpointPath != "" {
		store, err := checkpoint.Open(cfg.CheckpointPath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
		}
		p.checkpoints = store
		if err := p.restoreCheckpoint(); err != nil {
			logger.Error("failed to restore checkpoint, starting empty", zap.Error(err))
		}
	}

	p.scheduler = cron.New()
	spec := fmt.Sprintf("@every %s", cfg.FlushInterval)
	if _, err := p.scheduler.AddFunc(spec, p.autoFlush); err != nil {
		return nil, fmt.Errorf("failed to schedule auto-flush: %w", err)
	}
	p.scheduler.Start()

	logger.Info("span pipeline started",
		zap.Duration("flush_interval", cfg.FlushInterval),
		zap.Int("max_buffer_entries", cfg.MaxBufferEntries),
		zap.Int("max_batch_bytes", cfg.MaxBatchBytes))

	return p, nil
}

// Append is the ingestion entry point: it redacts and buffers finished span
// records. It performs no I/O and returns quickly regardless of collector
// availability, so tracer callbacks can invoke it inline.
func (p *Pipeline) Append(records ...span.Record) AppendStats {
	stats := p.buffer.Append(records)
	p.metrics.SpansAccepted.Add(float64(stats.Accepted))
	p.metrics.SpansDuplicate.Add(float64(stats.Duplicates))
	p.metrics.SpansDropped.Add(float64(stats.Dropped))
	p.metrics.BufferSize.Set(float64(p.buffer.Len()))
	return stats
}

// Flush drains the buffer and sends every batch in order. On a failed send
// the failed batch and all batches after it are requeued at the front of
// the buffer, earlier batches stay delivered, and the aggregated error is
// returned. A concurrent Flush waits for the in-progress one to finish.
func (p *Pipeline) Flush(ctx context.Context) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()
	return p.flushLocked(ctx)
}

func (p *Pipeline) flushLocked(ctx context.Context) error {
	entries := p.buffer.DrainAll()
	if len(entries) == 0 {
		return nil
	}
	defer p.metrics.BufferSize.Set(float64(p.buffer.Len()))

	if p.sender == nil {
		// No destination: discarding beats retrying forever, but the
		// identity keys must not keep blocking dedup.
		p.buffer.Release(entries)
		p.metrics.SpansDiscarded.Add(float64(len(entries)))
		p.logger.Warn("collector URL not configured, discarding spans",
			zap.Int("spans", len(entries)))
		return nil
	}

	batches := batch.Split(entries, p.cfg.MaxBatchBytes)
	p.metrics.FlushesTotal.Inc()

	var delivered []span.Entry
	var errs error
	for i, b := range batches {
		if b.Oversized {
			p.metrics.OversizedBatches.Inc()
			p.logger.Warn("span exceeds batch byte budget, sending as its own batch",
				zap.String("trace_id", b.Entries[0].TraceID),
				zap.String("span_id", b.Entries[0].SpanID),
				zap.Int("bytes", b.Bytes),
				zap.Int("budget", p.cfg.MaxBatchBytes))
		}

		sendCtx, cancel := context.WithTimeout(ctx, p.cfg.SendTimeout)
		err := p.sender.Send(sendCtx, b)
		cancel()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("batch %d of %d: %w", i+1, len(batches), err))
			requeue := make([]span.Entry, 0, len(entries)-len(delivered))
			for _, rb := range batches[i:] {
				requeue = append(requeue, rb.Entries...)
			}
			p.buffer.Requeue(requeue)
			p.metrics.FlushFailures.Inc()
			p.logger.Error("batch send failed, requeued remaining spans",
				zap.Int("requeued", len(requeue)),
				zap.Error(err))
			break
		}
		delivered = append(delivered, b.Entries...)
		p.metrics.BatchesSent.Inc()
		p.metrics.BytesSent.Add(float64(b.Bytes))
	}

	p.buffer.Release(delivered)
	return errs
}

// autoFlush is the scheduler callback. Failures are logged and swallowed:
// the spans are requeued and the next tick retries, so the host process
// must never be taken down from here.
func (p *Pipeline) autoFlush() {
	if p.down.Load() {
		return
	}
	if err := p.Flush(context.Background()); err != nil {
		p.logger.Error("auto-flush failed, spans kept for retry", zap.Error(err))
	}
}

// Shutdown stops the scheduler and performs one final flush. Unlike
// auto-flush, a failure here is returned to the caller: there is no later
// retry window. When a checkpoint store is configured, spans still
// undelivered after the final flush are spilled to disk instead of lost.
// Shutdown is idempotent; subsequent calls return nil without flushing.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	if !p.down.CompareAndSwap(false, true) {
		return nil
	}

	// Stop ticking before the final flush so no new tick can race it, and
	// wait out any tick already running.
	stopCtx := p.scheduler.Stop()
	<-stopCtx.Done()

	err := p.Flush(ctx)

	if p.checkpoints != nil {
		p.flushMu.Lock()
		remaining := p.buffer.DrainAll()
		if len(remaining) > 0 {
			if saveErr := p.checkpoints.Save(remaining); saveErr != nil {
				err = multierr.Append(err, fmt.Errorf("failed to checkpoint %d spans: %w", len(remaining), saveErr))
			} else {
				p.logger.Info("checkpointed undelivered spans", zap.Int("spans", len(remaining)))
			}
			p.buffer.Release(remaining)
		}
		p.flushMu.Unlock()
		if closeErr := p.checkpoints.Close(); closeErr != nil {
			err = multierr.Append(err, closeErr)
		}
	}

	p.logger.Info("span pipeline stopped")
	return err
}

// restoreCheckpoint pulls spilled entries back into the buffer and clears
// the store.
func (p *Pipeline) restoreCheckpoint() error {
	entries, err := p.checkpoints.Load()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	restored := p.buffer.Restore(entries)
	p.metrics.BufferSize.Set(float64(p.buffer.Len()))
	p.logger.Info("restored spans from checkpoint",
		zap.Int("restored", restored),
		zap.Int("stored", len(entries)))
	return p.checkpoints.Clear()
}

// BufferLen is the number of spans currently buffered. The value is
// approximate under concurrent appends.
func (p *Pipeline) BufferLen() int { return p.buffer.Len() }

// Metrics exposes the pipeline's Prometheus instruments.
func (p *Pipeline) Metrics() *Metrics { return p.metrics }
