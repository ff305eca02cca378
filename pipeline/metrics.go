package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's Prometheus instruments.
type Metrics struct {
	SpansAccepted    prometheus.Counter
	SpansDuplicate   prometheus.Counter
	SpansDropped     prometheus.Counter
	SpansDiscarded   prometheus.Counter
	FlushesTotal     prometheus.Counter
	FlushFailures    prometheus.Counter
	BatchesSent      prometheus.Counter
	BytesSent        prometheus.Counter
	OversizedBatches prometheus.Counter
	BufferSize       prometheus.Gauge
}

// NewMetrics registers the pipeline metrics with the given registerer. Pass
// a fresh prometheus.NewRegistry() when running several pipelines in one
// process.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		SpansAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "spanflow_spans_accepted_total",
			Help: "Spans accepted into the buffer",
		}),
		SpansDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Name: "spanflow_spans_duplicate_total",
			Help: "Spans skipped because their identity key was already tracked",
		}),
		SpansDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "spanflow_spans_dropped_total",
			Help: "Spans dropped at append because the buffer was full",
		}),
		SpansDiscarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "spanflow_spans_discarded_total",
			Help: "Spans discarded at flush because no collector is configured",
		}),
		FlushesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "spanflow_flushes_total",
			Help: "Flush cycles that drained at least one span",
		}),
		FlushFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "spanflow_flush_failures_total",
			Help: "Flush cycles that ended with a failed batch send",
		}),
		BatchesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "spanflow_batches_sent_total",
			Help: "Batches delivered to the collector",
		}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "spanflow_bytes_sent_total",
			Help: "Serialized span bytes delivered to the collector",
		}),
		OversizedBatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "spanflow_oversized_batches_total",
			Help: "Singleton batches whose one span exceeded the batch byte budget",
		}),
		BufferSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "spanflow_buffer_size",
			Help: "Spans currently buffered",
		}),
	}
}
