package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the ingestion module.
type Metrics struct {
	// Records processed by outcome: merged, created, pending_review, failed
	Records *prometheus.CounterVec

	// Batches closed by final status
	Batches *prometheus.CounterVec

	// Per-record pipeline latency
	RecordLatency prometheus.Histogram

	// Registry write retries
	WriteRetries prometheus.Counter

	// Pending review queue depth
	ReviewQueueDepth prometheus.Gauge
}

// New creates a new Metrics instance with all ingestion module metrics registered.
func New() *Metrics {
	return &Metrics{
		Records: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "registro_ingest_records_total",
			Help: "Total ingested records by outcome",
		}, []string{"outcome"}),

		Batches: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "registro_ingest_batches_total",
			Help: "Total closed batches by final status",
		}, []string{"status"}),

		RecordLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "registro_ingest_record_duration_seconds",
			Help:    "Duration of the full per-record pipeline",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		WriteRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "registro_ingest_write_retries_total",
			Help: "Registry write attempts beyond the first",
		}),

		ReviewQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "registro_ingest_review_queue_depth",
			Help: "Records currently pending human review",
		}),
	}
}

// IncrementRecord records one processed record outcome.
func (m *Metrics) IncrementRecord(outcome string) {
	if m != nil {
		m.Records.WithLabelValues(outcome).Inc()
	}
}

// IncrementBatch records a closed batch.
func (m *Metrics) IncrementBatch(status string) {
	if m != nil {
		m.Batches.WithLabelValues(status).Inc()
	}
}

// ObserveRecordLatency records a per-record pipeline duration.
func (m *Metrics) ObserveRecordLatency(d time.Duration) {
	if m != nil {
		m.RecordLatency.Observe(d.Seconds())
	}
}

// IncrementWriteRetry records a retried registry write.
func (m *Metrics) IncrementWriteRetry() {
	if m != nil {
		m.WriteRetries.Inc()
	}
}

// SetReviewQueueDepth records the current pending review count.
func (m *Metrics) SetReviewQueueDepth(depth int) {
	if m != nil {
		m.ReviewQueueDepth.Set(float64(depth))
	}
}
