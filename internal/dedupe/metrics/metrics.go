package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the dedupe module.
type Metrics struct {
	// Duplicate checks by algorithm
	Checks *prometheus.CounterVec

	// Decision outcomes by band
	Decisions *prometheus.CounterVec

	// Candidate pool size after blocking
	CandidatePool prometheus.Histogram

	// Lookups cut short by the candidate cap
	TruncatedLookups prometheus.Counter

	// Full check latency
	CheckLatency prometheus.Histogram
}

// New creates a new Metrics instance with all dedupe module metrics registered.
func New() *Metrics {
	return &Metrics{
		Checks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "registro_dedupe_checks_total",
			Help: "Total duplicate checks by algorithm",
		}, []string{"algorithm"}),

		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "registro_dedupe_decisions_total",
			Help: "Total match decisions by band",
		}, []string{"decision"}),

		CandidatePool: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "registro_dedupe_candidate_pool_size",
			Help:    "Candidates retrieved by blocking per check",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 500},
		}),

		TruncatedLookups: promauto.NewCounter(prometheus.CounterOpts{
			Name: "registro_dedupe_truncated_lookups_total",
			Help: "Candidate lookups cut short by the candidate cap",
		}),

		CheckLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "registro_dedupe_check_duration_seconds",
			Help:    "Duration of a full duplicate check",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementCheck records a duplicate check for an algorithm.
func (m *Metrics) IncrementCheck(algorithm string) {
	if m != nil {
		m.Checks.WithLabelValues(algorithm).Inc()
	}
}

// IncrementDecision records a decision outcome.
func (m *Metrics) IncrementDecision(decision string) {
	if m != nil {
		m.Decisions.WithLabelValues(decision).Inc()
	}
}

// ObserveCandidatePool records how many candidates blocking produced.
func (m *Metrics) ObserveCandidatePool(size int, truncated bool) {
	if m != nil {
		m.CandidatePool.Observe(float64(size))
		if truncated {
			m.TruncatedLookups.Inc()
		}
	}
}

// ObserveCheckLatency records the total check duration.
func (m *Metrics) ObserveCheckLatency(d time.Duration) {
	if m != nil {
		m.CheckLatency.Observe(d.Seconds())
	}
}
