package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the resolution pipeline.
type Metrics struct {
	// Per-source lookup latencies, including retries
	LookupLatency *prometheus.HistogramVec

	// Per-source lookup results: found, not_found, error, skipped
	LookupResults *prometheus.CounterVec

	// Retry waits by source
	Retries *prometheus.CounterVec

	// Terminal outcomes by status
	Outcomes *prometheus.CounterVec

	// Whole-person resolution latency
	ResolveLatency prometheus.Histogram

	// Persons past the admission semaphore
	InFlight prometheus.Gauge

	SinkFailures prometheus.Counter

	CacheHits prometheus.Counter

	// Circuit rotation requests by result
	Rotations *prometheus.CounterVec
}

// New registers the pipeline metrics on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LookupLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "innsearch_lookup_duration_seconds",
			Help:    "Duration of source lookups including retries",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"source"}), // source: "nalog", "ogu"

		LookupResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "innsearch_lookup_results_total",
			Help: "Source lookup results by source and result",
		}, []string{"source", "result"}),

		Retries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "innsearch_lookup_retries_total",
			Help: "Retried source lookup attempts by source",
		}, []string{"source"}),

		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "innsearch_resolution_outcomes_total",
			Help: "Terminal resolution outcomes by status",
		}, []string{"status"}),

		ResolveLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "innsearch_resolution_duration_seconds",
			Help:    "Duration of one person's resolution across all sources",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),

		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "innsearch_resolution_in_flight",
			Help: "Resolutions currently holding an admission slot",
		}),

		SinkFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "innsearch_sink_write_failures_total",
			Help: "Result sink commits that failed",
		}),

		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "innsearch_cache_hits_total",
			Help: "Resolutions answered from the identifier cache",
		}),

		Rotations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "innsearch_circuit_rotations_total",
			Help: "Circuit rotation requests by result",
		}, []string{"result"}),
	}
}

// ObserveLookupLatency records the duration of one source lookup.
func (m *Metrics) ObserveLookupLatency(source string, d time.Duration) {
	if m != nil {
		m.LookupLatency.WithLabelValues(source).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementLookupResult(source, result string) {
	if m != nil {
		m.LookupResults.WithLabelValues(source, result).Inc()
	}
}

func (m *Metrics) IncrementRetry(source string) {
	if m != nil {
		m.Retries.WithLabelValues(source).Inc()
	}
}

// IncrementOutcome records a terminal outcome.
func (m *Metrics) IncrementOutcome(status string) {
	if m != nil {
		m.Outcomes.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) ObserveResolveLatency(d time.Duration) {
	if m != nil {
		m.ResolveLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncInFlight() {
	if m != nil {
		m.InFlight.Inc()
	}
}

func (m *Metrics) DecInFlight() {
	if m != nil {
		m.InFlight.Dec()
	}
}

func (m *Metrics) IncrementSinkFailure() {
	if m != nil {
		m.SinkFailures.Inc()
	}
}

func (m *Metrics) IncrementCacheHit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

// RecordRotation counts a circuit rotation request.
func (m *Metrics) RecordRotation(success bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !success {
		result = "failed"
	}
	m.Rotations.WithLabelValues(result).Inc()
}
