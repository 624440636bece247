package stresstest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the run counters to Prometheus. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	duration      prometheus.Histogram
	activeWorkers prometheus.Gauge
	throughput    prometheus.Gauge
}

// NewMetrics creates the collectors on a dedicated registry so several
// executors can live in one process
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loadgen_requests_total",
				Help: "Total number of requests issued, by outcome.",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "loadgen_request_duration_seconds",
				Help:    "Duration of requests in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
			},
		),
		activeWorkers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "loadgen_workers_active",
				Help: "Number of worker goroutines currently running.",
			},
		),
		throughput: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "loadgen_interval_throughput",
				Help: "Requests completed during the last reporting interval.",
			},
		),
	}

	m.registry.MustRegister(m.requests, m.duration, m.activeWorkers, m.throughput)

	// Pre-create label values so all outcomes are exported from the start
	for _, o := range []Outcome{Success, NonOK, TransportFailure} {
		m.requests.WithLabelValues(o.String())
	}

	return m
}

// Registry returns the registry holding the collectors
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Observe records one finished request
func (m *Metrics) Observe(outcome Outcome, latency time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome.String()).Inc()
	m.duration.Observe(latency.Seconds())
}

// WorkerStarted increments the active worker gauge
func (m *Metrics) WorkerStarted() {
	if m == nil {
		return
	}
	m.activeWorkers.Inc()
}

// WorkerStopped decrements the active worker gauge
func (m *Metrics) WorkerStopped() {
	if m == nil {
		return
	}
	m.activeWorkers.Dec()
}

// SetIntervalThroughput stores the delta of the last progress line
func (m *Metrics) SetIntervalThroughput(delta int64) {
	if m == nil {
		return
	}
	m.throughput.Set(float64(delta))
}
