package stresstest

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Observe(t *testing.T) {
	m := NewMetrics()

	m.Observe(Success, 3*time.Millisecond)
	m.Observe(Success, 5*time.Millisecond)
	m.Observe(NonOK, time.Millisecond)
	m.WorkerStarted()
	m.WorkerStarted()
	m.WorkerStopped()
	m.SetIntervalThroughput(37)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("non_ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.requests.WithLabelValues("transport")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeWorkers))
	assert.Equal(t, 37.0, testutil.ToFloat64(m.throughput))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{
		"loadgen_requests_total",
		"loadgen_request_duration_seconds",
		"loadgen_workers_active",
		"loadgen_interval_throughput",
	}, names)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.Observe(Success, time.Millisecond)
		m.WorkerStarted()
		m.WorkerStopped()
		m.SetIntervalThroughput(1)
	})
	assert.Nil(t, m.Registry())
}
