package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records pipeline runs. A nil *Metrics is valid and records nothing.
type Metrics struct {
	runTotal     *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	stepDuration *prometheus.HistogramVec
	stepFailures *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelvault_pipeline_transforms_total",
			Help: "Total transformation pipeline runs by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelvault_pipeline_transform_duration_seconds",
			Help:    "End to end transformation latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelvault_pipeline_step_duration_seconds",
			Help:    "Latency of individual pipeline steps in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"step"}),
		stepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelvault_pipeline_step_failures_total",
			Help: "Total pipeline failures by failing step.",
		}, []string{"step"}),
	}
	reg.MustRegister(m.runTotal, m.runDuration, m.stepDuration, m.stepFailures)
	return m
}

func (m *Metrics) observeRun(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.runTotal.WithLabelValues(result).Inc()
	m.runDuration.WithLabelValues(result).Observe(d.Seconds())
}

func (m *Metrics) observeStep(step string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

func (m *Metrics) observeFailure(step string) {
	if m == nil {
		return
	}
	m.stepFailures.WithLabelValues(step).Inc()
}
