// Package metrics exposes Prometheus counters and gauges for the dispatch
// engine, grounded on the teacher's internal/metrics/prometheus.go shape
// (one package-level registry, package-level Record*/Set* functions, an
// http.Handler for scraping).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps the Prometheus collectors for the task server.
type Metrics struct {
	registry *prometheus.Registry

	dispatchesTotal     *prometheus.CounterVec
	fanOutSize          prometheus.Histogram
	rejectedSignatures  *prometheus.CounterVec
	tofuPending         prometheus.Gauge
	connectedExecutors  prometheus.Gauge
	taskDuration        *prometheus.HistogramVec
}

var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

var m *Metrics

// Init initializes the package-level Prometheus registry under namespace.
func Init(namespace string) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m = &Metrics{
		registry: registry,

		dispatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatches_total",
				Help:      "Total LaunchTask calls, labeled by outcome",
			},
			[]string{"outcome"},
		),

		fanOutSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fan_out_size",
				Help:      "Number of executors a launched task was dispatched to",
				Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 500},
			},
		),

		rejectedSignatures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rejected_signatures_total",
				Help:      "Signed payloads rejected, labeled by reason",
			},
			[]string{"reason"},
		),

		tofuPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tofu_pending_keys",
				Help:      "Executor keys awaiting admin approval",
			},
		),

		connectedExecutors: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "connected_executors",
				Help:      "Executors currently holding an open GetTasks stream",
			},
		),

		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_ms",
				Help:      "Task execution duration as reported by executors",
				Buckets:   defaultBuckets,
			},
			[]string{"exit_status"},
		),
	}

	registry.MustRegister(
		m.dispatchesTotal,
		m.fanOutSize,
		m.rejectedSignatures,
		m.tofuPending,
		m.connectedExecutors,
		m.taskDuration,
	)
}

// RecordDispatch records a LaunchTask call's outcome ("ok", "no_match",
// "rejected_signature", "invalid_predicate") and the resulting fan-out size.
func RecordDispatch(outcome string, fanOut int) {
	if m == nil {
		return
	}
	m.dispatchesTotal.WithLabelValues(outcome).Inc()
	m.fanOutSize.Observe(float64(fanOut))
}

// RecordRejectedSignature records a rejected SignedPayload by reason
// ("expired", "key_not_found", "wrong_signature").
func RecordRejectedSignature(reason string) {
	if m == nil {
		return
	}
	m.rejectedSignatures.WithLabelValues(reason).Inc()
}

// SetTOFUPending sets the current unapproved-key count.
func SetTOFUPending(count int) {
	if m == nil {
		return
	}
	m.tofuPending.Set(float64(count))
}

// SetConnectedExecutors sets the current connected-executor count.
func SetConnectedExecutors(count int) {
	if m == nil {
		return
	}
	m.connectedExecutors.Set(float64(count))
}

// RecordTaskDuration records a completed task's duration and exit status
// ("success", "failure").
func RecordTaskDuration(exitStatus string, durationMs int64) {
	if m == nil {
		return
	}
	m.taskDuration.WithLabelValues(exitStatus).Observe(float64(durationMs))
}

// Handler returns the http.Handler serving /metrics.
func Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
