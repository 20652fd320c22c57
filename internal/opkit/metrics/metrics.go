// Package metrics exposes the prometheus metrics this module's operations
// are instrumented with, mirroring how the teacher's pkg/metrics registers
// a fixed set of CounterVec/HistogramVec/GaugeVec collectors at package
// init and offers a small Recorder type over them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"net/http"
)

var (
	TaskRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opkit_task_runs_total",
			Help: "Total number of task runs by path and outcome",
		},
		[]string{"path", "outcome"},
	)

	TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opkit_task_duration_seconds",
			Help:    "Task run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	Retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opkit_retries_total",
			Help: "Total number of retry attempts by path",
		},
		[]string{"path"},
	)

	ActiveStores = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "opkit_active_stores",
			Help: "Number of stores currently registered on clients",
		},
	)

	StoreSubscribers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "opkit_store_subscribers",
			Help: "Current subscriber count by path",
		},
		[]string{"path"},
	)
)

func init() {
	prometheus.MustRegister(TaskRuns, TaskDuration, Retries, ActiveStores, StoreSubscribers)
}

// Handler returns the standard promhttp handler for the default registry,
// suitable for mounting at /metrics (cmd/opkitdemo's serve subcommand does
// exactly this).
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures an in-flight run and records it on Stop.
type Timer struct {
	path  string
	start time.Time
}

// StartTimer begins timing a run of path.
func StartTimer(path string) *Timer {
	return &Timer{path: path, start: time.Now()}
}

// Stop records the elapsed duration and the run outcome.
func (t *Timer) Stop(outcome string) {
	TaskDuration.WithLabelValues(t.path).Observe(time.Since(t.start).Seconds())
	TaskRuns.WithLabelValues(t.path, outcome).Inc()
}
