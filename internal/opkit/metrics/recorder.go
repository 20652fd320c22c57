package metrics

import (
	"time"

	"github.com/cuemby/opkit/pkg/opkit"
)

// Recorder implements opkit.MetricsRecorder over the package's prometheus
// collectors.
type Recorder struct{}

func (Recorder) RecordRun(path, outcome string, duration time.Duration) {
	TaskDuration.WithLabelValues(path).Observe(duration.Seconds())
	TaskRuns.WithLabelValues(path, outcome).Inc()
}

func (Recorder) RecordRetry(path string) {
	Retries.WithLabelValues(path).Inc()
}

func (Recorder) SetSubscribers(path string, count int) {
	StoreSubscribers.WithLabelValues(path).Set(float64(count))
}

var _ opkit.MetricsRecorder = Recorder{}
