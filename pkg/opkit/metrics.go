package opkit

import "time"

// MetricsRecorder is the narrow interface Store reports run/retry counts
// and durations through. The core package never imports a metrics client
// directly; internal/opkit/metrics provides the prometheus-backed
// implementation wired in by callers that want it (§4.13).
type MetricsRecorder interface {
	RecordRun(path string, outcome string, duration time.Duration)
	RecordRetry(path string)
	SetSubscribers(path string, count int)
}

type noopMetrics struct{}

func (noopMetrics) RecordRun(string, string, time.Duration) {}
func (noopMetrics) RecordRetry(string)                      {}
func (noopMetrics) SetSubscribers(string, int)               {}

// MetricsRecorderKey is the context key a Store seeds with its configured
// MetricsRecorder so modifiers (Retry, in particular) can report without
// threading a recorder through every constructor.
var MetricsRecorderKey = NewKey[MetricsRecorder]("opkit.metrics", MetricsRecorder(noopMetrics{}))
