package metrics

import "time"

// ResultLabel enumerates action/run result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultFailed   ResultLabel = "failed"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder defines observability hooks for migration metrics. Implementations
// may forward to Prometheus, OpenTelemetry, etc. All methods must be safe to
// call concurrently from batch workers.
type Recorder interface {
	ObserveRunDuration(d time.Duration)
	IncRunOutcome(result ResultLabel)
	ObserveActionDuration(contentType string, d time.Duration)
	IncActionResult(contentType string, result ResultLabel)
	ObserveBatchDuration(contentType string, d time.Duration)
	IncItemResult(contentType, status string)
	ObservePublishDuration(contentType string, d time.Duration, success bool)
	IncPublishRetry(contentType string)
	AddInFlight(contentType string, delta int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveRunDuration(time.Duration)                   {}
func (NoopRecorder) IncRunOutcome(ResultLabel)                          {}
func (NoopRecorder) ObserveActionDuration(string, time.Duration)        {}
func (NoopRecorder) IncActionResult(string, ResultLabel)                {}
func (NoopRecorder) ObserveBatchDuration(string, time.Duration)         {}
func (NoopRecorder) IncItemResult(string, string)                       {}
func (NoopRecorder) ObservePublishDuration(string, time.Duration, bool) {}
func (NoopRecorder) IncPublishRetry(string)                             {}
func (NoopRecorder) AddInFlight(string, int)                            {}
