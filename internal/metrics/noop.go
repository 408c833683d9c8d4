package metrics

import "time"

// NoopMetrics discards everything. Used when METRICS_ENABLED is false.
type NoopMetrics struct{}

var _ Recorder = (*NoopMetrics)(nil)

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (n *NoopMetrics) RecordAuthAttempt(method string, success bool, duration time.Duration) {}
func (n *NoopMetrics) RecordTokenIssued(method string)                                       {}
func (n *NoopMetrics) RecordHTTPRequest(method, route string, status int, d time.Duration)   {}
