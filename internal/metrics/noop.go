package metrics

import "time"

// NoopMetrics is used when metrics are disabled
type NoopMetrics struct{}

var _ Recorder = (*NoopMetrics)(nil)

func NewNoopMetrics() Recorder {
	return &NoopMetrics{}
}

func (n *NoopMetrics) RecordAuthAttempt(status string, duration time.Duration) {}
func (n *NoopMetrics) RecordTokenIssued()                                       {}
func (n *NoopMetrics) RecordAuditWriteFailure()                                 {}
func (n *NoopMetrics) RecordLogout()                                            {}
