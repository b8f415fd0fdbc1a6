// Package metrics provides observability hooks for sessions, retries,
// the worker and the cluster scheduler.
package metrics

import "time"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeTimeout = "timeout"
)

// Recorder receives measurements.  NoopRecorder is used when metrics
// are not configured.
type Recorder interface {
	ObserveSession(outcome string, d time.Duration)
	IncAttempt(pkg string)
	IncRetry(pkg string)
	IncRetriesExhausted(pkg string)

	ObserveWorkerBuild(success bool, d time.Duration)
	SetWorkerInFlight(n int)

	IncScheduled(worker string)
	ObserveRemoteBuild(worker string, success bool, d time.Duration)
	ObserveCacheTransfer(direction string, bytes int)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) ObserveSession(string, time.Duration) {}
func (NoopRecorder) IncAttempt(string) {}
func (NoopRecorder) IncRetry(string) {}
func (NoopRecorder) IncRetriesExhausted(string) {}
func (NoopRecorder) ObserveWorkerBuild(bool, time.Duration) {}
func (NoopRecorder) SetWorkerInFlight(int) {}
func (NoopRecorder) IncScheduled(string) {}
func (NoopRecorder) ObserveRemoteBuild(string, bool, time.Duration) {}
func (NoopRecorder) ObserveCacheTransfer(string, int) {}

func result(success bool) string {
	if success {
		return OutcomeSuccess
	}
	return OutcomeFailure
}
