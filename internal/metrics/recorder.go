package metrics

import "time"

// ResultLabel enumerates invocation outcomes.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailed  ResultLabel = "failed"
)

// Recorder receives build observations. Tier names are the planner's.
type Recorder interface {
	ObserveStageDuration(tier string, d time.Duration)
	ObserveBuildDuration(d time.Duration)
	SetStageItems(tier string, planned, fresh int)
	ObserveInvocation(tier, rule string, d time.Duration, result ResultLabel)
	IncBuildOutcome(outcome string) // outcome: success|failed|dry-run
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration)                   {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)                           {}
func (NoopRecorder) SetStageItems(string, int, int)                               {}
func (NoopRecorder) ObserveInvocation(string, string, time.Duration, ResultLabel) {}
func (NoopRecorder) IncBuildOutcome(string)                                       {}
