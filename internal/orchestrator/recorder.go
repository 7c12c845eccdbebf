package orchestrator

import (
	"time"

	"job-harvester/internal/domain/harvest"
)

// Recorder receives orchestration measurements. *metrics.Collector
// implements it.
type Recorder interface {
	TaskStarted()
	TaskFinished(status harvest.TaskStatus, elapsed time.Duration)
	SourceFinished(strategy, platform string, status harvest.ResultStatus, elapsed time.Duration)
	JobsStreamed(n int)
	ApprovalWaited(elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) TaskStarted() {}
func (nopRecorder) TaskFinished(harvest.TaskStatus, time.Duration) {}
func (nopRecorder) SourceFinished(string, string, harvest.ResultStatus, time.Duration) {}
func (nopRecorder) JobsStreamed(int) {}
func (nopRecorder) ApprovalWaited(time.Duration) {}
