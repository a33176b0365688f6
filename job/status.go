package job

import (
	"time"

	"go.uber.org/atomic"
)

type RunningState string

const (
	Starting  RunningState = "starting"
	Running   RunningState = "running"
	Failed    RunningState = "failed"
	Succeeded RunningState = "succeeded"
)

type baseStatus struct {
	Status      RunningState `json:"status"`
	SubmittedAt time.Time    `json:"submittedAt"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
}

func newBaseStatus() baseStatus {
	return baseStatus{
		Status:      Starting,
		SubmittedAt: time.Now(),
	}
}

func (s *baseStatus) Complete(rs RunningState) {
	now := time.Now()
	s.Status = rs
	s.CompletedAt = &now
}

// Status is a status of the whole run.
type Status struct {
	baseStatus
	Errors []Error `json:"errors,omitempty"`
}

func newStatus() *Status {
	return &Status{baseStatus: newBaseStatus()}
}

// StageStatus tracks completion of the units in one stage.
type StageStatus struct {
	baseStatus
	DoneUnits atomic.Int32 `json:"doneUnits"`
}

func newStageStatus() *StageStatus {
	return &StageStatus{baseStatus: newBaseStatus()}
}

// Error describes a failed unit, carrying enough to reproduce the failure.
type Error struct {
	Unit       string `json:"unit"`
	Message    string `json:"message"`
	Stacktrace string `json:"stacktrace,omitempty"`
}
