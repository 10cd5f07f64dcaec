package domain

import "time"

// StageStatus is the externally visible status of a pipeline stage.
type StageStatus string

// Stage statuses.
const (
	StageStatusSuccess StageStatus = "success"
	StageStatusWarning StageStatus = "warning"
	StageStatusFailed  StageStatus = "failed"
)

// FailureKind classifies why a stage failed.
type FailureKind string

// Failure kinds.
const (
	FailureToolError         FailureKind = "tool_error"         // external tool exited non-zero
	FailureTimeout           FailureKind = "timeout"            // wall-clock timeout reached
	FailureExecution         FailureKind = "execution_error"    // in-process error
	FailureDependencyFailure FailureKind = "dependency_failure" // a direct upstream stage failed
)

// Outcome is the result of one stage run. Implemented only by Succeeded,
// Warned and Failed.
type Outcome interface {
	Status() StageStatus
	TableName() string
	sealed()
}

// Succeeded is a stage that produced its table.
type Succeeded struct {
	Table    string
	Metadata map[string]string
}

// Warned is a stage that produced its table with a caveat.
type Warned struct {
	Table    string
	Note     string
	Metadata map[string]string
}

// Failed is a stage that did not produce its table.
type Failed struct {
	Table  string
	Kind   FailureKind
	Reason string
	Stderr string // captured tool output, truncated
}

func (Succeeded) Status() StageStatus { return StageStatusSuccess }
func (Warned) Status() StageStatus    { return StageStatusWarning }
func (Failed) Status() StageStatus    { return StageStatusFailed }

func (o Succeeded) TableName() string { return o.Table }
func (o Warned) TableName() string    { return o.Table }
func (o Failed) TableName() string    { return o.Table }

func (Succeeded) sealed() {}
func (Warned) sealed()    {}
func (Failed) sealed()    {}

// StageResult records one stage execution.
type StageResult struct {
	Stage     string
	StartedAt time.Time
	Duration  time.Duration
	Outcome   Outcome
}

// Status is a shortcut for Outcome.Status.
func (r StageResult) Status() StageStatus {
	if r.Outcome == nil {
		return StageStatusFailed
	}
	return r.Outcome.Status()
}

// Failure returns the Failed outcome if the stage failed.
func (r StageResult) Failure() (Failed, bool) {
	f, ok := r.Outcome.(Failed)
	return f, ok
}
