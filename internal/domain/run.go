package domain

import "time"

// RunStatus is the overall status of a pipeline run.
type RunStatus string

// Run statuses.
const (
	RunStatusSuccess        RunStatus = "SUCCESS"         // no failed stage
	RunStatusPartialSuccess RunStatus = "PARTIAL_SUCCESS" // some failed, some succeeded
	RunStatusFailure        RunStatus = "FAILURE"         // nothing succeeded
)

// RunSummary tallies stage results for one pipeline run.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	Total          int
	Succeeded      int // success and warning
	Warned         int
	Failed         int
	SuccessRatePct float64
	Status         RunStatus

	Stages      []StageResult
	TableCounts map[string]int64 // table -> row count, missing when count failed
}

// Duration returns the wall-clock duration of the run.
func (s *RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
