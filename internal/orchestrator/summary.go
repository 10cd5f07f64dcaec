package orchestrator

import (
	"time"

	"delivery-sla-lab/internal/domain"
)

// Summarize tallies stage results. Warnings count as successes. The run is
// SUCCESS with no failed stage, FAILURE when nothing succeeded and
// PARTIAL_SUCCESS otherwise.
func Summarize(runID string, started, finished time.Time, results []domain.StageResult) *domain.RunSummary {
	s := &domain.RunSummary{
		RunID:       runID,
		StartedAt:   started,
		FinishedAt:  finished,
		Total:       len(results),
		Stages:      results,
		TableCounts: make(map[string]int64),
	}

	for _, r := range results {
		switch r.Status() {
		case domain.StageStatusSuccess:
			s.Succeeded++
		case domain.StageStatusWarning:
			s.Succeeded++
			s.Warned++
		default:
			s.Failed++
		}
	}

	if s.Total > 0 {
		s.SuccessRatePct = float64(s.Succeeded) / float64(s.Total) * 100
	}

	switch {
	case s.Failed == 0:
		s.Status = domain.RunStatusSuccess
	case s.Succeeded == 0:
		s.Status = domain.RunStatusFailure
	default:
		s.Status = domain.RunStatusPartialSuccess
	}
	return s
}
