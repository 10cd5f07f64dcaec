package reporting

import (
	"time"

	"delivery-sla-lab/internal/domain"
	"delivery-sla-lab/internal/reconcile"
)

// Report is the rendered view of one SLA analysis run.
type Report struct {
	// Metadata
	RunID       string
	GeneratedAt time.Time
	Binning     string

	Data        DataSummary
	DataQuality DataQualitySection

	Analysis *domain.Analysis
	Insights []domain.Insight
}

// DataSummary describes the analysed dataset.
type DataSummary struct {
	Items        int
	Orders       int
	PurchaseFrom *time.Time
	PurchaseTo   *time.Time
	Cache        string // hit | miss | bypass
	Filtered     int    // rows removed by the global filter
}

// DataQualitySection contains sufficiency checks and reconciliation counts.
type DataQualitySection struct {
	SufficiencyChecks []SufficiencyCheckRow
	Reconcile         reconcile.Report
	AllChecksPassed   bool
}

// SufficiencyCheckRow represents one sufficiency criterion.
type SufficiencyCheckRow struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
}

// Input collects what the generator needs from an analysis run.
type Input struct {
	RunID     string
	Binning   string
	Dataset   *domain.Dataset
	Analysis  *domain.Analysis
	Insights  []domain.Insight
	Reconcile reconcile.Report
	Cache     string
	Filtered  int
	Checks    []SufficiencyCheckRow
}
