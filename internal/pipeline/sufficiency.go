package pipeline

import (
	"fmt"
	"sort"

	"delivery-sla-lab/internal/domain"
	"delivery-sla-lab/internal/idhash"
	"delivery-sla-lab/internal/metrics"
	"delivery-sla-lab/internal/reporting"
)

// Default sufficiency thresholds.
const (
	DefaultMinItems            = 1000
	DefaultMinGeoCoveragePct   = 90.0
	DefaultMinStateCoveragePct = 99.0
)

// SufficiencyCheck represents one data sufficiency criterion.
type SufficiencyCheck struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
}

// SufficiencyResult contains all checks.
type SufficiencyResult struct {
	Checks  []SufficiencyCheck
	AllPass bool
	Errors  []string // data integrity errors
}

// SufficiencyChecker validates that a filtered dataset can support the analysis.
// Failing checks are reported, never fatal.
type SufficiencyChecker struct {
	minItems            int
	minGeoCoveragePct   float64
	minStateCoveragePct float64
}

// NewSufficiencyChecker creates a checker with default thresholds.
func NewSufficiencyChecker() *SufficiencyChecker {
	return &SufficiencyChecker{
		minItems:            DefaultMinItems,
		minGeoCoveragePct:   DefaultMinGeoCoveragePct,
		minStateCoveragePct: DefaultMinStateCoveragePct,
	}
}

// WithMinItems overrides the minimum item count.
func (c *SufficiencyChecker) WithMinItems(n int) *SufficiencyChecker {
	c.minItems = n
	return c
}

// Check performs all checks.
func (c *SufficiencyChecker) Check(ds *domain.Dataset) *SufficiencyResult {
	var records []domain.OrderItemRecord
	if ds != nil {
		records = ds.Records
	}

	result := &SufficiencyResult{AllPass: true}
	add := func(check SufficiencyCheck) {
		result.Checks = append(result.Checks, check)
		if !check.Pass {
			result.AllPass = false
		}
	}

	// Check 1: enough delivered items
	add(SufficiencyCheck{
		Name:      "Delivered items",
		Threshold: fmt.Sprintf(">= %d", c.minItems),
		Actual:    fmt.Sprintf("%d", len(records)),
		Pass:      len(records) >= c.minItems,
	})

	// Check 2: months for seasonality
	months := make(map[int]struct{})
	for i := range records {
		if records[i].OrderMonth > 0 {
			months[records[i].OrderMonth] = struct{}{}
		}
	}
	add(SufficiencyCheck{
		Name:      "Distinct purchase months",
		Threshold: fmt.Sprintf("> %d", metrics.MinMonthsForSeasonality),
		Actual:    fmt.Sprintf("%d", len(months)),
		Pass:      len(months) > metrics.MinMonthsForSeasonality,
	})

	// Check 3 and 4: coverage of the grouping columns
	withState, withDistance := 0, 0
	for i := range records {
		if records[i].CustomerState != "" {
			withState++
		}
		if records[i].DistanceKm != nil {
			withDistance++
		}
	}
	add(coverageCheck("Customer state coverage", withState, len(records), c.minStateCoveragePct))
	add(coverageCheck("Geolocation coverage", withDistance, len(records), c.minGeoCoveragePct))

	// Check 5: duplicate line items
	dupCheck, dupErrors := checkDuplicateItems(records)
	add(dupCheck)
	result.Errors = append(result.Errors, dupErrors...)

	return result
}

func coverageCheck(name string, hits, total int, minPct float64) SufficiencyCheck {
	pct := 0.0
	if total > 0 {
		pct = float64(hits) / float64(total) * 100
	}
	return SufficiencyCheck{
		Name:      name,
		Threshold: fmt.Sprintf(">= %.0f%%", minPct),
		Actual:    fmt.Sprintf("%.1f%% (%d/%d)", pct, hits, total),
		Pass:      total > 0 && pct >= minPct,
	}
}

// checkDuplicateItems: duplicate (order_id, order_item_id) count == 0.
func checkDuplicateItems(records []domain.OrderItemRecord) (SufficiencyCheck, []string) {
	seen := make(map[string]int, len(records))
	for i := range records {
		seen[idhash.ComputeRecordKey(records[i].OrderID, records[i].OrderItemID)]++
	}

	// Sort keys for deterministic output
	keys := make([]string, 0, len(seen))
	for k, n := range seen {
		if n > 1 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var errors []string
	for _, k := range keys {
		errors = append(errors, fmt.Sprintf("duplicate line item: %s (count=%d)", k, seen[k]))
	}

	return SufficiencyCheck{
		Name:      "Duplicate line items",
		Threshold: "= 0",
		Actual:    fmt.Sprintf("%d", len(keys)),
		Pass:      len(keys) == 0,
	}, errors
}

// convertToReportRows maps checks to report rows.
func convertToReportRows(result *SufficiencyResult) []reporting.SufficiencyCheckRow {
	if result == nil {
		return nil
	}
	rows := make([]reporting.SufficiencyCheckRow, len(result.Checks))
	for i, c := range result.Checks {
		rows[i] = reporting.SufficiencyCheckRow{
			Name:      c.Name,
			Threshold: c.Threshold,
			Actual:    c.Actual,
			Pass:      c.Pass,
		}
	}
	return rows
}
