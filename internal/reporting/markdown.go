package reporting

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"delivery-sla-lab/internal/binning"
	"delivery-sla-lab/internal/domain"
)

// InsufficientData is rendered in place of an empty table.
const InsufficientData = "Insufficient data."

// Rows shown in the top and bottom state lists and the category table.
const (
	stateListSize    = 5
	categoryListSize = 10
)

// printer formats numbers with thousands separators.
var printer = message.NewPrinter(language.English)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder
	p := printer
	a := r.Analysis
	if a == nil {
		a = &domain.Analysis{}
	}

	// Header
	sb.WriteString("# Delivery SLA Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	if r.RunID != "" {
		sb.WriteString(fmt.Sprintf("Run: `%s` | Binning: %s | Cache: %s\n\n", r.RunID, r.Binning, r.Data.Cache))
	}

	// Executive summary
	sb.WriteString("## Executive Summary\n\n")
	k := a.Key
	sb.WriteString(p.Sprintf("- %d order items across %d orders", k.TotalItems, k.TotalOrders))
	if r.Data.PurchaseFrom != nil && r.Data.PurchaseTo != nil {
		sb.WriteString(fmt.Sprintf(", purchased %s to %s",
			r.Data.PurchaseFrom.Format("2006-01-02"), r.Data.PurchaseTo.Format("2006-01-02")))
	}
	sb.WriteString("\n")
	sb.WriteString(p.Sprintf("- Late rate %.2f%%, on-time rate %.2f%%\n", k.LateRatePct, k.OnTimeRatePct))
	for _, in := range r.Insights {
		sb.WriteString(fmt.Sprintf("- **%s:** %s\n", in.Title, in.Finding))
	}
	sb.WriteString("\n")

	writeDataQuality(&sb, p, r)
	writeKeyMetrics(&sb, p, k)
	writePerformance(&sb, p, a.Performance)

	// States
	sb.WriteString("## Customer States\n\n")
	if a.ByState.Empty() {
		sb.WriteString(InsufficientData + "\n\n")
	} else {
		sb.WriteString(p.Sprintf("Minimum support: %d items (%d states dropped).\n\n", a.ByState.MinSupport, a.ByState.Dropped))
		sb.WriteString("### Highest late rate\n\n")
		writeRows(&sb, p, "State", worstRows(a.ByState, stateListSize))
		sb.WriteString("### Lowest late rate\n\n")
		writeRows(&sb, p, "State", bestRows(a.ByState, stateListSize))
	}

	writeBottleneck(&sb, p, a.Bottleneck)

	// Temporal
	sb.WriteString("## Temporal Patterns\n\n")
	writeTable(&sb, p, "### By purchase day of week", "Day", a.ByDayOfWeek, 0)
	writeTable(&sb, p, "### By purchase month", "Month", a.ByMonth, 0)
	writeTable(&sb, p, "### Monthly trend", "Year-Month", a.ByYearMonth, 0)

	// Bins
	sb.WriteString("## Bins\n\n")
	if r.Binning == string(binning.StrategyFixed) {
		writeBinRanges(&sb, "Price ranges (BRL)", binning.NewFixedPriceBinner())
		writeBinRanges(&sb, "Distance ranges (km)", binning.NewFixedDistanceBinner())
	}
	writeTable(&sb, p, "### Price", "Price Bin", a.ByPriceBin, 0)
	writeTable(&sb, p, "### Distance", "Distance Bin", a.ByDistanceBin, 0)

	sb.WriteString("## Product Categories\n\n")
	writeTable(&sb, p, "", "Category", a.ByCategory, categoryListSize)

	return sb.String()
}

func writeBinRanges(sb *strings.Builder, title string, b *binning.FixedBinner) {
	parts := make([]string, len(b.Labels))
	for i, l := range b.Labels {
		parts[i] = l + " " + b.RangeLabel(l)
	}
	sb.WriteString(fmt.Sprintf("%s: %s.\n\n", title, strings.Join(parts, ", ")))
}

func writeDataQuality(sb *strings.Builder, p *message.Printer, r *Report) {
	sb.WriteString("## Data Quality\n\n")
	if len(r.DataQuality.SufficiencyChecks) > 0 {
		sb.WriteString("| Check | Threshold | Actual | Status |\n")
		sb.WriteString("|-------|-----------|--------|--------|\n")
		for _, check := range r.DataQuality.SufficiencyChecks {
			status := "FAIL"
			if check.Pass {
				status = "PASS"
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				check.Name, check.Threshold, check.Actual, status))
		}
		sb.WriteString("\n")
		if !r.DataQuality.AllChecksPassed {
			sb.WriteString("**Some checks failed.** Figures below rest on thin data.\n\n")
		}
	}

	rc := r.DataQuality.Reconcile
	sb.WriteString("| Anomaly | Rows |\n")
	sb.WriteString("|---------|------|\n")
	sb.WriteString(p.Sprintf("| Carrier handoff after delivery (clamped) | %d |\n", rc.CarrierClamped))
	sb.WriteString(p.Sprintf("| Approval after carrier handoff (clamped) | %d |\n", rc.ApprovalClamped))
	sb.WriteString(p.Sprintf("| Delivered before purchase (kept) | %d |\n", rc.DeliveredBeforePurchase))
	sb.WriteString(p.Sprintf("| Removed by global filter | %d |\n", r.Data.Filtered))
	sb.WriteString("\n")
}

func writeKeyMetrics(sb *strings.Builder, p *message.Printer, k domain.KeyMetrics) {
	sb.WriteString("## Key Metrics\n\n")
	if k.TotalItems == 0 {
		sb.WriteString(InsufficientData + "\n\n")
		return
	}
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(p.Sprintf("| Order items | %d |\n", k.TotalItems))
	sb.WriteString(p.Sprintf("| Orders | %d |\n", k.TotalOrders))
	sb.WriteString(p.Sprintf("| Late rate | %.2f%% |\n", k.LateRatePct))
	sb.WriteString(p.Sprintf("| On-time rate | %.2f%% |\n", k.OnTimeRatePct))
	sb.WriteString(p.Sprintf("| Strict on-time rate | %.2f%% |\n", k.StrictOnTimeRatePct))
	sb.WriteString(p.Sprintf("| Very early rate | %.2f%% |\n", k.EarlyRatePct))
	sb.WriteString(p.Sprintf("| Avg early margin (days) | %.2f |\n", k.AvgEarlyMarginDays))
	sb.WriteString(p.Sprintf("| Avg days late (late items) | %.2f |\n", k.AvgLateDays))
	sb.WriteString(fmt.Sprintf("| Avg total delivery days | %s |\n", optFloat(p, k.AvgTotalDays)))
	sb.WriteString(fmt.Sprintf("| Avg approval days | %s |\n", optFloat(p, k.AvgApprovalDays)))
	sb.WriteString(fmt.Sprintf("| Avg handling days | %s |\n", optFloat(p, k.AvgHandlingDays)))
	sb.WriteString(fmt.Sprintf("| Avg in-transit days | %s |\n", optFloat(p, k.AvgInTransitDays)))
	sb.WriteString(p.Sprintf("| Total days P50 / P90 / P99 | %d / %d / %d |\n", k.TotalDaysP50, k.TotalDaysP90, k.TotalDaysP99))
	if k.TotalDaysClamped > 0 {
		sb.WriteString(p.Sprintf("| Total days outside percentile range (clamped) | %d |\n", k.TotalDaysClamped))
	}
	sb.WriteString("\n")
}

func writePerformance(sb *strings.Builder, p *message.Printer, rows []domain.PerformanceSummaryRow) {
	sb.WriteString("## Performance Categories\n\n")
	if len(rows) == 0 {
		sb.WriteString(InsufficientData + "\n\n")
		return
	}
	sb.WriteString("| Category | Items | Share | Mean Delta | Median Delta | Mean Total Days |\n")
	sb.WriteString("|----------|-------|-------|------------|--------------|-----------------|\n")
	for _, row := range rows {
		sb.WriteString(p.Sprintf("| %s | %d | %.2f%% | %.2f | %.2f | %s |\n",
			row.Category, row.Count, row.Pct, row.MeanEDDDelta, row.MedianEDDDelta, optFloat(p, row.MeanTotalDays)))
	}
	sb.WriteString("\n")
}

func writeBottleneck(sb *strings.Builder, p *message.Printer, b domain.Bottleneck) {
	sb.WriteString("## Delivery Bottleneck\n\n")
	if len(b.Stages) == 0 {
		sb.WriteString(InsufficientData + "\n\n")
		return
	}
	sb.WriteString("| Stage | Late Mean | On-Time Mean | Impact |\n")
	sb.WriteString("|-------|-----------|--------------|--------|\n")
	for _, s := range b.Stages {
		sb.WriteString(p.Sprintf("| %s | %.2f | %.2f | %+.1f%% |\n", s.Stage, s.LateMean, s.OnTimeMean, s.ImpactPct))
	}
	sb.WriteString("\n")
	if b.Primary != nil {
		sb.WriteString(fmt.Sprintf("Primary stage: **%s**. Attribution is a correlation between stage length and lateness.\n\n", b.Primary.Stage))
	}
}

// writeTable renders an aggregate table. limit 0 shows every row.
func writeTable(sb *strings.Builder, p *message.Printer, heading, keyHeader string, t *domain.AggregateTable, limit int) {
	if heading != "" {
		sb.WriteString(heading + "\n\n")
	}
	if t.Empty() {
		sb.WriteString(InsufficientData + "\n\n")
		return
	}
	rows := t.Rows
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	writeRows(sb, p, keyHeader, rows)
}

func writeRows(sb *strings.Builder, p *message.Printer, keyHeader string, rows []domain.AggregateRow) {
	sb.WriteString(fmt.Sprintf("| %s | Items | Late Rate | Mean Delta | Median Delta | Mean Total Days |\n", keyHeader))
	sb.WriteString("|---|---|---|---|---|---|\n")
	for _, row := range rows {
		sb.WriteString(p.Sprintf("| %s | %d | %.2f%% | %s | %s | %s |\n",
			row.Key, row.Count, row.LateRatePct,
			optFloat(p, row.MeanEDDDelta), optFloat(p, row.MedianEDDDelta), optFloat(p, row.MeanTotalDays)))
	}
	sb.WriteString("\n")
}

// worstRows returns the first n rows; tables are ranked by late rate desc.
func worstRows(t *domain.AggregateTable, n int) []domain.AggregateRow {
	if len(t.Rows) < n {
		n = len(t.Rows)
	}
	return t.Rows[:n]
}

// bestRows returns the last n rows, lowest late rate first.
func bestRows(t *domain.AggregateTable, n int) []domain.AggregateRow {
	if len(t.Rows) < n {
		n = len(t.Rows)
	}
	out := make([]domain.AggregateRow, 0, n)
	for i := len(t.Rows) - 1; i >= len(t.Rows)-n; i-- {
		out = append(out, t.Rows[i])
	}
	return out
}

func optFloat(p *message.Printer, v *float64) string {
	if v == nil {
		return "n/a"
	}
	return p.Sprintf("%.2f", *v)
}
