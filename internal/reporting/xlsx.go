package reporting

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"delivery-sla-lab/internal/domain"
)

// SummarySheet is the first sheet of the workbook.
const SummarySheet = "Summary"

var xlsxHeaders = []string{
	"Group", "Items", "Late Rate %", "Mean EDD Delta", "Median EDD Delta", "Mean Total Days",
}

// BuildWorkbook renders the report as a workbook with a summary sheet and
// one sheet per aggregate table. The caller closes the file.
func BuildWorkbook(r *Report) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}

	if err := writeSummarySheet(f, r, headerStyle); err != nil {
		f.Close()
		return nil, err
	}

	a := r.Analysis
	if a == nil {
		a = &domain.Analysis{}
	}
	for _, t := range a.Tables() {
		if t == nil {
			continue
		}
		if err := writeTableSheet(f, t, headerStyle); err != nil {
			f.Close()
			return nil, err
		}
	}

	return f, nil
}

// WriteXLSX saves the workbook to path.
func WriteXLSX(path string, r *Report) error {
	f, err := BuildWorkbook(r)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func writeSummarySheet(f *excelize.File, r *Report, headerStyle int) error {
	k := domain.KeyMetrics{}
	if r.Analysis != nil {
		k = r.Analysis.Key
	}

	rows := [][]any{
		{"Metric", "Value"},
		{"Generated", r.GeneratedAt.Format("2006-01-02 15:04:05")},
		{"Run", r.RunID},
		{"Order items", k.TotalItems},
		{"Orders", k.TotalOrders},
		{"Late rate %", k.LateRatePct},
		{"On-time rate %", k.OnTimeRatePct},
		{"Strict on-time rate %", k.StrictOnTimeRatePct},
		{"Very early rate %", k.EarlyRatePct},
		{"Avg early margin days", k.AvgEarlyMarginDays},
		{"Avg days late", k.AvgLateDays},
		{"Total days P50", k.TotalDaysP50},
		{"Total days P90", k.TotalDaysP90},
		{"Total days P99", k.TotalDaysP99},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary row %d: %w", i, err)
		}
	}
	if err := f.SetCellStyle(SummarySheet, "A1", "B1", headerStyle); err != nil {
		return fmt.Errorf("style summary header: %w", err)
	}
	return f.SetColWidth(SummarySheet, "A", "B", 24)
}

func writeTableSheet(f *excelize.File, t *domain.AggregateTable, headerStyle int) error {
	sheet := string(t.Dimension)
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", sheet, err)
	}

	for i, header := range xlsxHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(xlsxHeaders), 1)
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}

	if t.Empty() {
		if err := f.SetCellValue(sheet, "A2", InsufficientData); err != nil {
			return err
		}
	}
	for i, row := range t.Rows {
		values := []any{row.Key, row.Count, row.LateRatePct,
			cellFloat(row.MeanEDDDelta), cellFloat(row.MedianEDDDelta), cellFloat(row.MeanTotalDays)}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i, err)
		}
	}

	col, _ := excelize.ColumnNumberToName(len(xlsxHeaders))
	return f.SetColWidth(sheet, "A", col, 18)
}

// cellFloat returns nil for a missing value so the cell stays empty.
func cellFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
