package reporting

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"delivery-sla-lab/internal/domain"
)

var csvHeader = []string{
	"dimension", "group", "item_count", "late_rate_pct",
	"mean_edd_delta", "median_edd_delta", "mean_total_days", "min_support",
}

// WriteCSV writes one aggregate table. An empty table yields only the header.
func WriteCSV(w io.Writer, t *domain.AggregateTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if !t.Empty() {
		for _, row := range t.Rows {
			record := []string{
				string(t.Dimension),
				row.Key,
				strconv.Itoa(row.Count),
				strconv.FormatFloat(row.LateRatePct, 'f', 6, 64),
				csvFloat(row.MeanEDDDelta),
				csvFloat(row.MedianEDDDelta),
				csvFloat(row.MeanTotalDays),
				strconv.Itoa(t.MinSupport),
			}
			if err := cw.Write(record); err != nil {
				return fmt.Errorf("write row %s: %w", row.Key, err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// RenderCSV renders an aggregate table as CSV string.
func RenderCSV(t *domain.AggregateTable) string {
	var sb strings.Builder
	_ = WriteCSV(&sb, t)
	return sb.String()
}

func csvFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 6, 64)
}
