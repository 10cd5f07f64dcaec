package reporting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"delivery-sla-lab/internal/domain"
	"delivery-sla-lab/internal/observability"
	"delivery-sla-lab/internal/storage"
)

// Output file names under the output directory.
const (
	MarkdownFile = "sla_report.md"
	WorkbookFile = "sla_report.xlsx"
	csvPrefix    = "sla_"
)

// Files lists the artifacts written for one report.
type Files struct {
	Markdown string
	Workbook string
	CSV      []string
}

// WriteAll writes the markdown report, one CSV per aggregate table and the workbook.
func WriteAll(dir string, r *Report) (Files, error) {
	var files Files
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return files, fmt.Errorf("create output dir: %w", err)
	}

	files.Markdown = filepath.Join(dir, MarkdownFile)
	if err := os.WriteFile(files.Markdown, []byte(RenderMarkdown(r)), 0o644); err != nil {
		return files, fmt.Errorf("write markdown: %w", err)
	}
	observability.RecordReport("markdown")

	if r.Analysis != nil {
		for _, t := range r.Analysis.Tables() {
			if t == nil {
				continue
			}
			path, err := writeCSVFile(dir, t)
			if err != nil {
				return files, err
			}
			files.CSV = append(files.CSV, path)
			observability.RecordReport("csv")
		}
	}

	files.Workbook = filepath.Join(dir, WorkbookFile)
	if err := WriteXLSX(files.Workbook, r); err != nil {
		return files, err
	}
	observability.RecordReport("xlsx")

	return files, nil
}

func writeCSVFile(dir string, t *domain.AggregateTable) (string, error) {
	path := filepath.Join(dir, csvPrefix+string(t.Dimension)+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteCSV(f, t); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return path, nil
}

// Publish writes the non-empty aggregate tables of a run to the analytics store.
// Returns the number of rows written.
func Publish(ctx context.Context, store storage.AnalyticsStore, runID string, computedAt time.Time, a *domain.Analysis) (int, error) {
	if a == nil {
		return 0, nil
	}
	var tables []*domain.AggregateTable
	rows := 0
	for _, t := range a.Tables() {
		if t.Empty() {
			continue
		}
		tables = append(tables, t)
		rows += len(t.Rows)
	}
	if len(tables) == 0 {
		return 0, nil
	}
	if err := store.WriteAggregates(ctx, runID, computedAt, tables); err != nil {
		return 0, fmt.Errorf("publish aggregates: %w", err)
	}
	observability.RecordAggregatesWritten(rows)
	return rows, nil
}
