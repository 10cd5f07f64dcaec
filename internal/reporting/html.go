package reporting

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"delivery-sla-lab/internal/domain"
)

var summaryTemplate = template.Must(template.New("summary").Parse(`<html>
<body style="font-family: Arial, sans-serif;">
<h2>Pipeline run {{.Status}}</h2>
<p>Run <code>{{.RunID}}</code> started {{.Started}} and took {{.Duration}}.</p>
<p>{{.Succeeded}} of {{.Total}} stages succeeded ({{.SuccessRate}}), {{.Warned}} with warnings, {{.Failed}} failed.</p>
<table border="1" cellpadding="4" cellspacing="0" style="border-collapse: collapse;">
<tr><th>Stage</th><th>Status</th><th>Duration</th><th>Detail</th></tr>
{{range .Stages}}<tr><td>{{.Stage}}</td><td style="color: {{.Color}};">{{.Status}}</td><td>{{.Duration}}</td><td>{{.Detail}}</td></tr>
{{end}}</table>
{{if .Tables}}<h3>Table row counts</h3>
<table border="1" cellpadding="4" cellspacing="0" style="border-collapse: collapse;">
<tr><th>Table</th><th>Rows</th></tr>
{{range .Tables}}<tr><td>{{.Name}}</td><td>{{.Rows}}</td></tr>
{{end}}</table>{{end}}
</body>
</html>
`))

type summaryView struct {
	Status      domain.RunStatus
	RunID       string
	Started     string
	Duration    string
	Total       int
	Succeeded   int
	Warned      int
	Failed      int
	SuccessRate string
	Stages      []stageView
	Tables      []tableView
}

type stageView struct {
	Stage    string
	Status   domain.StageStatus
	Color    string
	Duration string
	Detail   string
}

type tableView struct {
	Name string
	Rows string
}

// RenderRunSummaryHTML renders the run summary email body. Stage output and
// failure reasons are escaped.
func RenderRunSummaryHTML(s *domain.RunSummary, tableOrder []string) (string, error) {
	view := summaryView{
		Status:      s.Status,
		RunID:       s.RunID,
		Started:     s.StartedAt.UTC().Format(time.RFC3339),
		Duration:    s.Duration().Round(time.Second).String(),
		Total:       s.Total,
		Succeeded:   s.Succeeded,
		Warned:      s.Warned,
		Failed:      s.Failed,
		SuccessRate: printer.Sprintf("%.1f%%", s.SuccessRatePct),
	}

	for _, st := range s.Stages {
		v := stageView{
			Stage:    st.Stage,
			Status:   st.Status(),
			Duration: st.Duration.Round(time.Millisecond).String(),
		}
		switch o := st.Outcome.(type) {
		case domain.Succeeded:
			v.Color = "green"
		case domain.Warned:
			v.Color = "orange"
			v.Detail = o.Note
		case domain.Failed:
			v.Color = "red"
			v.Detail = fmt.Sprintf("%s: %s", o.Kind, o.Reason)
		default:
			v.Color = "red"
		}
		view.Stages = append(view.Stages, v)
	}

	for _, name := range tableOrder {
		n, ok := s.TableCounts[name]
		rows := "n/a"
		if ok {
			rows = printer.Sprintf("%d", n)
		}
		view.Tables = append(view.Tables, tableView{Name: name, Rows: rows})
	}

	var buf bytes.Buffer
	if err := summaryTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render summary: %w", err)
	}
	return buf.String(), nil
}
