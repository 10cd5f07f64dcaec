package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"delivery-sla-lab/internal/config"
	"delivery-sla-lab/internal/domain"
	"delivery-sla-lab/internal/extract"
	"delivery-sla-lab/internal/pipeline"
	"delivery-sla-lab/internal/toolexec"
)

// Stage names outside the transform models.
const (
	StageExtractLoad = "elt_extract_load"
	StageSLAAnalysis = "sla_analysis"
)

// SLATable is the table the analysis stage publishes to, inside the
// analytics dataset.
const SLATable = "sla_aggregates"

// maxStderr bounds the tool output kept on a failed stage.
const maxStderr = 4096

// Staging, warehouse and analytics models with their upstream stages.
var (
	stagingModels = []model{
		{"stg_orders", []string{StageExtractLoad}},
		{"stg_order_items", []string{StageExtractLoad}},
		{"stg_products", []string{StageExtractLoad}},
		{"stg_order_reviews", []string{StageExtractLoad}},
		{"stg_payments", []string{StageExtractLoad}},
		{"stg_sellers", []string{StageExtractLoad}},
		{"stg_customers", []string{StageExtractLoad}},
		{"stg_product_category_name_translation", []string{StageExtractLoad}},
		{"stg_geolocations", []string{StageExtractLoad, "stg_sellers", "stg_customers"}},
	}

	warehouseModels = []model{
		{"dim_date", []string{StageExtractLoad}},
		{"dim_orders", []string{"stg_orders", "stg_order_items", "stg_customers", "stg_payments", "stg_order_reviews"}},
		{"dim_product", []string{"stg_products", "stg_product_category_name_translation"}},
		{"dim_order_reviews", []string{"stg_order_reviews"}},
		{"dim_payments", []string{"stg_payments"}},
		{"dim_seller", []string{"stg_sellers"}},
		{"dim_customer", []string{"stg_customers"}},
		{"dim_geolocation", []string{"stg_geolocations"}},
		{"fact_order_items", []string{
			"stg_order_items", "dim_orders", "dim_product", "dim_order_reviews",
			"dim_payments", "dim_seller", "dim_customer", "dim_geolocation", "dim_date",
		}},
	}

	analyticsModels = []model{
		{"revenue_analytics_obt", []string{"fact_order_items"}},
		{"orders_analytics_obt", []string{"fact_order_items"}},
		{"delivery_analytics_obt", []string{"fact_order_items", "revenue_analytics_obt"}},
		{"customer_analytics_obt", []string{"fact_order_items", "revenue_analytics_obt"}},
		{"geographic_analytics_obt", []string{"fact_order_items", "revenue_analytics_obt"}},
		{"payment_analytics_obt", []string{"fact_order_items", "revenue_analytics_obt"}},
		{"seller_analytics_obt", []string{"fact_order_items", "revenue_analytics_obt"}},
	}
)

type model struct {
	name string
	deps []string
}

// SLARunner runs one SLA analysis. Implemented by *pipeline.SLAPipeline.
type SLARunner interface {
	Run(ctx context.Context, runID string, opts extract.Options) (*pipeline.Result, error)
}

var _ SLARunner = (*pipeline.SLAPipeline)(nil)

// DefaultGraph builds the ELT, transform and analysis graph from config.
func DefaultGraph(cfg *config.Config, runner toolexec.Runner, sla SLARunner) (*Graph, error) {
	env := cfg.ToolEnv()
	elt := cfg.Tools.ELT
	tr := cfg.Tools.Transform

	stages := []Stage{
		ToolStage(StageExtractLoad, "", nil, runner, toolexec.Command{
			Name:    elt.Command,
			Args:    elt.Args,
			Dir:     elt.Dir,
			Env:     env,
			Timeout: elt.Timeout,
		}, ""),
	}

	layer := func(models []model, dataset string, timeout time.Duration) {
		for _, m := range models {
			cmd := toolexec.Command{
				Name:    tr.Command,
				Args:    append(append([]string(nil), tr.Args...), m.name),
				Dir:     tr.Dir,
				Env:     env,
				Timeout: timeout,
			}
			stages = append(stages, ToolStage(m.name, dataset+"."+m.name, m.deps, runner, cmd, m.name))
		}
	}
	layer(stagingModels, cfg.Warehouse.StagingDataset, tr.StagingTimeout)
	layer(warehouseModels, cfg.Warehouse.WarehouseDataset, tr.WarehouseTimeout)
	layer(analyticsModels, cfg.Warehouse.AnalyticsDataset, tr.AnalyticsTimeout)

	if sla != nil {
		stages = append(stages, AnalysisStage(StageSLAAnalysis, cfg.Warehouse.AnalyticsDataset+"."+SLATable,
			[]string{"fact_order_items"}, sla, extract.Options{}, tr.AnalyticsTimeout))
	}

	return NewGraph(stages...)
}

// ToolStage runs an external command. When confirm is set, a successful run
// whose stdout has no "OK" line naming confirm is recorded as Warned.
func ToolStage(name, table string, deps []string, runner toolexec.Runner, cmd toolexec.Command, confirm string) Stage {
	return Stage{
		Name:    name,
		Table:   table,
		Deps:    deps,
		Timeout: cmd.Timeout,
		Run: func(ctx context.Context, _ string) domain.Outcome {
			res, err := runner.Run(ctx, cmd)
			if err != nil {
				return toolFailure(table, res, err)
			}

			meta := map[string]string{
				"command":   cmd.String(),
				"exit_code": strconv.Itoa(res.ExitCode),
				"duration":  res.Duration.Round(time.Millisecond).String(),
			}
			if confirm != "" && !confirmed(res.Stdout, confirm) {
				return domain.Warned{
					Table:    table,
					Note:     fmt.Sprintf("could not confirm %s creation", confirm),
					Metadata: meta,
				}
			}
			return domain.Succeeded{Table: table, Metadata: meta}
		},
	}
}

// AnalysisStage runs the SLA pipeline in-process. Failed sufficiency checks
// downgrade the outcome to Warned.
func AnalysisStage(name, table string, deps []string, sla SLARunner, opts extract.Options, timeout time.Duration) Stage {
	return Stage{
		Name:    name,
		Table:   table,
		Deps:    deps,
		Timeout: timeout,
		Run: func(ctx context.Context, runID string) domain.Outcome {
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			res, err := sla.Run(ctx, runID, opts)
			if err != nil {
				kind := domain.FailureExecution
				if errors.Is(err, context.DeadlineExceeded) {
					kind = domain.FailureTimeout
				}
				return domain.Failed{Table: table, Kind: kind, Reason: err.Error()}
			}

			if res.Sufficiency != nil && !res.Sufficiency.AllPass {
				var failed []string
				for _, c := range res.Sufficiency.Checks {
					if !c.Pass {
						failed = append(failed, c.Name)
					}
				}
				return domain.Warned{
					Table:    table,
					Note:     "sufficiency checks failed: " + strings.Join(failed, ", "),
					Metadata: res.Metadata(),
				}
			}
			return domain.Succeeded{Table: table, Metadata: res.Metadata()}
		},
	}
}

func toolFailure(table string, res toolexec.Result, err error) domain.Failed {
	f := domain.Failed{
		Table:  table,
		Reason: err.Error(),
		Stderr: tail(res.Stderr, maxStderr),
	}
	switch {
	case errors.Is(err, toolexec.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		f.Kind = domain.FailureTimeout
	case errors.Is(err, toolexec.ErrToolFailed):
		f.Kind = domain.FailureToolError
	default:
		f.Kind = domain.FailureExecution
	}
	return f
}

// confirmed reports whether a line of out names the model and says OK.
func confirmed(out, name string) bool {
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, name) && strings.Contains(line, "OK") {
			return true
		}
	}
	return false
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
