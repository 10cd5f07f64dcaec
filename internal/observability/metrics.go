// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Extraction metrics
	RowsExtracted     *prometheus.CounterVec
	CacheLookups      *prometheus.CounterVec
	TimestampsClamped *prometheus.CounterVec
	DataAnomalies     *prometheus.CounterVec
	RowsFiltered      prometheus.Counter

	// Analysis metrics
	AnalysisDuration  prometheus.Histogram
	GroupsDropped     *prometheus.CounterVec
	LateRatePct       prometheus.Gauge
	ReportsGenerated  *prometheus.CounterVec
	AggregatesWritten prometheus.Counter

	// Stage metrics
	StageRunsTotal *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec

	// Pipeline metrics
	PipelineRunsTotal *prometheus.CounterVec
	PipelineDuration  prometheus.Histogram
	SuccessRatePct    prometheus.Gauge

	// Notification metrics
	NotificationsSent    prometheus.Counter
	NotificationFailures prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulPipeline prometheus.Gauge
	LastAnalysis           prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith registers the metrics on reg. Tests pass a fresh registry.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "delivery_sla"
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Extraction metrics
		RowsExtracted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "rows_total",
			Help:      "Total number of order item rows loaded by origin",
		}, []string{"origin"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by result (hit, miss, bypass)",
		}, []string{"result"}),
		TimestampsClamped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "timestamps_clamped_total",
			Help:      "Timestamps clamped by the reconciler by field",
		}, []string{"field"}),
		DataAnomalies: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "data_anomalies_total",
			Help:      "Rows flagged as data-quality anomalies by kind",
		}, []string{"kind"}),
		RowsFiltered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "rows_filtered_total",
			Help:      "Rows removed by the global analysis filter",
		}),

		// Analysis metrics
		AnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "SLA analysis duration in seconds",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		}),
		GroupsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "groups_dropped_total",
			Help:      "Groups removed by the minimum support filter by dimension",
		}, []string{"dimension"}),
		LateRatePct: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "late_rate_pct",
			Help:      "Overall late-to-EDD rate of the last analysis",
		}),
		ReportsGenerated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "reports_generated_total",
			Help:      "Total number of reports generated by format",
		}, []string{"format"}),
		AggregatesWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "aggregate_rows_written_total",
			Help:      "Aggregate rows published to the analytics store",
		}),

		// Stage metrics
		StageRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stage",
			Name:      "runs_total",
			Help:      "Stage executions by stage and status",
		}, []string{"stage", "status"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stage",
			Name:      "duration_seconds",
			Help:      "Stage execution duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 900},
		}, []string{"stage"}),

		// Pipeline metrics
		PipelineRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by status",
		}, []string{"status"}),
		PipelineDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Pipeline execution duration in seconds",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		}),
		SuccessRatePct: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "success_rate_pct",
			Help:      "Stage success rate of the last pipeline run",
		}),

		// Notification metrics
		NotificationsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Run summary notifications sent",
		}),
		NotificationFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "failures_total",
			Help:      "Run summary notifications that failed to send",
		}),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulPipeline: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_pipeline_timestamp",
			Help:      "Unix timestamp of last pipeline run without failed stages",
		}),
		LastAnalysis: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_analysis_timestamp",
			Help:      "Unix timestamp of last completed SLA analysis",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordExtract records loaded rows and the cache lookup result.
func RecordExtract(origin, cacheResult string, rows int) {
	DefaultMetrics.RowsExtracted.WithLabelValues(origin).Add(float64(rows))
	DefaultMetrics.CacheLookups.WithLabelValues(cacheResult).Inc()
}

// RecordReconcile records clamp counts and anomalies.
func RecordReconcile(carrierClamped, approvalClamped, deliveredBeforePurchase int) {
	DefaultMetrics.TimestampsClamped.WithLabelValues("carrier").Add(float64(carrierClamped))
	DefaultMetrics.TimestampsClamped.WithLabelValues("approval").Add(float64(approvalClamped))
	DefaultMetrics.DataAnomalies.WithLabelValues("delivered_before_purchase").Add(float64(deliveredBeforePurchase))
}

// RecordFiltered records rows removed by the global filter.
func RecordFiltered(rows int) {
	DefaultMetrics.RowsFiltered.Add(float64(rows))
}

// RecordAnalysis records an analysis pass.
func RecordAnalysis(durationSeconds, lateRatePct float64, droppedByDimension map[string]int, finishedUnix int64) {
	DefaultMetrics.AnalysisDuration.Observe(durationSeconds)
	DefaultMetrics.LateRatePct.Set(lateRatePct)
	for dim, n := range droppedByDimension {
		DefaultMetrics.GroupsDropped.WithLabelValues(dim).Add(float64(n))
	}
	DefaultMetrics.LastAnalysis.Set(float64(finishedUnix))
}

// RecordReport records a generated report artifact.
func RecordReport(format string) {
	DefaultMetrics.ReportsGenerated.WithLabelValues(format).Inc()
}

// RecordAggregatesWritten records published aggregate rows.
func RecordAggregatesWritten(rows int) {
	DefaultMetrics.AggregatesWritten.Add(float64(rows))
}

// RecordStage records one stage execution.
func RecordStage(stage, status string, durationSeconds float64) {
	DefaultMetrics.StageRunsTotal.WithLabelValues(stage, status).Inc()
	DefaultMetrics.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordPipelineRun records a finished pipeline run.
func RecordPipelineRun(status string, successRatePct, durationSeconds float64, finishedUnix int64, anyFailed bool) {
	DefaultMetrics.PipelineRunsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.PipelineDuration.Observe(durationSeconds)
	DefaultMetrics.SuccessRatePct.Set(successRatePct)
	if !anyFailed {
		DefaultMetrics.LastSuccessfulPipeline.Set(float64(finishedUnix))
	}
}

// RecordNotification records a notification attempt.
func RecordNotification(err error) {
	if err != nil {
		DefaultMetrics.NotificationFailures.Inc()
		return
	}
	DefaultMetrics.NotificationsSent.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
