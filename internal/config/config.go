package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when the loaded configuration fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// Date layout used for epoch settings.
const DateLayout = "2006-01-02"

var validate = validator.New()

// Config is the single configuration object threaded through every stage.
type Config struct {
	Warehouse Warehouse `yaml:"warehouse"`
	Ledger    Ledger    `yaml:"ledger"`
	Analysis  Analysis  `yaml:"analysis"`
	Tools     Tools     `yaml:"tools"`
	Notify    Notify    `yaml:"notify"`
	Schedule  Schedule  `yaml:"schedule"`
	Server    Server    `yaml:"server"`
}

// Warehouse names the warehouse connection and the datasets of each layer.
type Warehouse struct {
	DSN              string `yaml:"dsn"`
	ProjectID        string `yaml:"project_id" validate:"required"`
	RawDataset       string `yaml:"raw_dataset" validate:"required"`
	StagingDataset   string `yaml:"staging_dataset" validate:"required"`
	WarehouseDataset string `yaml:"warehouse_dataset" validate:"required"`
	AnalyticsDataset string `yaml:"analytics_dataset" validate:"required"`
}

// Ledger is the Postgres run ledger. Empty DSN means in-memory.
type Ledger struct {
	DSN string `yaml:"dsn"`
}

// Analysis configures the SLA analysis engine.
type Analysis struct {
	OutputDir         string         `yaml:"output_dir" validate:"required"`
	CacheEnabled      bool           `yaml:"cache_enabled"`
	ExtractSince      string         `yaml:"extract_since" validate:"required,datetime=2006-01-02"`
	GlobalFilterSince string         `yaml:"global_filter_since" validate:"required,datetime=2006-01-02"`
	Binning           string         `yaml:"binning" validate:"oneof=fixed kmeans"`
	KMeans            KMeans         `yaml:"kmeans"`
	MinSupport        map[string]int `yaml:"min_support" validate:"dive,gte=0"`
	MinItems          int            `yaml:"min_items" validate:"gte=0"` // 0 keeps the built-in threshold
}

// KMeans configures clustering-based binning.
type KMeans struct {
	K       int   `yaml:"k" validate:"gte=2"`
	Seed    int64 `yaml:"seed"`
	NInit   int   `yaml:"n_init" validate:"gte=1"`
	MaxIter int   `yaml:"max_iter" validate:"gte=1"`
}

// Tools configures the external ELT and SQL-transform tools.
type Tools struct {
	Concurrency int       `yaml:"concurrency" validate:"gte=1"`
	ELT         Tool      `yaml:"elt"`
	Transform   Transform `yaml:"transform"`
}

// Tool is one external command.
type Tool struct {
	Command string        `yaml:"command" validate:"required"`
	Args    []string      `yaml:"args"`
	Dir     string        `yaml:"dir"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

// Transform is the SQL-transform tool, invoked once per model.
type Transform struct {
	Command          string        `yaml:"command" validate:"required"`
	Args             []string      `yaml:"args"` // model selector is appended
	Dir              string        `yaml:"dir"`
	StagingTimeout   time.Duration `yaml:"staging_timeout" validate:"gt=0"`
	WarehouseTimeout time.Duration `yaml:"warehouse_timeout" validate:"gt=0"`
	AnalyticsTimeout time.Duration `yaml:"analytics_timeout" validate:"gt=0"`
}

// Notify configures the run summary email.
type Notify struct {
	Endpoint   string        `yaml:"endpoint" validate:"omitempty,url"`
	APIKey     string        `yaml:"api_key"`
	Sender     string        `yaml:"sender" validate:"omitempty,email"`
	Recipients []string      `yaml:"recipients" validate:"dive,email"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Enabled reports whether email delivery is fully configured.
func (n Notify) Enabled() bool {
	return n.APIKey != "" && n.Sender != "" && len(n.Recipients) > 0
}

// Schedule configures the daily run.
type Schedule struct {
	DailyAt string `yaml:"daily_at" validate:"required,datetime=15:04"`
	Skip    bool   `yaml:"skip"` // register the schedule but never fire
}

// Server configures the HTTP endpoints.
type Server struct {
	Addr string `yaml:"addr" validate:"required"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Warehouse: Warehouse{
			ProjectID:        "olist",
			RawDataset:       "olist_raw",
			StagingDataset:   "olist_data_staging",
			WarehouseDataset: "olist_data_warehouse",
			AnalyticsDataset: "olist_analytics",
		},
		Analysis: Analysis{
			OutputDir:         "outputs",
			CacheEnabled:      true,
			ExtractSince:      "2016-01-01",
			GlobalFilterSince: "2017-01-01",
			Binning:           "fixed",
			KMeans:            KMeans{K: 5, Seed: 42, NInit: 10, MaxIter: 300},
			MinSupport:        DefaultMinSupport(),
		},
		Tools: Tools{
			Concurrency: 4,
			ELT: Tool{
				Command: "meltano",
				Args:    []string{"run", "tap-postgres", "target-clickhouse"},
				Timeout: 900 * time.Second,
			},
			Transform: Transform{
				Command:          "dbt",
				Args:             []string{"run", "--select"},
				StagingTimeout:   300 * time.Second,
				WarehouseTimeout: 600 * time.Second,
				AnalyticsTimeout: 600 * time.Second,
			},
		},
		Notify: Notify{
			Endpoint: "https://api.sendgrid.com/v3/mail/send",
			Timeout:  30 * time.Second,
		},
		Schedule: Schedule{DailyAt: "01:00"},
		Server:   Server{Addr: ":8080"},
	}
}

// DefaultMinSupport returns the minimum group size per dimension.
func DefaultMinSupport() map[string]int {
	return map[string]int{
		"customer_state":   100,
		"product_category": 100,
		"day_of_week":      100,
		"order_month":      100,
		"year_month":       1,
		"price_bin":        10,
		"distance_bin":     50,
	}
}

// Load reads a YAML config file on top of Default, applies env overrides and validates.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides secrets and DSNs from the environment.
func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("CLICKHOUSE_DSN"); v != "" {
		c.Warehouse.DSN = v
	}
	if v := getenv("POSTGRES_DSN"); v != "" {
		c.Ledger.DSN = v
	}
	if v := getenv("SENDGRID_API_KEY"); v != "" {
		c.Notify.APIKey = v
	}
	if v := getenv("SENDER_EMAIL"); v != "" {
		c.Notify.Sender = v
	}
	if v := getenv("RECIPIENT_EMAILS"); v != "" {
		var recipients []string
		for _, r := range strings.Split(v, ",") {
			if r = strings.TrimSpace(r); r != "" {
				recipients = append(recipients, r)
			}
		}
		c.Notify.Recipients = recipients
	}
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ExtractSinceTime returns the raw extraction epoch (UTC).
func (a Analysis) ExtractSinceTime() time.Time {
	t, _ := time.ParseInLocation(DateLayout, a.ExtractSince, time.UTC)
	return t
}

// GlobalFilterTime returns the global filter epoch (UTC).
func (a Analysis) GlobalFilterTime() time.Time {
	t, _ := time.ParseInLocation(DateLayout, a.GlobalFilterSince, time.UTC)
	return t
}

// MinSupportFor returns the configured minimum support for a dimension.
// Unknown dimensions default to 1.
func (a Analysis) MinSupportFor(dimension string) int {
	if n, ok := a.MinSupport[dimension]; ok {
		return n
	}
	if n, ok := DefaultMinSupport()[dimension]; ok {
		return n
	}
	return 1
}

// DailyAtUTC returns the hour and minute of the daily schedule.
func (s Schedule) DailyAtUTC() (int, int) {
	t, err := time.Parse("15:04", s.DailyAt)
	if err != nil {
		return 1, 0
	}
	return t.Hour(), t.Minute()
}

// ToolEnv returns the environment passed to external tools so they resolve
// the same datasets as the analysis engine.
func (c *Config) ToolEnv() []string {
	return []string{
		"BQ_PROJECT_ID=" + c.Warehouse.ProjectID,
		"TARGET_RAW_DATASET=" + c.Warehouse.RawDataset,
		"TARGET_STAGING_DATASET=" + c.Warehouse.StagingDataset,
		"TARGET_BIGQUERY_DATASET=" + c.Warehouse.WarehouseDataset,
		"TARGET_ANALYTICAL_DATASET=" + c.Warehouse.AnalyticsDataset,
	}
}
