package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"tickpulse/internal/errors"
)

// EnvPrefix namespaces every environment variable read by Load
const EnvPrefix = "TICKPULSE"

// Config represents the complete application configuration
type Config struct {
	Pipeline  PipelineConfig  `yaml:"pipeline" envconfig:"PIPELINE"`
	Report    ReportConfig    `yaml:"report" envconfig:"REPORT"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Dashboard DashboardConfig `yaml:"dashboard" envconfig:"DASHBOARD"`
}

// PipelineConfig holds the analytics parameters
type PipelineConfig struct {
	Freq             time.Duration `yaml:"freq" envconfig:"FREQ" validate:"gt=0"`
	Window           int           `yaml:"window" envconfig:"WINDOW" validate:"min=1"`
	Z                float64       `yaml:"z" envconfig:"Z" validate:"gt=0"`
	HoursPerDay      float64       `yaml:"hours_per_day" envconfig:"HOURS_PER_DAY" validate:"gt=0,lte=24"`
	FillEmptyBuckets bool          `yaml:"fill_empty_buckets" envconfig:"FILL_EMPTY_BUCKETS"`
}

// ReportConfig controls where and how the report is written
type ReportConfig struct {
	Output string `yaml:"output" envconfig:"OUTPUT" validate:"required"`
	Format string `yaml:"format" envconfig:"FORMAT" validate:"oneof=xlsx csv"`
	Charts bool   `yaml:"charts" envconfig:"CHARTS"`
	// InputDir and OutputDir bound the paths an HTTP request may name. The
	// CLI takes paths as given.
	InputDir  string `yaml:"input_dir" envconfig:"INPUT_DIR" validate:"required"`
	OutputDir string `yaml:"output_dir" envconfig:"OUTPUT_DIR" validate:"required"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Format      string `yaml:"format" envconfig:"FORMAT"`
	Output      string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

// TelemetryConfig selects the OpenTelemetry exporters
type TelemetryConfig struct {
	ServiceName    string  `yaml:"service_name" envconfig:"SERVICE_NAME" validate:"required"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=stdout none"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER" validate:"oneof=prometheus none"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" validate:"gte=0,lte=1"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int             `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout     time.Duration   `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	ReportTimeout   time.Duration   `yaml:"report_timeout" envconfig:"REPORT_TIMEOUT" validate:"gt=0"`
	AllowedOrigins  []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" validate:"min=1"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" validate:"gte=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" validate:"gte=0"`
}

// DashboardConfig locates the daily OHLCV files served by the dashboard
type DashboardConfig struct {
	DataDir  string `yaml:"data_dir" envconfig:"DATA_DIR" validate:"required"`
	Clusters int    `yaml:"clusters" envconfig:"CLUSTERS" validate:"min=1"`
}

var configLocations = []string{
	"tickpulse.yaml",
	"configs/tickpulse.yaml",
}

// Load builds the configuration from defaults, then an optional YAML file,
// then TICKPULSE_* environment variables. An empty path searches the usual
// locations; a path that does not exist is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	} else if _, err := os.Stat(path); err != nil {
		return nil, errors.NewConfigError("config file not found", err).WithContext("path", path)
	}

	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, errors.NewConfigError("failed to load config from file", err).WithContext("path", path)
		}
	}

	// unset variables leave the current value in place
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, errors.NewConfigError("failed to load config from env", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile overlays the YAML document onto cfg
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func findConfigFile() string {
	for _, location := range configLocations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

var validate = validator.New()

// Validate checks field constraints and normalizes the logging settings
func (c *Config) Validate() error {
	c.Report.Format = strings.ToLower(c.Report.Format)
	c.Logging.Level = strings.ToLower(c.Logging.Level)

	if err := validate.Struct(c); err != nil {
		return errors.NewConfigError("config validation failed", err)
	}

	// logs are always JSON
	c.Logging.Format = "json"
	if c.Logging.Output != "console" && c.Logging.FilePath == "" {
		return errors.NewConfigError(
			fmt.Sprintf("logging output %q requires a file_path", c.Logging.Output), nil)
	}
	return nil
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			Freq:        time.Minute,
			Window:      120,
			Z:           4.0,
			HoursPerDay: 6,
		},
		Report: ReportConfig{
			Output:    "tick_report.xlsx",
			Format:    "xlsx",
			Charts:    true,
			InputDir:  filepath.Join("data", "ticks"),
			OutputDir: "reports",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/tickpulse.log",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "tickpulse",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1.0,
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			ReportTimeout:   10 * time.Minute,
			AllowedOrigins:  []string{"http://localhost:8080"},
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Dashboard: DashboardConfig{
			DataDir:  "data",
			Clusters: 3,
		},
	}
}
