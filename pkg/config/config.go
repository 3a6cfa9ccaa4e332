package config

import (
	"fmt"
	"time"

	"github.com/horecaops/backoffice/pkg/db"
	"github.com/horecaops/backoffice/pkg/observability"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable name
const Prefix = "horeca"

// EnvSpec is the raw environment the binary reads
type EnvSpec struct {
	DatabaseURL       string        `envconfig:"database_url" required:"true"`
	DBMaxConns        int           `envconfig:"db_max_conns" default:"25"`
	DBMinConns        int           `envconfig:"db_min_conns" default:"2"`
	DBConnTimeout     time.Duration `envconfig:"db_conn_timeout" default:"5s"`
	DBConnMaxLifetime time.Duration `envconfig:"db_conn_max_lifetime" default:"1h"`
	DBConnMaxIdleTime time.Duration `envconfig:"db_conn_max_idle_time" default:"30m"`

	LogLevel string `envconfig:"log_level" default:"info"`

	MetricsEnabled bool `envconfig:"metrics_enabled" default:"true"`

	OtelEnabled        bool    `envconfig:"otel_enabled" default:"false"`
	OtelEndpoint       string  `envconfig:"otel_endpoint" default:"localhost:4317"`
	OtelServiceName    string  `envconfig:"otel_service_name" default:"horeca-access"`
	OtelServiceVersion string  `envconfig:"otel_service_version" default:"1.0.0"`
	OtelInsecure       bool    `envconfig:"otel_insecure" default:"true"`
	OtelSampleRatio    float64 `envconfig:"otel_sample_ratio" default:"1"`

	MenuRegistryPath string `envconfig:"menu_registry_path"`
	AuditEnabled     bool   `envconfig:"audit_enabled" default:"true"`
}

// Config holds all application configuration
type Config struct {
	Database      db.ConnectionConfig
	Observability ObservabilityConfig

	// MenuRegistryPath overrides the built-in menu when set
	MenuRegistryPath string
	AuditEnabled     bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
	OTel           observability.OTelConfig
}

// Load reads configuration from HORECA_* environment variables
func Load() (*Config, error) {
	var spec EnvSpec
	if err := envconfig.Process(Prefix, &spec); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg, err := FromSpec(spec)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// FromSpec converts the raw environment into a Config
func FromSpec(spec EnvSpec) (*Config, error) {
	level, err := observability.ParseLevel(spec.LogLevel)
	if err != nil {
		return nil, err
	}

	return &Config{
		Database: db.ConnectionConfig{
			URL:         spec.DatabaseURL,
			MaxConns:    spec.DBMaxConns,
			MinConns:    spec.DBMinConns,
			Timeout:     spec.DBConnTimeout,
			MaxLifetime: spec.DBConnMaxLifetime,
			MaxIdleTime: spec.DBConnMaxIdleTime,
		},
		Observability: ObservabilityConfig{
			LogLevel:       level,
			MetricsEnabled: spec.MetricsEnabled,
			OTel: observability.OTelConfig{
				Enabled:        spec.OtelEnabled,
				Endpoint:       spec.OtelEndpoint,
				ServiceName:    spec.OtelServiceName,
				ServiceVersion: spec.OtelServiceVersion,
				Insecure:       spec.OtelInsecure,
				SampleRatio:    spec.OtelSampleRatio,
			},
		},
		MenuRegistryPath: spec.MenuRegistryPath,
		AuditEnabled:     spec.AuditEnabled,
	}, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.Database.MaxConns <= 0 {
		return fmt.Errorf("database max connections must be positive")
	}
	if c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database min connections must be between 0 and %d", c.Database.MaxConns)
	}

	if c.Observability.OTel.Enabled {
		if c.Observability.OTel.Endpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTel.ServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if r := c.Observability.OTel.SampleRatio; r < 0 || r > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1, got %g", r)
		}
	}

	return nil
}
