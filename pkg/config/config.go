package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for sheetline-engine.
// Configuration can come from YAML file (config.yaml) or environment
// variables. Environment variables always override YAML values. Secrets
// (catalog password) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8090"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Analysis pipeline configuration
	Analysis AnalysisConfig `yaml:"analysis"`

	// Target catalog configuration
	Catalog CatalogConfig `yaml:"catalog"`
}

// AnalysisConfig tunes the sheet analysis pipeline.
type AnalysisConfig struct {
	// Workers is the analysis worker pool size. Similarity matrix requests
	// are always serialized regardless of this value.
	Workers int `yaml:"workers" env:"ANALYSIS_WORKERS" env-default:"4"`

	// TopN is how many ranked suggestions to keep per sheet and per header.
	TopN int `yaml:"top_n" env:"ANALYSIS_TOP_N" env-default:"3"`

	// ChunkSize is how many source names a similarity matrix task scores
	// between cancellation checks.
	ChunkSize int `yaml:"chunk_size" env:"ANALYSIS_CHUNK_SIZE" env-default:"50"`

	// SampleRows caps how many data rows are read per sheet for type
	// inference and content scoring.
	SampleRows int `yaml:"sample_rows" env:"ANALYSIS_SAMPLE_ROWS" env-default:"20"`

	// DigitPrefix is prepended to digit-led column identifiers.
	DigitPrefix string `yaml:"digit_prefix" env:"ANALYSIS_DIGIT_PREFIX" env-default:"n_"`
}

// CatalogConfig holds the connection settings for the database whose schema
// sheets are imported into.
type CatalogConfig struct {
	Driver         string `yaml:"driver" env:"CATALOG_DRIVER" env-default:"postgres"`
	Host           string `yaml:"host" env:"CATALOG_HOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"CATALOG_PORT" env-default:"5432"`
	User           string `yaml:"user" env:"CATALOG_USER" env-default:"sheetline"`
	Password       string `yaml:"-" env:"CATALOG_PASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"CATALOG_DATABASE" env-default:"sheetline"`
	Schema         string `yaml:"schema" env:"CATALOG_SCHEMA" env-default:"public"`
	SSLMode        string `yaml:"ssl_mode" env:"CATALOG_SSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"CATALOG_MAX_CONNECTIONS" env-default:"10"`
}

// SupportedDrivers lists the catalog drivers the engine can talk to.
var SupportedDrivers = []string{"postgres", "mssql"}

// Load reads configuration from config.yaml with environment variable
// overrides. When no config.yaml exists, configuration comes from the
// environment alone. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if !driverSupported(c.Catalog.Driver) {
		return fmt.Errorf("unsupported catalog driver %q (supported: %v)", c.Catalog.Driver, SupportedDrivers)
	}
	if c.Analysis.Workers < 1 {
		return fmt.Errorf("analysis workers must be at least 1, got %d", c.Analysis.Workers)
	}
	if c.Analysis.TopN < 1 {
		return fmt.Errorf("analysis top_n must be at least 1, got %d", c.Analysis.TopN)
	}
	if c.Analysis.ChunkSize < 1 {
		return fmt.Errorf("analysis chunk_size must be at least 1, got %d", c.Analysis.ChunkSize)
	}
	if c.Analysis.SampleRows < 1 {
		return fmt.Errorf("analysis sample_rows must be at least 1, got %d", c.Analysis.SampleRows)
	}
	return nil
}

func driverSupported(driver string) bool {
	for _, d := range SupportedDrivers {
		if d == driver {
			return true
		}
	}
	return false
}

// ConnectionString returns the driver-appropriate connection string.
func (c *CatalogConfig) ConnectionString() string {
	switch c.Driver {
	case "mssql":
		return fmt.Sprintf(
			"server=%s;port=%d;user id=%s;password=%s;database=%s",
			c.Host, c.Port, c.User, c.Password, c.Database,
		)
	default:
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
		)
	}
}
