// Package config holds the application configuration of the registry.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	pkgconfig "github.com/lewisedginton/npc_registry/pkg/config"
	"github.com/lewisedginton/npc_registry/pkg/logger"
)

// AppConfig holds all application configuration
type AppConfig struct {
	ServiceName string `env:"SERVICE_NAME" yaml:"service_name" default:"npc-registry"`
	Version     string `env:"VERSION" yaml:"version" default:"dev"`
	Environment string `env:"ENVIRONMENT" yaml:"environment" default:"development"`

	Common     pkgconfig.CommonConfig     `yaml:",inline"`
	HTTP       pkgconfig.HTTPServerConfig `yaml:"http"`
	Metrics    pkgconfig.MetricsConfig    `yaml:"metrics"`
	Database   pkgconfig.DatabaseConfig   `yaml:"database"`
	Storage    StorageConfig              `yaml:"storage"`
	Extraction ExtractionConfig           `yaml:"extraction"`

	HealthCheckTimeout time.Duration `env:"HEALTH_CHECK_TIMEOUT" yaml:"health_check_timeout" default:"5s"`
}

// Load reads path (optional) and the environment into a validated AppConfig
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := pkgconfig.GetConfig(&cfg, path, false); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the configuration and returns every problem found
func (c AppConfig) Validate() error {
	var result error
	for _, v := range []pkgconfig.Validator{c.Common, c.HTTP, c.Metrics, c.Storage, c.Extraction} {
		if err := v.Validate(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if c.Storage.Backend == BackendPostgres {
		if err := c.Database.Validate(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if c.HealthCheckTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("health_check_timeout must be greater than 0"))
	}
	return result
}

// LogLevel returns the parsed logger level
func (c AppConfig) LogLevel() logger.Level {
	return logger.ParseLevel(c.Common.LogLevel)
}

// IsProduction returns true if running in production environment
func (c AppConfig) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// LogConfig logs the current configuration (without sensitive data)
func (c AppConfig) LogConfig(log logger.Logger) {
	log.Info("Application configuration loaded",
		logger.StringField("service_name", c.ServiceName),
		logger.StringField("version", c.Version),
		logger.StringField("environment", c.Environment),
		logger.IntField("http_port", c.HTTP.Port),
		logger.StringField("log_level", c.Common.LogLevel),
		logger.StringField("storage_backend", c.Storage.Backend),
		logger.StringField("position_prefix", c.Extraction.PositionPrefix),
		logger.IntField("name_fields", len(c.Extraction.NameFields)),
		logger.BoolField("metrics_exposed", c.Metrics.ExposeMetrics),
	)
}

// ExtractionConfig controls payload parsing and the identity document layout
type ExtractionConfig struct {
	// PositionPrefix is the literal part of slot tokens such as "npc0"
	PositionPrefix string `env:"EXTRACTION_POSITION_PREFIX" yaml:"position_prefix" default:"npc"`

	NameFields []string `env:"EXTRACTION_NAME_FIELDS" yaml:"name_fields" default:"name,姓名,名字,名称,nombre,nom,nome,имя,名前"`

	PlaceholderLabel string `env:"EXTRACTION_PLACEHOLDER_LABEL" yaml:"placeholder_label" default:"Unnamed NPC"`

	// InteractionPath is a gjson path into the turn payload
	InteractionPath string `env:"EXTRACTION_INTERACTION_PATH" yaml:"interaction_path" default:"interaction"`

	DocumentKey string `env:"EXTRACTION_DOCUMENT_KEY" yaml:"document_key" default:"npcs"`
	LegacyKey   string `env:"EXTRACTION_LEGACY_KEY" yaml:"legacy_key" default:"npc_registry"`
}

func (e ExtractionConfig) Validate() error {
	var result error
	if e.PositionPrefix == "" || strings.ContainsAny(e.PositionPrefix, ". ") {
		result = multierror.Append(result, fmt.Errorf("position_prefix must be non-empty without dots or spaces, got %q", e.PositionPrefix))
	}
	if !slices.ContainsFunc(e.NameFields, func(s string) bool { return strings.TrimSpace(s) != "" }) {
		result = multierror.Append(result, fmt.Errorf("name_fields needs at least one entry"))
	}
	if strings.TrimSpace(e.DocumentKey) == "" || strings.Contains(e.DocumentKey, "/") {
		result = multierror.Append(result, fmt.Errorf("document_key must be a plain name, got %q", e.DocumentKey))
	}
	if e.LegacyKey == e.DocumentKey {
		result = multierror.Append(result, fmt.Errorf("legacy_key must differ from document_key"))
	}
	return result
}
