package config

import (
	"fmt"
	"slices"
	"strings"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

// CommonConfig holds settings shared by every entrypoint
type CommonConfig struct {
	// LogLevel is one of debug, info, warn, error
	LogLevel string `env:"LOG_LEVEL" yaml:"log_level" default:"info"`

	// LogFormat is either json or text
	LogFormat string `env:"LOG_FORMAT" yaml:"log_format" default:"json"`
}

// Validate checks CommonConfig for a known log level and format
func (c CommonConfig) Validate() error {
	if !slices.Contains(validLogLevels, strings.ToLower(c.LogLevel)) {
		return fmt.Errorf("log_level must be one of %v, got %q", validLogLevels, c.LogLevel)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("log_format must be json or text, got %q", c.LogFormat)
	}
	return nil
}
