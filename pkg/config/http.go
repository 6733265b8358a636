package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

// HTTPServerConfig holds HTTP server settings
type HTTPServerConfig struct {
	Port                int      `env:"HTTP_PORT" yaml:"port" default:"8080"`
	ReadTimeoutSeconds  int      `env:"HTTP_READ_TIMEOUT_SECONDS" yaml:"read_timeout_seconds" default:"15"`
	WriteTimeoutSeconds int      `env:"HTTP_WRITE_TIMEOUT_SECONDS" yaml:"write_timeout_seconds" default:"15"`
	IdleTimeoutSeconds  int      `env:"HTTP_IDLE_TIMEOUT_SECONDS" yaml:"idle_timeout_seconds" default:"60"`
	MaxBodyBytes        int64    `env:"HTTP_MAX_BODY_BYTES" yaml:"max_body_bytes" default:"4194304"`
	AllowedOrigins      []string `env:"HTTP_ALLOWED_ORIGINS" yaml:"allowed_origins" default:"*"`
}

// Validate checks port range and body limit
func (h HTTPServerConfig) Validate() error {
	var result error
	if h.Port < 1 || h.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("http port must be between 1-65535, got %d", h.Port))
	}
	if h.MaxBodyBytes <= 0 {
		result = multierror.Append(result, fmt.Errorf("max_body_bytes must be positive, got %d", h.MaxBodyBytes))
	}
	return result
}

func (h HTTPServerConfig) ReadTimeout() time.Duration {
	return time.Duration(h.ReadTimeoutSeconds) * time.Second
}

func (h HTTPServerConfig) WriteTimeout() time.Duration {
	return time.Duration(h.WriteTimeoutSeconds) * time.Second
}

func (h HTTPServerConfig) IdleTimeout() time.Duration {
	return time.Duration(h.IdleTimeoutSeconds) * time.Second
}

// Addr returns the listen address for the server
func (h HTTPServerConfig) Addr() string {
	return fmt.Sprintf(":%d", h.Port)
}
