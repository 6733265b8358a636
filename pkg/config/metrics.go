package config

import "fmt"

// MetricsConfig controls which collectors are registered and whether a
// standalone /metrics listener is started.
type MetricsConfig struct {
	EnableHTTPMetrics  bool `env:"METRICS_ENABLE_HTTP" yaml:"enable_http_metrics" default:"true"`
	EnableStoreMetrics bool `env:"METRICS_ENABLE_STORE" yaml:"enable_store_metrics" default:"true"`

	// Port is only used when ExposeMetrics is set
	Port          int  `env:"METRICS_PORT" yaml:"port" default:"9090"`
	ExposeMetrics bool `env:"METRICS_EXPOSE" yaml:"expose_metrics" default:"false"`
}

func (m MetricsConfig) Validate() error {
	if m.ExposeMetrics && (m.Port < 1 || m.Port > 65535) {
		return fmt.Errorf("metrics port must be between 1-65535, got %d", m.Port)
	}
	return nil
}
