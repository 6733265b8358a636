package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// DatabaseConfig holds Postgres connection settings for the postgres
// storage backend.
type DatabaseConfig struct {
	// URL takes precedence over the individual components when set
	URL string `env:"DATABASE_URL" yaml:"url"`

	Host     string `env:"DB_HOST" yaml:"host" default:"localhost"`
	Port     int    `env:"DB_PORT" yaml:"port" default:"5432"`
	Database string `env:"DB_NAME" yaml:"database" default:"npc_registry"`
	Username string `env:"DB_USER" yaml:"username" default:"postgres"`
	Password string `env:"DB_PASSWORD" yaml:"password" default:"postgres"`
	SSLMode  string `env:"DB_SSLMODE" yaml:"sslmode" default:"disable"`

	MaxConnections int           `env:"DB_MAX_CONNECTIONS" yaml:"max_connections" default:"10"`
	MinConnections int           `env:"DB_MIN_CONNECTIONS" yaml:"min_connections" default:"1"`
	MaxIdleTime    time.Duration `env:"DB_MAX_IDLE_TIME" yaml:"max_idle_time" default:"5m"`
	ConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" yaml:"connect_timeout" default:"10s"`
	RunMigrations  bool          `env:"DB_RUN_MIGRATIONS" yaml:"run_migrations" default:"true"`
}

// ConnectionString returns the bare postgres URL
func (d DatabaseConfig) ConnectionString() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.Username, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     d.Database,
		RawQuery: "sslmode=" + d.SSLMode,
	}
	return u.String()
}

// PoolConnectionString appends pgxpool settings to ConnectionString.
func (d DatabaseConfig) PoolConnectionString() string {
	base := d.ConnectionString()
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	params := url.Values{}
	params.Set("pool_max_conns", strconv.Itoa(d.MaxConnections))
	params.Set("pool_min_conns", strconv.Itoa(d.MinConnections))
	params.Set("pool_max_conn_idle_time", d.MaxIdleTime.String())
	params.Set("connect_timeout", strconv.Itoa(int(d.ConnectTimeout.Seconds())))
	return base + sep + params.Encode()
}

func (d DatabaseConfig) Validate() error {
	var result error
	if d.URL == "" {
		if d.Host == "" {
			result = multierror.Append(result, fmt.Errorf("database host is required"))
		}
		if d.Port < 1 || d.Port > 65535 {
			result = multierror.Append(result, fmt.Errorf("database port must be between 1-65535, got %d", d.Port))
		}
		if d.Database == "" {
			result = multierror.Append(result, fmt.Errorf("database name is required"))
		}
	}
	if d.MaxConnections < 1 {
		result = multierror.Append(result, fmt.Errorf("max_connections must be positive, got %d", d.MaxConnections))
	}
	if d.MinConnections > d.MaxConnections {
		result = multierror.Append(result, fmt.Errorf("min_connections (%d) cannot exceed max_connections (%d)", d.MinConnections, d.MaxConnections))
	}
	return result
}
