package config

import (
	"time"

	pkgconfig "github.com/lewisedginton/ctfd_announcer/pkg/config"
)

// MonitoringConfig holds ops server configuration
type MonitoringConfig struct {
	Enabled            bool          `env:"MONITORING_ENABLED" yaml:"enabled" default:"true"`
	HealthCheckTimeout time.Duration `env:"HEALTH_CHECK_TIMEOUT" yaml:"health_check_timeout" default:"10s"`
	FailureThreshold   int           `env:"HEALTH_FAILURE_THRESHOLD" yaml:"failure_threshold" default:"3"`
	MetricsEnabled     bool          `env:"METRICS_ENABLED" yaml:"metrics_enabled" default:"true"`

	HTTP pkgconfig.HTTPServerConfig `yaml:"http"`
}
