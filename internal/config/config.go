// Package config defines the announcer's application configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/lewisedginton/ctfd_announcer/internal/ledger"
	pkgconfig "github.com/lewisedginton/ctfd_announcer/pkg/config"
	"github.com/lewisedginton/ctfd_announcer/pkg/logger"
)

// Chat platforms
const (
	PlatformSlack    = "slack"
	PlatformTelegram = "telegram"
)

// AppConfig holds all application configuration
type AppConfig struct {
	ServiceName string `env:"SERVICE_NAME" yaml:"service_name" default:"ctfd-announcer"`
	Version     string `env:"VERSION" yaml:"version" default:"dev"`

	CTFd       CTFdConfig       `yaml:"ctfd"`
	Announce   AnnounceConfig   `yaml:"announce"`
	Chat       ChatConfig       `yaml:"chat"`
	Slack      SlackConfig      `yaml:"slack"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Logging    LoggingConfig    `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// Validate validates the configuration and returns an error if invalid
func (c *AppConfig) Validate() error {
	var result error

	if err := c.Logging.Validate(); err != nil {
		result = multierror.Append(result, err)
	}

	if c.CTFd.Timeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("ctfd_timeout must be greater than 0"))
	}
	// zero turns rate limiting off
	if c.CTFd.RateLimit < 0 {
		result = multierror.Append(result, fmt.Errorf("ctfd_rate_limit must not be negative"))
	}
	if c.Announce.PollInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("poll_interval must be greater than 0"))
	}

	switch c.Chat.Platform {
	case PlatformSlack:
		if !c.Slack.Enabled() {
			result = multierror.Append(result, fmt.Errorf("SLACK_BOT_TOKEN and SLACK_APP_TOKEN are required for the slack platform"))
		}
	case PlatformTelegram:
		if !c.Telegram.Enabled() {
			result = multierror.Append(result, fmt.Errorf("TELEGRAM_BOT_TOKEN is required for the telegram platform"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("chat_platform must be either 'slack' or 'telegram', got %q", c.Chat.Platform))
	}

	if err := c.Ledger.Validate(); err != nil {
		result = multierror.Append(result, err)
	}

	if c.Monitoring.Enabled {
		if err := c.Monitoring.HTTP.Validate(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result
}

// GetLogLevel returns the parsed logger level
func (c *AppConfig) GetLogLevel() logger.Level {
	return logger.ParseLevel(c.Logging.LogLevel)
}

// LedgerStoreConfig converts the ledger settings for ledger.NewStore.
func (c *AppConfig) LedgerStoreConfig() ledger.Config {
	l := c.Ledger
	cfg := ledger.Config{
		Backend:   l.Backend,
		Path:      l.Path,
		RedisURL:  l.RedisURL,
		RedisKey:  l.RedisKey,
		S3Bucket:  l.S3Bucket,
		S3Prefix:  l.S3Prefix,
		S3Region:  l.S3Region,
		S3Profile: l.S3Profile,
	}
	if l.Backend == ledger.BackendPostgres {
		cfg.DatabaseURL = l.Postgres.PoolDSN()
	}
	return cfg
}

// LogConfig logs the current configuration (without sensitive data)
func (c *AppConfig) LogConfig(log logger.Logger) {
	log.Info("Application configuration loaded",
		logger.StringField("service_name", c.ServiceName),
		logger.StringField("version", c.Version),
		logger.StringField("ctfd_url", c.CTFd.URL),
		logger.StringField("ctfd_api_key", MaskSecret(c.CTFd.APIKey)),
		logger.DurationField("ctfd_timeout", c.CTFd.Timeout),
		logger.StringField("announce_channel_id", c.Announce.ChannelID),
		logger.DurationField("poll_interval", c.Announce.PollInterval),
		logger.StringField("chat_platform", c.Chat.Platform),
		logger.StringField("ledger_backend", c.Ledger.Backend),
		logger.StringField("log_level", c.Logging.LogLevel),
		logger.StringField("log_format", c.Logging.LogFormat),
		logger.BoolField("monitoring_enabled", c.Monitoring.Enabled),
		logger.IntField("monitoring_port", c.Monitoring.HTTP.Port),
	)
}

// MaskSecret keeps the first four characters of a secret.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", 8)
}

// CTFdConfig holds the scoring platform connection settings
type CTFdConfig struct {
	URL        string        `env:"CTFD_URL" yaml:"url" required:"true"`
	APIKey     string        `env:"CTFD_API_KEY" yaml:"api_key" required:"true"`
	AuthScheme string        `env:"CTFD_AUTH_SCHEME" yaml:"auth_scheme" default:"Token"`
	Timeout    time.Duration `env:"CTFD_TIMEOUT" yaml:"timeout" default:"10s"`
	RateLimit  float64       `env:"CTFD_RATE_LIMIT" yaml:"rate_limit" default:"10"`
	Burst      int           `env:"CTFD_BURST" yaml:"burst" default:"5"`
}

// AnnounceConfig holds first-blood announcement settings
type AnnounceConfig struct {
	ChannelID    string        `env:"ANNOUNCE_CHANNEL_ID" yaml:"channel_id" required:"true"`
	PollInterval time.Duration `env:"POLL_INTERVAL" yaml:"poll_interval" default:"30s"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	pkgconfig.CommonConfig `yaml:",inline"`
}

// Load reads the configuration from path (optional) and the environment.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := pkgconfig.GetConfig(&cfg, path, false); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LedgerOnlyConfig is the subset needed by the ledger maintenance commands.
type LedgerOnlyConfig struct {
	Ledger  LedgerConfig  `yaml:"ledger"`
	Logging LoggingConfig `yaml:"logging"`
}

// Validate implements pkgconfig.Validator.
func (c *LedgerOnlyConfig) Validate() error {
	var result error
	if err := c.Logging.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := c.Ledger.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	return result
}

// StoreConfig converts the ledger settings for ledger.NewStore.
func (c *LedgerOnlyConfig) StoreConfig() ledger.Config {
	app := AppConfig{Ledger: c.Ledger}
	return app.LedgerStoreConfig()
}

// LoadLedgerOnly reads just the ledger and logging settings.
func LoadLedgerOnly(path string) (*LedgerOnlyConfig, error) {
	var cfg LedgerOnlyConfig
	if err := pkgconfig.GetConfig(&cfg, path, false); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// CheckConfig is the subset needed by the connectivity check.
type CheckConfig struct {
	CTFd    CTFdConfig    `yaml:"ctfd"`
	Logging LoggingConfig `yaml:"logging"`
}

// LoadCheck reads just the scoring platform and logging settings.
func LoadCheck(path string) (*CheckConfig, error) {
	var cfg CheckConfig
	if err := pkgconfig.GetConfig(&cfg, path, false); err != nil {
		return nil, err
	}
	return &cfg, nil
}
