package config

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/lewisedginton/ctfd_announcer/internal/ledger"
	pkgconfig "github.com/lewisedginton/ctfd_announcer/pkg/config"
)

// LedgerConfig holds announcement ledger configuration
type LedgerConfig struct {
	Backend string `env:"LEDGER_BACKEND" yaml:"backend" default:"sqlite"` // sqlite, postgres, redis or s3
	Path    string `env:"LEDGER_PATH" yaml:"path" default:"state.db"`

	RedisURL string `env:"LEDGER_REDIS_URL" yaml:"redis_url"`
	RedisKey string `env:"LEDGER_REDIS_KEY" yaml:"redis_key" default:"firstblood:announced"`

	S3Bucket  string `env:"LEDGER_S3_BUCKET" yaml:"s3_bucket"`
	S3Prefix  string `env:"LEDGER_S3_PREFIX" yaml:"s3_prefix"`
	S3Region  string `env:"LEDGER_S3_REGION" yaml:"s3_region"`
	S3Profile string `env:"LEDGER_S3_PROFILE" yaml:"s3_profile"`

	Postgres pkgconfig.DatabaseConfig `yaml:"postgres"`
}

// Validate checks that the selected backend has what it needs.
func (l LedgerConfig) Validate() error {
	var result error
	switch l.Backend {
	case ledger.BackendSQLite:
		if l.Path == "" {
			result = multierror.Append(result, fmt.Errorf("ledger_path is required for the sqlite ledger"))
		}
	case ledger.BackendPostgres:
		if err := l.Postgres.Validate(); err != nil {
			result = multierror.Append(result, err)
		}
	case ledger.BackendRedis:
		if l.RedisURL == "" {
			result = multierror.Append(result, fmt.Errorf("ledger_redis_url is required for the redis ledger"))
		}
	case ledger.BackendS3:
		if l.S3Bucket == "" {
			result = multierror.Append(result, fmt.Errorf("ledger_s3_bucket is required for the s3 ledger"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("%w: %q", ledger.ErrUnknownBackend, l.Backend))
	}
	return result
}
