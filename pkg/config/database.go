package config

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
)

// DatabaseConfig describes a postgres connection, either as a full URL or as
// separate components. URL wins when set.
type DatabaseConfig struct {
	URL string `env:"DATABASE_URL" yaml:"url"`

	Host     string `env:"DB_HOST" yaml:"host" default:"localhost"`
	Port     int    `env:"DB_PORT" yaml:"port" default:"5432"`
	Database string `env:"DB_NAME" yaml:"database" default:"announcer"`
	Username string `env:"DB_USER" yaml:"username" default:"postgres"`
	Password string `env:"DB_PASSWORD" yaml:"password" default:"postgres"`
	SSLMode  string `env:"DB_SSLMODE" yaml:"sslmode" default:"disable"`

	MaxConnections int           `env:"DB_MAX_CONNECTIONS" yaml:"max_connections" default:"4"`
	MinConnections int           `env:"DB_MIN_CONNECTIONS" yaml:"min_connections" default:"1"`
	ConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" yaml:"connect_timeout" default:"10s"`
}

func (d DatabaseConfig) baseURL() (*url.URL, error) {
	if d.URL != "" {
		return url.Parse(d.URL)
	}
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.Username, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   "/" + d.Database,
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {d.SSLMode}}.Encode()
	}
	return u, nil
}

// PoolDSN returns a pgxpool connection string carrying the pool settings.
// Parameters already present in URL are left as they are.
func (d DatabaseConfig) PoolDSN() string {
	u, err := d.baseURL()
	if err != nil {
		return d.URL
	}

	q := u.Query()
	setDefault := func(key, value string) {
		if q.Get(key) == "" {
			q.Set(key, value)
		}
	}
	setDefault("pool_max_conns", strconv.Itoa(d.MaxConnections))
	setDefault("pool_min_conns", strconv.Itoa(d.MinConnections))
	if d.ConnectTimeout > 0 {
		setDefault("connect_timeout", strconv.Itoa(int(d.ConnectTimeout.Seconds())))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (d DatabaseConfig) Validate() error {
	var result error

	if d.URL != "" {
		if u, err := url.Parse(d.URL); err != nil {
			result = multierror.Append(result, fmt.Errorf("database url: %w", err))
		} else if u.Scheme != "postgres" && u.Scheme != "postgresql" {
			result = multierror.Append(result, fmt.Errorf("database url scheme must be postgres, got %q", u.Scheme))
		}
	} else {
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
