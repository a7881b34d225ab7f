package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

// HTTPServerConfig configures an HTTP listener. Timeouts accept Go
// durations or bare seconds.
type HTTPServerConfig struct {
	Port           int           `env:"HTTP_PORT" yaml:"port" default:"8080"`
	ReadTimeout    time.Duration `env:"HTTP_READ_TIMEOUT" yaml:"read_timeout" default:"15s"`
	WriteTimeout   time.Duration `env:"HTTP_WRITE_TIMEOUT" yaml:"write_timeout" default:"15s"`
	IdleTimeout    time.Duration `env:"HTTP_IDLE_TIMEOUT" yaml:"idle_timeout" default:"60s"`
	MaxHeaderBytes int           `env:"HTTP_MAX_HEADER_BYTES" yaml:"max_header_bytes" default:"1048576"`
}

func (h HTTPServerConfig) Validate() error {
	var result error
	if h.Port < 1 || h.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("http port must be between 1-65535, got %d", h.Port))
	}
	if h.ReadTimeout < 0 || h.WriteTimeout < 0 || h.IdleTimeout < 0 {
		result = multierror.Append(result, fmt.Errorf("http timeouts must not be negative"))
	}
	return result
}

// Addr is the listen address for Port on all interfaces.
func (h HTTPServerConfig) Addr() string {
	return fmt.Sprintf(":%d", h.Port)
}
