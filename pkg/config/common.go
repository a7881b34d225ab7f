package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"
)

var (
	logLevels  = []string{"debug", "info", "warn", "warning", "error"}
	logFormats = []string{"json", "text"}
)

// CommonConfig is the logging block every command shares.
type CommonConfig struct {
	LogLevel  string `env:"LOG_LEVEL" yaml:"log_level" default:"info"`
	LogFormat string `env:"LOG_FORMAT" yaml:"log_format" default:"json"`
}

func (c CommonConfig) Validate() error {
	var result error
	if !slices.Contains(logLevels, strings.ToLower(c.LogLevel)) {
		result = multierror.Append(result, fmt.Errorf("log_level must be one of %v, got %q", logLevels, c.LogLevel))
	}
	if c.LogFormat != "" && !slices.Contains(logFormats, c.LogFormat) {
		result = multierror.Append(result, fmt.Errorf("log_format must be one of %v, got %q", logFormats, c.LogFormat))
	}
	return result
}
