// Package cli defines the announcer command line interface.
package cli

import (
	"github.com/urfave/cli/v2"
)

// NewApp returns the announcer CLI application.
func NewApp(version string) *cli.App {
	return &cli.App{
		Name:    "announcer",
		Usage:   "Announce CTFd first bloods to Slack or Telegram",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "json",
				Usage:   "Log format (json, text)",
				EnvVars: []string{"LOG_FORMAT"},
			},
			&cli.StringFlag{
				Name:    "config-file",
				Value:   "",
				Usage:   "Path to configuration file",
				EnvVars: []string{"CONFIG_FILE"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			RunCommand(version),
			CheckCommand(),
			LedgerCommand(),
		},
	}
}
