package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	appconfig "github.com/lewisedginton/ctfd_announcer/internal/config"
	"github.com/lewisedginton/ctfd_announcer/internal/server"
	"github.com/lewisedginton/ctfd_announcer/pkg/logger"
)

// RunCommand returns the command that runs the announcer.
func RunCommand(version string) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Poll CTFd for first bloods and answer chat commands",
		Action: func(ctx *cli.Context) error {
			return runAction(ctx, version)
		},
	}
}

func runAction(ctx *cli.Context, version string) error {
	log := getLogger(ctx)

	cfg, err := appconfig.Load(ctx.String("config-file"))
	if err != nil {
		log.Error("Failed to load configuration", logger.ErrorField(err))
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Version == "dev" && version != "" {
		cfg.Version = version
	}
	cfg.LogConfig(log)

	s, err := server.New(ctx.Context, cfg, log)
	if err != nil {
		log.Error("Failed to create server", logger.ErrorField(err))
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Warn("Failed to close ledger", logger.ErrorField(err))
		}
	}()

	log.Info("Starting CTFd first-blood announcer",
		logger.StringField("version", cfg.Version),
		logger.StringField("platform", cfg.Chat.Platform))

	if err := s.Run(ctx.Context); err != nil {
		log.Error("Announcer stopped with error", logger.ErrorField(err))
		return err
	}
	log.Info("Announcer exited gracefully")
	return nil
}
