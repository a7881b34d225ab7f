package cli

import (
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/lewisedginton/ctfd_announcer/pkg/logger"
)

const serviceName = "ctfd-announcer"

var (
	green = color.New(color.FgGreen)
	red   = color.New(color.FgRed, color.Bold)
)

// getLogger retrieves the logger from the CLI context metadata
func getLogger(ctx *cli.Context) logger.Logger {
	if ctx.App.Metadata != nil {
		if log, ok := ctx.App.Metadata["logger"].(logger.Logger); ok {
			return log
		}
	}
	return logger.NewLogger(logger.Config{
		Level:   logger.InfoLevel,
		Format:  "json",
		Service: serviceName,
	})
}

// setupLogger builds the global logger from the flags and stores it in the
// app metadata.
func setupLogger(ctx *cli.Context) error {
	log := logger.NewLogger(logger.Config{
		Level:   logger.ParseLevel(ctx.String("log-level")),
		Format:  ctx.String("log-format"),
		Service: serviceName,
		Output:  ctx.App.ErrWriter,
	})
	if ctx.App.Metadata == nil {
		ctx.App.Metadata = map[string]interface{}{}
	}
	ctx.App.Metadata["logger"] = log
	return nil
}
