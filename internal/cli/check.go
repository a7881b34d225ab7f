package cli

import (
	"fmt"
	"net/http"

	"github.com/urfave/cli/v2"

	appconfig "github.com/lewisedginton/ctfd_announcer/internal/config"
	"github.com/lewisedginton/ctfd_announcer/internal/ctfd"
	"github.com/lewisedginton/ctfd_announcer/pkg/health/checkers"
	"github.com/lewisedginton/ctfd_announcer/pkg/logger"
)

// CheckCommand returns the command that verifies the CTFd connection.
func CheckCommand() *cli.Command {
	return &cli.Command{
		Name:   "check",
		Usage:  "Test the connection and API key against CTFd",
		Action: checkAction,
	}
}

func checkAction(ctx *cli.Context) error {
	log := getLogger(ctx)
	out := ctx.App.Writer

	cfg, err := appconfig.LoadCheck(ctx.String("config-file"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	client, err := ctfd.NewClient(ctfd.Config{
		BaseURL:    cfg.CTFd.URL,
		APIKey:     cfg.CTFd.APIKey,
		AuthScheme: cfg.CTFd.AuthScheme,
		Timeout:    cfg.CTFd.Timeout,
		RateLimit:  cfg.CTFd.RateLimit,
		Burst:      cfg.CTFd.Burst,
		Logger:     log,
	})
	if err != nil {
		return err
	}

	site := checkers.NewHTTPChecker(cfg.CTFd.URL, "ctfd_site",
		checkers.WithHTTPClient(&http.Client{Timeout: cfg.CTFd.Timeout}),
		checkers.WithUserAgent("ctfd-announcer/"+ctx.App.Version))
	if err := site.Check(ctx.Context); err != nil {
		red.Fprintf(out, "✗ CTFd site unreachable: %v\n", err)
		return fmt.Errorf("ctfd site unreachable: %w", err)
	}

	if err := client.Ping(ctx.Context); err != nil {
		red.Fprintf(out, "✗ CTFd API check failed: %v\n", err)
		return fmt.Errorf("ctfd api check failed: %w", err)
	}

	challenges, err := client.FetchChallenges(ctx.Context)
	if err != nil {
		red.Fprintf(out, "✗ Could not list challenges: %v\n", err)
		return fmt.Errorf("listing challenges: %w", err)
	}

	log.Info("CTFd connection verified",
		logger.StringField("ctfd_url", cfg.CTFd.URL),
		logger.IntField("challenges", len(challenges)))
	green.Fprintf(out, "✓ Connected to %s (%d challenges)\n", cfg.CTFd.URL, len(challenges))
	return nil
}
