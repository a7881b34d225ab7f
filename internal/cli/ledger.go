package cli

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	appconfig "github.com/lewisedginton/ctfd_announcer/internal/config"
	"github.com/lewisedginton/ctfd_announcer/internal/ledger"
	"github.com/lewisedginton/ctfd_announcer/pkg/logger"
)

// LedgerCommand returns the ledger maintenance commands.
func LedgerCommand() *cli.Command {
	return &cli.Command{
		Name:  "ledger",
		Usage: "Inspect or edit the announcement ledger",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List announced challenges",
				Action: ledgerListAction,
			},
			{
				Name:      "has",
				Usage:     "Report whether a challenge has been announced",
				ArgsUsage: "<challenge-id>",
				Action:    ledgerHasAction,
			},
			{
				Name:      "mark",
				Usage:     "Mark a challenge as announced without posting",
				ArgsUsage: "<challenge-id>",
				Action:    ledgerMarkAction,
			},
		},
	}
}

func withLedger(ctx *cli.Context, fn func(context.Context, ledger.Store) error) error {
	log := getLogger(ctx)

	cfg, err := appconfig.LoadLedgerOnly(ctx.String("config-file"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := ledger.NewStore(ctx.Context, cfg.StoreConfig(), log)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("Failed to close ledger", logger.ErrorField(err))
		}
	}()

	return fn(ctx.Context, store)
}

func challengeIDArg(ctx *cli.Context) (int64, error) {
	if ctx.NArg() != 1 {
		return 0, fmt.Errorf("expected exactly one challenge ID")
	}
	id, err := strconv.ParseInt(ctx.Args().First(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid challenge ID %q: %w", ctx.Args().First(), err)
	}
	return id, nil
}

func ledgerListAction(ctx *cli.Context) error {
	return withLedger(ctx, func(c context.Context, store ledger.Store) error {
		records, err := store.List(c)
		if err != nil {
			return fmt.Errorf("listing ledger: %w", err)
		}
		if len(records) == 0 {
			fmt.Fprintln(ctx.App.Writer, "No challenges announced yet.")
			return nil
		}

		w := tabwriter.NewWriter(ctx.App.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CHALLENGE\tANNOUNCED AT")
		for _, r := range records {
			fmt.Fprintf(w, "%d\t%s\n", r.ChallengeID, formatAnnouncedAt(r.AnnouncedAt))
		}
		return w.Flush()
	})
}

func ledgerHasAction(ctx *cli.Context) error {
	id, err := challengeIDArg(ctx)
	if err != nil {
		return err
	}
	return withLedger(ctx, func(c context.Context, store ledger.Store) error {
		announced, err := store.IsAnnounced(c, id)
		if err != nil {
			return fmt.Errorf("reading ledger: %w", err)
		}
		if announced {
			green.Fprintf(ctx.App.Writer, "✓ Challenge %d has been announced\n", id)
		} else {
			fmt.Fprintf(ctx.App.Writer, "Challenge %d has not been announced\n", id)
		}
		return nil
	})
}

func ledgerMarkAction(ctx *cli.Context) error {
	id, err := challengeIDArg(ctx)
	if err != nil {
		return err
	}
	return withLedger(ctx, func(c context.Context, store ledger.Store) error {
		if err := store.MarkAnnounced(c, id); err != nil {
			return fmt.Errorf("writing ledger: %w", err)
		}
		getLogger(ctx).Info("Challenge marked as announced", logger.ChallengeIDField(id))
		green.Fprintf(ctx.App.Writer, "✓ Challenge %d marked as announced\n", id)
		return nil
	})
}

func formatAnnouncedAt(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
