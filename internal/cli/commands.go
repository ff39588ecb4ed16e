package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aimd54/datestreak/internal/models"
	"github.com/aimd54/datestreak/internal/repository"
	"github.com/aimd54/datestreak/internal/service/allocation"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long: `Apply the embedded SQL migrations on PostgreSQL. On SQLite the
schema is created from the models instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			db, err := openDB(cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if err := db.Migrate(); err != nil {
				return err
			}
			log.Info().Str("driver", cfg.Database.Driver).Msg("Migrations applied")
			return nil
		},
	}
}

// NewImportCommand creates the import-puzzles command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import-puzzles <feed.yaml>",
		Short: "Import puzzle allocations from a YAML feed",
		Long: `Import puzzle allocations from a YAML feed. Existing allocations for
the same owner and date get their answer replaced.

Example:
  datestreak import-puzzles ./feeds/2025-01.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			feed, err := allocation.LoadFeed(args[0])
			if err != nil {
				return err
			}

			cfg, log, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			db, err := openDB(cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			svc := allocation.NewService(repository.NewPuzzleRepository(db), log)
			n, err := svc.Import(cmd.Context(), feed)
			if err != nil {
				return fmt.Errorf("imported %d of %d allocations: %w", n, len(feed.Entries), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d allocations\n", n)
			return nil
		},
	}
}

// NewFlushCommand creates the flush-outbox command.
func NewFlushCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "flush-outbox",
		Short: "Replay due outbox entries once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.worker.Drain(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "flushed %d, retried %d\n", summary.Flushed, summary.Retried)
			return nil
		},
	}
}

// NewRefreshCommand creates the refresh-snapshots command.
func NewRefreshCommand(rootOpts *RootOptions) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "refresh-snapshots",
		Short: "Recompute streak snapshots for every player",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			loc, err := a.cfg.Game.Location()
			if err != nil {
				return err
			}
			day := models.Day(time.Now().In(loc))
			if date != "" {
				day, err = time.Parse("2006-01-02", date)
				if err != nil {
					return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", date)
				}
			}

			summary, err := a.aggregator.AggregateDaily(cmd.Context(), day)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d players refreshed, %d failed in %s\n",
				summary.RunID, summary.Users, summary.Failed, summary.Duration.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "anchor date (YYYY-MM-DD, default today)")
	return cmd
}
