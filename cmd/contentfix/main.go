package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/autoguides/contentfix/internal/app"
	"github.com/autoguides/contentfix/internal/auth"
	"github.com/autoguides/contentfix/internal/config"
	"github.com/autoguides/contentfix/internal/correction"
	"github.com/autoguides/contentfix/internal/database"
	"github.com/autoguides/contentfix/internal/logging"
	"github.com/autoguides/contentfix/internal/models"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "contentfix",
		Short: "Content correction pipeline for tire pressure guides",
		Long: `contentfix finds tire pressure guides with inconsistent pressure data or
model-year mismatches, asks a generative model for corrections, and writes
the validated fixes back to the article store.

Configuration is read from the environment, the same as the server.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newCleanupCmd(),
		newStatsCmd(),
		newMigrateCmd(),
		newHashPasswordCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "contentfix version %s\n", version)
		},
	}
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one creation and processing pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadEnv()
			if err != nil {
				return err
			}
			createLimit, _ := cmd.Flags().GetInt("create-limit")
			processLimit, _ := cmd.Flags().GetInt("process-limit")
			if !cmd.Flags().Changed("create-limit") {
				createLimit = cfg.Workflow.CreateLimit
			}
			if !cmd.Flags().Changed("process-limit") {
				processLimit = cfg.Workflow.ProcessLimit
			}
			if noCleanup, _ := cmd.Flags().GetBool("no-cleanup"); noCleanup {
				cfg.Workflow.CleanupChance = 0
			}

			return withApp(cmd.Context(), cfg, logger, func(ctx context.Context, a *app.App) error {
				return printReport(cmd.OutOrStdout(), a.Workflow.Run(ctx, createLimit, processLimit))
			})
		},
	}
	cmd.Flags().Int("create-limit", 0, "Maximum new records to create (default from WORKFLOW_CREATE_LIMIT)")
	cmd.Flags().Int("process-limit", 0, "Maximum records to process (default from WORKFLOW_PROCESS_LIMIT)")
	cmd.Flags().Bool("no-cleanup", false, "Skip the probabilistic cleanup phase")
	return cmd
}

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove duplicates, reset stuck records and purge old failures",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadEnv()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), cfg, logger, func(ctx context.Context, a *app.App) error {
				return printReport(cmd.OutOrStdout(), a.Workflow.RunCleanup(ctx))
			})
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show correction record counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadEnv()
			if err != nil {
				return err
			}
			db, err := database.Connect(cmd.Context(), database.ConfigFrom(cfg.Database))
			if err != nil {
				return err
			}
			defer db.Close()
			logger.Debug("database connected")

			counts, err := database.NewPostgresCorrectionRepository(db).CountByStatus(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to count corrections: %w", err)
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(counts)
			}
			return printStats(cmd.OutOrStdout(), counts)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadEnv()
			if err != nil {
				return err
			}
			db, err := database.Connect(cmd.Context(), database.ConfigFrom(cfg.Database))
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := database.RunMigrations(cmd.Context(), db, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
			return nil
		},
	}
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashPassword(args[0])
			if err != nil {
				return fmt.Errorf("failed to hash password: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

// loadEnv reads configuration and builds a logger that writes to stderr so
// command output stays machine-readable.
func loadEnv() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.NewWithWriter(cfg.Logging, os.Stderr)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return cfg, logger, nil
}

func withApp(parent context.Context, cfg config.Config, logger *slog.Logger, fn func(context.Context, *app.App) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("failed to release resources", "error", err)
		}
	}()
	return fn(ctx, a)
}

func printReport(w io.Writer, report correction.WorkflowReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if report.Rejected() {
		return correction.ErrWorkflowRunning
	}
	if !report.Succeeded() {
		return fmt.Errorf("workflow finished with %d error(s)", len(report.Errors))
	}
	return nil
}

func printStats(w io.Writer, counts map[models.CorrectionStatus]int) error {
	statuses := make([]string, 0, len(counts))
	total := 0
	for status, n := range counts {
		statuses = append(statuses, string(status))
		total += n
	}
	sort.Strings(statuses)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tCOUNT")
	for _, status := range statuses {
		fmt.Fprintf(tw, "%s\t%d\n", status, counts[models.CorrectionStatus(status)])
	}
	fmt.Fprintf(tw, "total\t%d\n", total)
	return tw.Flush()
}
