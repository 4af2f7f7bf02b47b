/*
main.go - Application entry point

PURPOSE:
  Command-line front end for the Momentum progress engine. Serves the HTTP
  API and offers a few operator commands that work directly on the database.

COMMANDS:
  serve               Start the HTTP server (default when no command given)
  rollup <project>    Print project, WBS and phase metrics
  export <project>    Write the rollup workbook (.xlsx)
  seed <scenario>     Reset the database and load a demo scenario
  version             Print the build version

GLOBAL FLAGS:
  --config   TOML config file (default: momentum.toml, optional)
  --db       SQLite database path, overrides config and MOMENTUM_DB
  --port     HTTP port, overrides config and MOMENTUM_PORT

CONFIG PRECEDENCE:
  defaults < config file < .env / environment < flags

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection

EXAMPLES:
  momentum serve --db ./data/momentum.db
  momentum seed pipe-rack
  momentum export 6f1c... -o progress.xlsx --date 2025-03-04

SEE ALSO:
  - config/config.go: Configuration loading
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/truss/momentum/api"
	"github.com/truss/momentum/config"
	"github.com/truss/momentum/export"
	"github.com/truss/momentum/progress"
	"github.com/truss/momentum/store/sqlite"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 30 * time.Second

type options struct {
	configPath string
	dbPath     string
	port       int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "momentum",
		Short:        "Construction progress tracking engine",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "momentum.toml", "TOML config file")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database path (overrides config)")
	root.PersistentFlags().IntVar(&opts.port, "port", 0, "HTTP server port (overrides config)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP server",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context(), opts)
			},
		},
		newRollupCmd(opts),
		newExportCmd(opts),
		&cobra.Command{
			Use:   "seed <scenario>",
			Short: "Reset the database and load a demo scenario",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSeed(cmd.Context(), opts, args[0], cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the build version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), "momentum", version)
			},
		},
	)
	return root
}

// =============================================================================
// SETUP
// =============================================================================

// loadConfig resolves configuration and applies flag overrides.
func loadConfig(opts *options) (config.Config, error) {
	cfg, err := config.Load(opts.configPath, config.Default())
	if err != nil {
		return cfg, err
	}
	if opts.dbPath != "" {
		cfg.Database.Path = opts.dbPath
	}
	if opts.port != 0 {
		cfg.Server.Port = opts.port
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Logger().Level(level)
}

// openService loads config, opens the database and builds the service.
// The caller closes the returned store.
func openService(opts *options) (config.Config, *sqlite.Store, *progress.Service, zerolog.Logger, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return cfg, nil, nil, zerolog.Nop(), fmt.Errorf("invalid configuration: %w", err)
	}
	logger := newLogger(cfg.Log)

	if dir := dbDir(cfg.Database.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return cfg, nil, nil, logger, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return cfg, nil, nil, logger, fmt.Errorf("failed to initialize database: %w", err)
	}
	return cfg, store, progress.NewService(store, logger), logger, nil
}

func dbDir(path string) string {
	if path == ":memory:" {
		return ""
	}
	if dir := filepath.Dir(path); dir != "." {
		return dir
	}
	return ""
}

// =============================================================================
// SERVE
// =============================================================================

func runServe(ctx context.Context, opts *options) error {
	cfg, store, svc, logger, err := openService(opts)
	if err != nil {
		return err
	}
	defer store.Close()

	handler := api.NewHandler(svc, logger)
	router := api.NewRouter(handler, cfg.Server.CORSOrigins)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  cfg.Server.IdleTimeout.Duration,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", server.Addr).
			Str("db", cfg.Database.Path).
			Str("version", version).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

// =============================================================================
// OPERATOR COMMANDS
// =============================================================================

func newRollupCmd(opts *options) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "rollup <project-id>",
		Short: "Print project, WBS and phase metrics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, svc, _, err := openService(opts)
			if err != nil {
				return err
			}
			defer store.Close()

			rollup, err := computeRollup(cmd.Context(), svc, args[0], date)
			if err != nil {
				return err
			}
			return printRollup(cmd.OutOrStdout(), rollup)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "as-of date (YYYY-MM-DD)")
	return cmd
}

func newExportCmd(opts *options) *cobra.Command {
	var date, output string
	cmd := &cobra.Command{
		Use:   "export <project-id>",
		Short: "Write the project rollup as an .xlsx workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, svc, logger, err := openService(opts)
			if err != nil {
				return err
			}
			defer store.Close()

			rollup, err := computeRollup(cmd.Context(), svc, args[0], date)
			if err != nil {
				return err
			}
			if output == "" {
				output = fmt.Sprintf("%s-progress.xlsx", rollup.Project.ID)
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			if err := export.WriteProjectWorkbook(f, rollup); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			logger.Info().Str("project_id", args[0]).Str("file", output).Msg("workbook written")
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "as-of date for the day breakdown (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default <project-id>-progress.xlsx)")
	return cmd
}

func runSeed(ctx context.Context, opts *options, scenarioID string, out io.Writer) error {
	_, store, svc, logger, err := openService(opts)
	if err != nil {
		return err
	}
	defer store.Close()

	projectID, err := api.LoadScenario(ctx, svc, scenarioID)
	if err != nil {
		return err
	}
	logger.Info().Str("scenario_id", scenarioID).Str("project_id", string(projectID)).Msg("scenario loaded")
	fmt.Fprintln(out, projectID)
	return nil
}

func computeRollup(ctx context.Context, svc *progress.Service, id, date string) (*progress.ProjectRollup, error) {
	var asOf progress.Date
	if date != "" {
		d, err := progress.ParseDate(date)
		if err != nil {
			return nil, err
		}
		asOf = d
	}

	rollup, err := svc.ComputeRollup(ctx, progress.Scope{ProjectID: progress.ProjectID(id)}, asOf)
	if err != nil {
		return nil, err
	}
	if rollup == nil {
		return nil, fmt.Errorf("project %s not found", id)
	}
	return rollup, nil
}

func printRollup(w io.Writer, r *progress.ProjectRollup) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", "SCOPE", "TOTAL MH", "EARNED MH", "%", "STATUS")
	row := func(label string, m progress.Metrics) {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			label, m.TotalMH.StringFixed(2), m.EarnedMH.StringFixed(2), m.PercentComplete, m.Status)
	}

	row(r.Project.Name, r.Metrics)
	for _, wbs := range r.WBS {
		row("  "+wbs.WBS.Name, wbs.Metrics)
		for _, ph := range wbs.Phases {
			row("    "+ph.Phase.Name, ph.Metrics)
		}
	}
	return tw.Flush()
}
