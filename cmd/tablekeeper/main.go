package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/tablekeeper/internal/config"
	"github.com/example/tablekeeper/internal/logging"
	"github.com/example/tablekeeper/internal/persistence/sqlite"
	"github.com/example/tablekeeper/internal/persistence/sqlite/migration"
	"github.com/example/tablekeeper/internal/planfile"
	"github.com/example/tablekeeper/internal/tablestore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// cli holds the global flags and the state PersistentPreRunE derives from them.
type cli struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	dbPath     string
	logLevel   string
	logFormat  string

	cfg    config.Config
	logger *slog.Logger
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}

	rootCmd := &cobra.Command{
		Use:               "tablekeeper",
		Short:             "Schema lifecycle for tables in an embedded SQLite store",
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&c.configPath, "config", "", "optional YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&c.dbPath, "db", "", "store file path (overrides configuration)")
	rootCmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "debug, info, warn or error (overrides configuration)")
	rootCmd.PersistentFlags().StringVar(&c.logFormat, "log-format", "", "json or text (overrides configuration)")

	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Bring a table in line with its plan file",
		Args:  cobra.NoArgs,
		RunE:  c.runReconcile,
	}
	reconcileCmd.Flags().String("plan", "", "plan file declaring the table")
	reconcileCmd.Flags().String("steps-dir", "", "directory of versioned step files")
	_ = reconcileCmd.MarkFlagRequired("plan")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Inspect or override registry versions",
	}
	versionGetCmd := &cobra.Command{
		Use:   "get <table>",
		Short: "Print the recorded version of a table",
		Args:  cobra.ExactArgs(1),
		RunE:  c.runVersionGet,
	}
	versionSetCmd := &cobra.Command{
		Use:   "set <table> <version>",
		Short: "Record a version for a table without migrating it",
		Args:  cobra.ExactArgs(2),
		RunE:  c.runVersionSet,
	}
	versionCmd.AddCommand(versionGetCmd, versionSetCmd)

	columnsCmd := &cobra.Command{
		Use:   "columns <table>",
		Short: "List the physical columns of a table",
		Args:  cobra.ExactArgs(1),
		RunE:  c.runColumns,
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "List every registered table and its version",
		Args:  cobra.NoArgs,
		RunE:  c.runStatus,
	}

	rootCmd.AddCommand(reconcileCmd, versionCmd, columnsCmd, statusCmd)
	return rootCmd
}

// setup loads configuration, applies flag overrides and builds the logger.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.dbPath != "" {
		cfg.DBPath = c.dbPath
	}
	if level := strings.ToLower(strings.TrimSpace(c.logLevel)); level != "" {
		cfg.LogLevel = level
	}
	if format := strings.ToLower(strings.TrimSpace(c.logFormat)); format != "" {
		cfg.LogFormat = format
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(c.stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	c.cfg = cfg
	c.logger = logger
	cmd.SetContext(logging.ContextWithLogger(cmd.Context(), logger))
	return nil
}

func (c *cli) runReconcile(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	planPath, _ := cmd.Flags().GetString("plan")
	stepsDir, _ := cmd.Flags().GetString("steps-dir")

	def, err := planfile.Load(planPath)
	if err != nil {
		c.logger.Error("failed to load plan file", "path", planPath, "error", err)
		return err
	}
	if stepsDir != "" {
		steps, err := planfile.LoadSteps(stepsDir)
		if err != nil {
			c.logger.Error("failed to load step files", "dir", stepsDir, "error", err)
			return err
		}
		if err := def.AddSteps(steps); err != nil {
			return err
		}
	}
	if def.Plan != nil {
		for _, warning := range def.Plan.Warnings() {
			c.logger.Warn("plan warning", "table", def.Table, "warning", warning)
		}
	}

	opener := tablestore.NewOpener(sqlite.NewPool(c.logger), nil, c.logger)
	table, err := opener.Open(ctx, tablestore.Options{
		Path:   c.cfg.DBPath,
		Table:  def.Table,
		Schema: def.Schema,
		Plan:   def.Plan,
		Store:  c.cfg.SQLite(),
	})
	if err != nil {
		c.logger.Error("reconcile failed", "table", def.Table, "error", err, "error_kind", migration.ErrorKind(err))
		return err
	}
	defer func() {
		if cerr := table.Close(); cerr != nil {
			c.logger.Error("failed to close store", "error", cerr)
		}
	}()

	outcome := table.Outcome()
	fmt.Fprintf(c.stdout, "%s: %s (version %d -> %d)\n", outcome.Table, outcome.Path, outcome.From, outcome.To)
	return nil
}

func (c *cli) runVersionGet(cmd *cobra.Command, args []string) error {
	return c.withStore(cmd.Context(), func(ctx context.Context, db *sqlite.DB) error {
		version, err := migration.NewRegistry(db, nil).Version(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(c.stdout, version)
		return nil
	})
}

func (c *cli) runVersionSet(cmd *cobra.Command, args []string) error {
	version, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", args[1], err)
	}

	return c.withStore(cmd.Context(), func(ctx context.Context, db *sqlite.DB) error {
		registry := migration.NewRegistry(db, nil)
		if err := registry.EnsureMeta(ctx); err != nil {
			return err
		}
		if err := registry.SetVersion(ctx, args[0], version); err != nil {
			return err
		}
		c.logger.Info("version recorded", "table", args[0], "version", version)
		return nil
	})
}

func (c *cli) runColumns(cmd *cobra.Command, args []string) error {
	return c.withStore(cmd.Context(), func(ctx context.Context, db *sqlite.DB) error {
		columns, err := db.Columns(ctx, args[0])
		if err != nil {
			return err
		}
		for _, column := range columns {
			fmt.Fprintln(c.stdout, column)
		}
		return nil
	})
}

func (c *cli) runStatus(cmd *cobra.Command, _ []string) error {
	return c.withStore(cmd.Context(), func(ctx context.Context, db *sqlite.DB) error {
		entries, err := migration.NewRegistry(db, nil).Entries(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TABLE\tVERSION\tUPDATED")
		for _, entry := range entries {
			fmt.Fprintf(w, "%s\t%d\t%s\n", entry.Table, entry.Version, entry.UpdatedAt.UTC().Format(time.RFC3339))
		}
		return w.Flush()
	})
}

// withStore opens the configured store for the duration of fn.
func (c *cli) withStore(ctx context.Context, fn func(context.Context, *sqlite.DB) error) error {
	db, err := sqlite.Open(ctx, c.cfg.SQLite())
	if err != nil {
		c.logger.Error("failed to open store", "path", c.cfg.DBPath, "error", err)
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			c.logger.Error("failed to close store", "error", cerr)
		}
	}()
	return fn(ctx, db)
}
