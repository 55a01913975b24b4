package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/ehr/records/internal/config"
	"github.com/ehr/records/internal/domain/reminder"
	"github.com/ehr/records/internal/platform/db"
	"github.com/ehr/records/migrations"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "records-server",
		Short:        "Client records API server",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(remindersCmd())
	root.AddCommand(exportCmd())
	root.AddCommand(reminderTimeCmd())
	return root
}

// loadConfig reads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// migrationSource returns MIGRATIONS_DIR when set, the embedded files otherwise.
func migrationSource(cfg *config.Config) fs.FS {
	if cfg.MigrationsDir != "" {
		return os.DirFS(cfg.MigrationsDir)
	}
	return migrations.FS
}

func connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		AppName:  "records-server",
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
}

// withApp loads the config, connects and wires the services for a one-shot
// command.
func withApp(ctx context.Context, fn func(a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	pool, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	a, err := newApp(ctx, cfg, logger, pool)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and the reminder dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		l := newLogger(nil)
		l.Error().Err(err).Msg("invalid configuration")
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := connect(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	a, err := newApp(ctx, cfg, logger, pool)
	if err != nil {
		logger.Error().Err(err).Msg("failed to start")
		return err
	}
	defer a.Close()

	e := a.routes()
	a.runBackground(ctx)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	newMigrator := func(ctx context.Context, cmd *cobra.Command) (*db.Migrator, func(), error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		schema, _ := cmd.Flags().GetString("schema")
		if schema == "" {
			schema = cfg.MigrationsSchema
		}
		pool, err := connect(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return db.NewMigrator(pool, migrationSource(cfg), schema), pool.Close, nil
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			migrator, done, err := newMigrator(ctx, cmd)
			if err != nil {
				return err
			}
			defer done()

			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "", "Target schema (default MIGRATIONS_SCHEMA)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			migrator, done, err := newMigrator(ctx, cmd)
			if err != nil {
				return err
			}
			defer done()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
	statusCmd.Flags().String("schema", "", "Target schema (default MIGRATIONS_SCHEMA)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func remindersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Manage appointment reminders",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "dispatch",
		Short: "Send every due reminder once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				res, err := a.dispatcher.RunBatch(cmd.Context(), time.Now())
				fmt.Fprintf(cmd.OutOrStdout(), "sent: %d, failed: %d\n", res.Sent, res.Failed)
				return err
			})
		},
	})
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write records to one PDF, a page break between each",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawIDs, _ := cmd.Flags().GetStringSlice("id")
			out, _ := cmd.Flags().GetString("out")
			ids, err := parseIDs(rawIDs)
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), func(a *app) error {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				if err := a.exporter.PDF(cmd.Context(), f, ids...); err != nil {
					f.Close()
					os.Remove(out)
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d record(s) to %s\n", len(ids), out)
				return nil
			})
		},
	}
	cmd.Flags().StringSlice("id", nil, "Record id (repeatable)")
	cmd.Flags().String("out", "records.pdf", "Output file")
	cmd.MarkFlagRequired("id")
	return cmd
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("at least one --id is required")
	}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid record id %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func reminderTimeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminder-time",
		Short: "Print when the reminder for an appointment start is sent",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("start")
			start, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return fmt.Errorf("--start must be RFC 3339: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), reminder.ComputeReminderTime(start).Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().String("start", "", "Appointment start, e.g. 2024-06-10T14:00:00Z")
	cmd.MarkFlagRequired("start")
	return cmd
}
