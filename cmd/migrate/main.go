package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/municipal/backoffice/internal/infrastructure/config"
	"github.com/municipal/backoffice/internal/infrastructure/logger"
	"github.com/municipal/backoffice/internal/infrastructure/migration"
	"github.com/municipal/backoffice/migrations"
)

type cli struct {
	dir      string
	logLevel string
	logs     *logger.Logger
	log      *zap.Logger
	cfg      *config.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the back-office database schema",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logs, err := logger.New(logger.Config{
				Level:      c.logLevel,
				Format:     "console",
				TimeFormat: "2006-01-02 15:04:05",
			})
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			c.logs, c.log = logs, logs.Logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.logs != nil {
				_ = c.logs.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&c.dir, "dir", "", "read migrations from this directory instead of the embedded set")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: c.withMigrator(func(ctx context.Context, m *migration.Migrator, _ []string) error {
				return m.Up(ctx)
			}),
		},
		&cobra.Command{
			Use:   "down [n]",
			Short: "Roll back n migrations, or all of them",
			Args:  cobra.MaximumNArgs(1),
			RunE: c.withMigrator(func(ctx context.Context, m *migration.Migrator, args []string) error {
				n := 0
				if len(args) == 1 {
					v, err := strconv.Atoi(args[0])
					if err != nil || v <= 0 {
						return fmt.Errorf("invalid step count %q", args[0])
					}
					n = v
				}
				return m.Down(ctx, n)
			}),
		},
		&cobra.Command{
			Use:   "steps <n>",
			Short: "Apply n migrations, negative n rolls back",
			Args:  cobra.ExactArgs(1),
			RunE: c.withMigrator(func(ctx context.Context, m *migration.Migrator, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid step count %q", args[0])
				}
				return m.Steps(ctx, n)
			}),
		},
		&cobra.Command{
			Use:   "goto <version>",
			Short: "Migrate up or down to a version",
			Args:  cobra.ExactArgs(1),
			RunE: c.withMigrator(func(ctx context.Context, m *migration.Migrator, args []string) error {
				v, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid version %q", args[0])
				}
				return m.GoTo(ctx, uint(v))
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show the applied version",
			Args:  cobra.NoArgs,
			RunE: c.withMigrator(func(_ context.Context, m *migration.Migrator, _ []string) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				if version == 0 {
					c.log.Info("No migrations applied")
					return nil
				}
				c.log.Info("Current migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))
				return nil
			}),
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the recorded version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: c.withMigrator(func(_ context.Context, m *migration.Migrator, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q", args[0])
				}
				return m.Force(v)
			}),
		},
		&cobra.Command{
			Use:   "list",
			Short: "List the available migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				files, err := migration.List(c.source())
				if err != nil {
					return err
				}
				for _, f := range files {
					fmt.Fprintf(cmd.OutOrStdout(), "%06d  %s\n", f.Version, f.Name)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "create <name>",
			Short: "Create the next numbered migration pair",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				dir := c.dir
				if dir == "" {
					dir = "migrations"
				}
				f, err := migration.Create(dir, args[0])
				if err != nil {
					return err
				}
				c.log.Info("Migration created", zap.String("up", f.UpPath), zap.String("down", f.DownPath))
				return nil
			},
		},
		newSeedCommand(c),
	)
	return root
}

func (c *cli) source() fs.FS {
	if c.dir != "" {
		return os.DirFS(c.dir)
	}
	return migrations.FS
}

func (c *cli) config() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *cli) withMigrator(run func(ctx context.Context, m *migration.Migrator, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := c.config()
		if err != nil {
			return err
		}
		db, err := sql.Open("postgres", cfg.Database.DSN())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(cmd.Context()); err != nil {
			return fmt.Errorf("failed to ping database: %w", err)
		}

		m, err := migration.New(db, c.source(), c.log)
		if err != nil {
			return err
		}
		defer func() {
			if err := m.Close(); err != nil {
				c.log.Warn("Error closing migrator", zap.Error(err))
			}
		}()
		return run(cmd.Context(), m, args)
	}
}
