package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

// ErrDirty means a previous migration failed halfway; the schema has to be
// repaired by hand and the version forced before migrating again.
var ErrDirty = errors.New("database schema is dirty")

// Migrator applies the numbered .up.sql/.down.sql pairs with golang-migrate
type Migrator struct {
	m   *migrate.Migrate
	log *zap.Logger
}

// New reads migrations at the root of source, usually the embedded
// migrations.FS, and records versions in the schema_migrations table.
func New(db *sql.DB, source fs.FS, log *zap.Logger) (*Migrator, error) {
	src, err := iofs.New(source, ".")
	if err != nil {
		return nil, fmt.Errorf("open migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "schema_migrations"})
	if err != nil {
		return nil, fmt.Errorf("postgres migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	m.Log = migrateLogger{log.Sugar()}
	return &Migrator{m: m, log: log}, nil
}

// migrateLogger routes golang-migrate's progress lines to zap
type migrateLogger struct{ s *zap.SugaredLogger }

func (l migrateLogger) Printf(format string, v ...any) {
	l.s.Debugf(strings.TrimSuffix(format, "\n"), v...)
}

func (l migrateLogger) Verbose() bool { return false }

// Up applies every pending migration
func (m *Migrator) Up(ctx context.Context) error {
	return m.run(ctx, "up", m.m.Up)
}

// Down rolls back n migrations, or all of them when n <= 0
func (m *Migrator) Down(ctx context.Context, n int) error {
	if n > 0 {
		return m.run(ctx, fmt.Sprintf("down %d", n), func() error { return m.m.Steps(-n) })
	}
	return m.run(ctx, "down all", m.m.Down)
}

// Steps applies n migrations, rolling back when n is negative
func (m *Migrator) Steps(ctx context.Context, n int) error {
	if n == 0 {
		return errors.New("step count must not be zero")
	}
	return m.run(ctx, fmt.Sprintf("steps %d", n), func() error { return m.m.Steps(n) })
}

// GoTo migrates up or down to version
func (m *Migrator) GoTo(ctx context.Context, version uint) error {
	return m.run(ctx, fmt.Sprintf("goto %d", version), func() error { return m.m.Migrate(version) })
}

// Version returns the applied version; 0 means none
func (m *Migrator) Version() (version uint, dirty bool, err error) {
	version, dirty, err = m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read migration version: %w", err)
	}
	return version, dirty, nil
}

// Force records version without running anything, clearing the dirty flag
func (m *Migrator) Force(version int) error {
	m.log.Warn("Forcing migration version", zap.Int("version", version))
	if err := m.m.Force(version); err != nil {
		return fmt.Errorf("force version %d: %w", version, err)
	}
	return nil
}

func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	return errors.Join(srcErr, dbErr)
}

// run refuses to touch a dirty schema, and asks golang-migrate to stop after
// the current migration when ctx is cancelled.
func (m *Migrator) run(ctx context.Context, op string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("migration %s: %w", op, err)
	}
	from, dirty, err := m.Version()
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("%w at version %d, fix it and run force", ErrDirty, from)
	}

	stop := context.AfterFunc(ctx, func() {
		select {
		case m.m.GracefulStop <- true:
		default:
		}
	})
	defer stop()

	m.log.Info("Migrating", zap.String("op", op), zap.Uint("from", from))
	err = fn()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		m.log.Info("Schema is up to date", zap.String("op", op), zap.Uint("version", from))
		return nil
	case err != nil:
		return fmt.Errorf("migration %s: %w", op, err)
	}

	to, _, err := m.Version()
	if err != nil {
		return err
	}
	m.log.Info("Migration finished", zap.String("op", op), zap.Uint("from", from), zap.Uint("to", to))
	if ctx.Err() != nil {
		return fmt.Errorf("migration %s interrupted at version %d: %w", op, to, ctx.Err())
	}
	return nil
}
