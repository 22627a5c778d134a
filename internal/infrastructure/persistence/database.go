package persistence

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/municipal/backoffice/internal/infrastructure/config"
	"github.com/municipal/backoffice/internal/infrastructure/logger"
	"github.com/municipal/backoffice/internal/infrastructure/telemetry"
)

const connectTimeout = 10 * time.Second

// Database is the shared GORM connection pool
type Database struct {
	DB *gorm.DB
}

// Options tunes how the connection is instrumented
type Options struct {
	Logger    *zap.Logger
	LogLevel  string // silent, error, warn, info
	Telemetry config.TelemetryConfig
}

// NewDatabase opens the PostgreSQL pool with the zap GORM logger and, when
// enabled, otelgorm tracing. It fails unless the server answers a ping.
func NewDatabase(cfg *config.DatabaseConfig, opts Options) (*Database, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.NewGormLogger(log, logger.MapGormLogLevel(opts.LogLevel),
			logger.WithSlowThreshold(opts.Telemetry.DBSlowQueryThresh)),
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	d := &Database{DB: db}
	if err := d.configurePool(cfg); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := d.Ping(ctx); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("ping database %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	if err := telemetry.RegisterDBTracing(db, telemetry.DBTracingConfig{
		Enabled:         opts.Telemetry.Enabled && opts.Telemetry.DBTraceEnabled,
		LogFullSQL:      opts.Telemetry.DBLogFullSQL,
		SlowQueryThresh: opts.Telemetry.DBSlowQueryThresh,
	}, log); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("register database tracing: %w", err)
	}
	return d, nil
}

// NewDatabaseFromGorm wraps an open connection, e.g. SQLite in tests
func NewDatabaseFromGorm(db *gorm.DB) *Database {
	return &Database{DB: db}
}

func (d *Database) configurePool(cfg *config.DatabaseConfig) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)
	return nil
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// PoolHealth is the state of the pool reported by the health endpoint
type PoolHealth struct {
	Status  string `json:"status"`
	Latency string `json:"latency"`
	Open    int    `json:"open_connections"`
	InUse   int    `json:"in_use"`
	Idle    int    `json:"idle"`
	Waits   int64  `json:"wait_count"`
	Error   string `json:"error,omitempty"`
}

// Health pings the server and snapshots the pool statistics. The returned
// error is the ping failure, if any.
func (d *Database) Health(ctx context.Context) (PoolHealth, error) {
	start := time.Now()
	err := d.Ping(ctx)
	h := PoolHealth{Status: "ok", Latency: time.Since(start).Round(time.Microsecond).String()}
	if err != nil {
		h.Status, h.Error = "error", err.Error()
	}
	if sqlDB, dbErr := d.DB.DB(); dbErr == nil {
		s := sqlDB.Stats()
		h.Open, h.InUse, h.Idle, h.Waits = s.OpenConnections, s.InUse, s.Idle, s.WaitCount
	}
	return h, err
}
