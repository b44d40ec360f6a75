// Package db provides PostgreSQL access for the evaluation service.
//
// This package contains:
//   - DB: Connection pool wrapper
//   - The evaluation run queue (enqueue, claim, lookup, cancel)
//   - RunJob: job tracker, result sink and cancel checker bound to one run
//   - Migrations applied with a goose provider under a session lock
//
// The package uses pgx for connection pooling and plain SQL queries.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/lock"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/lueurxax/fact-evaluator/migrations"
)

// DB wraps a PostgreSQL connection pool.
type DB struct {
	Pool   *pgxpool.Pool
	Logger *zerolog.Logger
}

// PoolOptions configures the database connection pool.
type PoolOptions struct {
	MaxConns          int32
	MinConns          int32
	MaxConnIdleTime   time.Duration
	MaxConnLifetime   time.Duration
	HealthCheckPeriod time.Duration
}

// DefaultPoolOptions returns sensible default pool configuration.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxConns:          defaultMaxConns,
		MinConns:          defaultMinConns,
		MaxConnIdleTime:   defaultMaxConnIdleTime,
		MaxConnLifetime:   defaultMaxConnLifetime,
		HealthCheckPeriod: defaultHealthCheckPeriod,
	}
}

// withDefaults fills zero fields from DefaultPoolOptions.
func (o PoolOptions) withDefaults() PoolOptions {
	d := DefaultPoolOptions()

	if o.MaxConns <= 0 {
		o.MaxConns = d.MaxConns
	}

	if o.MinConns <= 0 {
		o.MinConns = d.MinConns
	}

	if o.MinConns > o.MaxConns {
		o.MinConns = o.MaxConns
	}

	if o.MaxConnIdleTime <= 0 {
		o.MaxConnIdleTime = d.MaxConnIdleTime
	}

	if o.MaxConnLifetime <= 0 {
		o.MaxConnLifetime = d.MaxConnLifetime
	}

	if o.HealthCheckPeriod <= 0 {
		o.HealthCheckPeriod = d.HealthCheckPeriod
	}

	return o
}

// NewWithOptions connects to dsn, retrying until the database answers a
// ping or the retries run out.
func NewWithOptions(ctx context.Context, dsn string, opts PoolOptions, logger *zerolog.Logger) (*DB, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	opts = opts.withDefaults()
	config.MaxConns = opts.MaxConns
	config.MinConns = opts.MinConns
	config.MaxConnIdleTime = opts.MaxConnIdleTime
	config.MaxConnLifetime = opts.MaxConnLifetime
	config.HealthCheckPeriod = opts.HealthCheckPeriod

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	pool, err := connect(ctx, config, logger)
	if err != nil {
		return nil, err
	}

	return &DB{Pool: pool, Logger: logger}, nil
}

func connect(ctx context.Context, config *pgxpool.Config, logger *zerolog.Logger) (*pgxpool.Pool, error) {
	var (
		pool    *pgxpool.Pool
		attempt int
	)

	backoff := retry.WithMaxRetries(maxConnectionRetries-1, retry.NewConstant(ConnectionRetrySleep))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++

		p, err := pgxpool.NewWithConfig(ctx, config)
		if err == nil {
			if err = p.Ping(ctx); err == nil {
				pool = p

				return nil
			}

			p.Close()
		}

		logger.Warn().Err(err).Int("attempt", attempt).Msg("database not ready")

		return retry.RetryableError(err)
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database after %d attempts: %w", attempt, err)
	}

	return pool, nil
}

// Close closes the database connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// Ping checks the pool can reach the database.
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// migrationLockID is the advisory lock held while migrations run, so only
// one instance migrates at a time.
const migrationLockID int64 = 4100

// Migrate applies pending goose migrations.
func (db *DB) Migrate(ctx context.Context) error {
	locker, err := lock.NewPostgresSessionLocker(lock.WithLockID(migrationLockID))
	if err != nil {
		return fmt.Errorf("create migration locker: %w", err)
	}

	sqlDB := stdlib.OpenDB(*db.Pool.Config().ConnConfig)

	defer func() {
		_ = sqlDB.Close()
	}()

	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, migrations.FS, goose.WithSessionLocker(locker))
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	for _, r := range results {
		db.Logger.Info().
			Int64("version", r.Source.Version).
			Str("file", r.Source.Path).
			Dur("took", r.Duration).
			Msg("migration applied")
	}

	return nil
}
