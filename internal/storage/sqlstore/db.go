// Package sqlstore is the persistent store. It runs on a single SQLite file
// shared by every worker process, or on PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"jotihunt/internal/metrics"
	"jotihunt/internal/retry"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func init() {
	sqlx.BindDriver(string(DialectSQLite), sqlx.QUESTION)
}

type Options struct {
	Dialect Dialect
	// Path is the SQLite database file.
	Path string
	// DSN is the PostgreSQL connection string.
	DSN         string
	BusyTimeout time.Duration
	WriteRetry  retry.Policy
}

// DB is the store handle passed to every store and component.
type DB struct {
	x       *sqlx.DB
	dialect Dialect
	path    string
	gate    retry.Policy
	logger  *slog.Logger
}

// Open connects to the store and creates the schema if it is missing.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*DB, error) {
	if opts.Dialect == "" {
		opts.Dialect = DialectSQLite
	}

	var dsn string
	switch opts.Dialect {
	case DialectSQLite:
		if opts.Path == "" {
			return nil, fmt.Errorf("sqlite: database path is required")
		}
		if dir := filepath.Dir(opts.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		dsn = sqliteDSN(opts.Path, opts.BusyTimeout)
	case DialectPostgres:
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres: dsn is required")
		}
		dsn = opts.DSN
	default:
		return nil, fmt.Errorf("unsupported database dialect %q", opts.Dialect)
	}

	x, err := sqlx.Open(string(opts.Dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := x.PingContext(ctx); err != nil {
		x.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{
		x:       x,
		dialect: opts.Dialect,
		path:    opts.Path,
		logger:  logger.With("component", "store"),
	}
	db.gate = db.gatePolicy(opts.WriteRetry)

	if err := db.migrate(ctx); err != nil {
		x.Close()
		return nil, err
	}

	return db, nil
}

// sqliteDSN builds a modernc.org/sqlite DSN. The pragmas are applied to every
// pooled connection; immediate transactions take the write lock at BEGIN so
// contention surfaces as SQLITE_BUSY before any statement runs.
func sqliteDSN(path string, busyTimeout time.Duration) string {
	return fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_txlock=immediate&_time_format=sqlite",
		path, busyTimeout.Milliseconds(),
	)
}

func (d *DB) migrate(ctx context.Context) error {
	schema := sqliteSchema
	if d.dialect == DialectPostgres {
		schema = postgresSchema
	}
	if _, err := d.exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (d *DB) Dialect() Dialect { return d.dialect }

// Path returns the SQLite file path, empty for PostgreSQL.
func (d *DB) Path() string { return d.path }

func (d *DB) Ping(ctx context.Context) error { return d.x.PingContext(ctx) }

func (d *DB) Close() error { return d.x.Close() }

// exec runs a write through the write gate. Inside a transaction the
// statement runs once; the gate retries the transaction as a whole.
func (d *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	query = d.x.Rebind(query)
	if tx := GetTxFromContext(ctx); tx != nil {
		return tx.ExecContext(ctx, query, args...)
	}
	return retry.DoWithResult(ctx, d.gate, func() (sql.Result, error) {
		return d.x.ExecContext(ctx, query, args...)
	})
}

// insertID runs an INSERT ... RETURNING id through the write gate.
func (d *DB) insertID(ctx context.Context, query string, args ...any) (int64, error) {
	query = d.x.Rebind(query)
	run := func() (int64, error) {
		var id int64
		err := sqlx.GetContext(ctx, GetExecutor(ctx, d.x), &id, query, args...)
		return id, err
	}
	if GetTxFromContext(ctx) != nil {
		return run()
	}
	return retry.DoWithResult(ctx, d.gate, run)
}

func (d *DB) get(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, GetExecutor(ctx, d.x), dest, d.x.Rebind(query), args...)
}

func (d *DB) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, GetExecutor(ctx, d.x), dest, d.x.Rebind(query), args...)
}

func (d *DB) gatePolicy(p retry.Policy) retry.Policy {
	if p.MaxAttempts == 0 {
		p = retry.DefaultPolicy()
	}
	p.Retryable = IsBusy
	p.OnRetry = func(attempt int, err error) {
		metrics.WriteGateRetries.Inc()
		d.logger.Warn("store busy, retrying write",
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"delay", p.Delay,
			"error", err,
		)
	}
	return p
}
