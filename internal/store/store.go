// Package store opens the life-event database and owns its DDL.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Options configures the connection pool.
type Options struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DB wraps a sql.DB with the dialect it speaks.
type DB struct {
	conn    *sql.DB
	dialect Dialect
}

// Open opens the database and verifies connectivity. It does not apply the
// schema; see Migrate.
func Open(ctx context.Context, opts Options) (*DB, error) {
	dialect, err := DialectFor(opts.Driver)
	if err != nil {
		return nil, err
	}

	dsn := opts.DSN
	if opts.Driver == DriverSQLite && !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	}

	conn, err := sql.Open(opts.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &DB{conn: conn, dialect: dialect}, nil
}

// Migrate applies the dialect's DDL. It is idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	ddl := sqliteSchemaSQL
	if db.dialect.Name() == DriverPostgres {
		ddl = postgresSchemaSQL
	}
	if _, err := db.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}
	return nil
}

// SQL returns the underlying pool.
func (db *DB) SQL() *sql.DB { return db.conn }

// Dialect returns the SQL dialect of the connection.
func (db *DB) Dialect() Dialect { return db.dialect }

// Close closes the underlying pool.
func (db *DB) Close() error {
	return db.conn.Close()
}
