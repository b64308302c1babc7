// Package db persists event log entries for audit and replay. The core
// orchestrator keeps the log in memory; this store is the host-side sink a
// run can be exported to, on SQLite or PostgreSQL.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "modernc.org/sqlite"             // SQLite driver
)

// Dialect selects the backing database.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS event_log (
	run_id          TEXT    NOT NULL,
	seq             INTEGER NOT NULL,
	entry_id        TEXT    NOT NULL,
	recorded_at     TIMESTAMP NOT NULL,
	entry_type      TEXT    NOT NULL,
	workflow_status TEXT,
	task_id         TEXT,
	task_status     TEXT,
	agent_id        TEXT,
	agent_status    TEXT,
	description     TEXT,
	metadata        TEXT,
	PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_event_log_task ON event_log (run_id, task_id);
`

// DB wraps a connection plus the dialect-specific SQL differences.
type DB struct {
	conn    *sql.DB
	dialect Dialect
}

// Open opens a store and applies the schema. For SQLite the DSN is a file
// path (parent directories are created) or ":memory:"; for PostgreSQL it is a
// connection string.
func Open(ctx context.Context, dialect Dialect, dsn string) (*DB, error) {
	var driverName string
	switch dialect {
	case DialectSQLite:
		driverName = "sqlite"
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("create db directory: %w", err)
			}
		}
	case DialectPostgres:
		driverName = "pgx"
	default:
		return nil, fmt.Errorf("unknown database dialect %q", dialect)
	}

	conn, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// Serialize writers; modernc's driver returns SQLITE_BUSY otherwise.
		conn.SetMaxOpenConns(1)
	}

	db := &DB{conn: conn, dialect: dialect}
	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Dialect returns the store's dialect.
func (d *DB) Dialect() Dialect {
	return d.dialect
}

func (d *DB) migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := d.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to the dialect's form.
func (d *DB) rebind(query string) string {
	if d.dialect == DialectSQLite {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
