// Package sqlstore implements the remote store adapters on database/sql.
//
// Three backends are supported:
//
//   - sqlite: embedded SQLite (ncruces/go-sqlite3, no cgo) with WAL, used
//     for local development and tests
//   - libsql: a Turso/libSQL database reached over libsql:// or https://
//   - postgres: PostgreSQL through pgx ("pgx" driver) or lib/pq
//     ("postgres" driver), with schema managed by golang-migrate
//
// Queries are written with "?" placeholders and rebound to "$n" for
// Postgres. Driver errors are returned as *remote.Error carrying the native
// SQLSTATE or SQLite result code.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Dialect is the SQL flavor of the connected database.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

// Supported driver names as accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverLibSQL   = "libsql"
	DriverPgx      = "pgx"
	DriverPostgres = "postgres"
)

// DB wraps the database connection shared by all entity stores.
type DB struct {
	conn    *sql.DB
	dialect Dialect
	driver  string
	dsn     string
}

// Open connects to the database described by driver and dsn.
//
// For the sqlite driver dsn is a file path; the parent directory is created
// and the database is opened in WAL mode with foreign keys enabled. The
// caller MUST call Close() when done.
//
// Example:
//
//	db, err := sqlstore.Open(ctx, sqlstore.DriverSQLite, ".notesync/remote.db")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	switch driver {
	case DriverSQLite, "":
		return openSQLite(ctx, dsn)
	case DriverLibSQL:
		if !driverRegistered("libsql") {
			return nil, fmt.Errorf("libsql driver not available (build with cgo enabled)")
		}
		return openConn(ctx, "libsql", DriverLibSQL, dsn, DialectSQLite)
	case DriverPgx:
		return openConn(ctx, "pgx", DriverPgx, dsn, DialectPostgres)
	case DriverPostgres:
		return openConn(ctx, "postgres", DriverPostgres, dsn, DialectPostgres)
	default:
		return nil, fmt.Errorf("unsupported driver %q (want sqlite, libsql, pgx or postgres)", driver)
	}
}

func openConn(ctx context.Context, sqlDriver, driver, dsn string, dialect Dialect) (*DB, error) {
	conn, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return &DB{conn: conn, dialect: dialect, driver: driver, dsn: dsn}, nil
}

func openSQLite(ctx context.Context, path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := openConn(ctx, "sqlite3", DriverSQLite, "file:"+path, DialectSQLite)
	if err != nil {
		return nil, err
	}

	pragmas := []struct{ stmt, what string }{
		{"PRAGMA journal_mode=WAL", "enable WAL mode"},
		{"PRAGMA busy_timeout=5000", "set busy timeout"},
		{"PRAGMA foreign_keys=ON", "enable foreign keys"},
	}
	for _, p := range pragmas {
		if _, err := db.conn.ExecContext(ctx, p.stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to %s: %w", p.what, err)
		}
	}
	return db, nil
}

func driverRegistered(name string) bool {
	for _, d := range sql.Drivers() {
		if d == name {
			return true
		}
	}
	return false
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Dialect returns the SQL flavor of the connection.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Close closes the database connection. SQLite databases are checkpointed
// first so the WAL is folded into the main file.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if db.driver == DriverSQLite {
		if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
		}
	}
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	db.conn = nil
	return nil
}

// Notes returns the note adapter.
func (db *DB) Notes() *NoteStore { return &NoteStore{db: db} }

// Folders returns the folder adapter.
func (db *DB) Folders() *FolderStore { return &FolderStore{db: db} }

// Prompts returns the prompt adapter.
func (db *DB) Prompts() *PromptStore { return &PromptStore{db: db} }

// HiddenPrompts returns the hidden-prompt marker adapter.
func (db *DB) HiddenPrompts() *HiddenPromptStore { return &HiddenPromptStore{db: db} }

// Settings returns the user settings adapter.
func (db *DB) Settings() *SettingsStore { return &SettingsStore{db: db} }

// rebind rewrites "?" placeholders to "$1", "$2", ... for Postgres.
func (db *DB) rebind(query string) string {
	if db.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// timeArg encodes t for the connected dialect. SQLite stores timestamps as
// RFC 3339 text.
func (db *DB) timeArg(t time.Time) any {
	if db.dialect == DialectSQLite {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return t.UTC()
}

func (db *DB) exec(ctx context.Context, q sqlExecer, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, db.rebind(query), args...)
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
