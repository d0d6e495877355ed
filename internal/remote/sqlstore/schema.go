package sqlstore

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS folders (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	name TEXT NOT NULL,
	color TEXT NOT NULL DEFAULT 'gray',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS notes (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	title TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	folder_id TEXT REFERENCES folders(id) ON DELETE SET NULL,
	tags TEXT NOT NULL DEFAULT '[]',  -- JSON array
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS prompts (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS hidden_prompts (
	owner_id TEXT NOT NULL,
	prompt_id TEXT NOT NULL,
	created_at TEXT NOT NULL,
	PRIMARY KEY (owner_id, prompt_id)
);

CREATE TABLE IF NOT EXISTS user_settings (
	owner_id TEXT PRIMARY KEY,
	ai_model TEXT NOT NULL,
	default_folder_id TEXT,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notes_owner ON notes(owner_id, updated_at);
CREATE INDEX IF NOT EXISTS idx_notes_folder ON notes(owner_id, folder_id);
CREATE INDEX IF NOT EXISTS idx_folders_owner ON folders(owner_id);
CREATE INDEX IF NOT EXISTS idx_prompts_owner ON prompts(owner_id);
`

// InitSchema creates the schema on a SQLite or libSQL database. It is
// idempotent.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	if db.dialect != DialectSQLite {
		return fmt.Errorf("InitSchema supports sqlite and libsql only; use Migrate for postgres")
	}
	if _, err := db.conn.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Migrate brings the schema up to date. Postgres databases run the embedded
// migrations; SQLite and libSQL databases use InitSchema.
func (db *DB) Migrate(ctx context.Context) error {
	if db.dialect == DialectSQLite {
		return db.InitSchemaContext(ctx)
	}

	src, err := iofs.New(postgresMigrations, "migrations/postgres")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := pgxmigrate.WithInstance(db.conn, &pgxmigrate.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
