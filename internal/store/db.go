package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const currentVersion = 1

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps a SQLite database connection holding the project catalog, the
// credit ledger and the default embedding index.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) a SQLite database at the given path and runs migrations.
// Use ":memory:" for an in-memory database (useful for testing).
func Open(path string) (*DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	} else {
		dsn = ":memory:?_pragma=foreign_keys(ON)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set connection pool to 1 for SQLite
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &DB{db: sqlDB, now: time.Now}
	if err := store.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Conn returns the underlying *sql.DB for advanced use cases.
func (d *DB) Conn() *sql.DB {
	return d.db
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func (d *DB) timestamp() string {
	return formatTime(d.now())
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}

func (d *DB) migrate() error {
	var version int
	err := d.db.QueryRow("PRAGMA user_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("reading user_version: %w", err)
	}

	if version >= currentVersion {
		return nil
	}

	if version < 1 {
		if err := d.migrateV1(); err != nil {
			return err
		}
	}

	_, err = d.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentVersion))
	if err != nil {
		return fmt.Errorf("setting user_version: %w", err)
	}

	return nil
}

func (d *DB) migrateV1() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			credits INTEGER NOT NULL DEFAULT 0 CHECK (credits >= 0),
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS repositories (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			name TEXT NOT NULL,
			owner TEXT NOT NULL,
			repo TEXT NOT NULL,
			url TEXT NOT NULL,
			access_token TEXT,
			created_at TEXT NOT NULL,
			archived_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_repositories_user ON repositories(user_id, archived_at)`,
		`CREATE TABLE IF NOT EXISTS code_embeddings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			repository_id TEXT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
			file_name TEXT NOT NULL,
			source_code TEXT NOT NULL,
			summary TEXT NOT NULL,
			embedding BLOB,
			degraded INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			UNIQUE(repository_id, file_name)
		)`,
		`CREATE TABLE IF NOT EXISTS commits (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			repository_id TEXT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
			hash TEXT NOT NULL,
			message TEXT NOT NULL,
			author_name TEXT,
			author_avatar TEXT,
			committed_at TEXT NOT NULL,
			summary TEXT NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE(repository_id, hash)
		)`,
		`CREATE TABLE IF NOT EXISTS questions (
			id TEXT PRIMARY KEY,
			repository_id TEXT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			file_references TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_questions_repo ON questions(repository_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS ingest_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			repository_id TEXT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
			quote INTEGER NOT NULL,
			indexed INTEGER NOT NULL DEFAULT 0,
			degraded INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			started_at TEXT NOT NULL,
			finished_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ingest_runs_repo ON ingest_runs(repository_id, id)`,
	}

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration statement: %w", err)
		}
	}

	return tx.Commit()
}
