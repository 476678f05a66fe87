// Package db provides the SQLite-backed local store for gtd.
//
// The store keeps users, projects, sections, tasks and the shared label
// table. It is the only shared mutable resource of the application: the
// HTTP handlers, the single-entity sync service and the reconciliation
// engine all go through it.
//
// The default driver is the embedded WASM build of SQLite
// (ncruces/go-sqlite3) opened in WAL mode. Binaries built with the
// "libsql" tag can instead point the store at a libSQL/Turso database.
//
// Every lookup that is scoped to a user returns an error wrapping
// apperr.ErrNotFound when the row is missing or owned by someone else.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/gtdsync/gtd/internal/apperr"
)

const (
	// DriverSQLite is the embedded SQLite driver registered by ncruces/go-sqlite3.
	DriverSQLite = "sqlite3"
	// DriverLibSQL is the libSQL driver, available in binaries built with -tags libsql.
	DriverLibSQL = "libsql"
)

// DB wraps the database connection with gtd-specific queries.
type DB struct {
	conn   *sql.DB
	path   string
	driver string
}

// Options configures how the store is opened.
type Options struct {
	// Driver selects the database/sql driver (default DriverSQLite).
	Driver string
	// Path is a local file path, or a libsql:// URL for DriverLibSQL.
	Path string
	// AuthToken is appended to remote libSQL URLs.
	AuthToken string
}

// Open creates a new embedded SQLite connection at the specified path.
//
// The caller MUST call Close() when done to ensure the WAL is checkpointed.
//
// Example:
//
//	store, err := db.Open("gtd.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string) (*DB, error) {
	return OpenWithOptions(Options{Driver: DriverSQLite, Path: path})
}

// OpenWithOptions opens the store with an explicit driver.
func OpenWithOptions(opts Options) (*DB, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	if !slices.Contains(sql.Drivers(), driver) {
		return nil, fmt.Errorf("database driver %q is not available in this build", driver)
	}
	if opts.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	remote := strings.Contains(opts.Path, "://")
	if !remote {
		// Ensure parent directory exists
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open(driver, dataSourceName(driver, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn:   conn,
		path:   opts.Path,
		driver: driver,
	}

	if remote {
		return db, nil
	}

	// Enable WAL mode for concurrent reads
	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// dataSourceName builds the DSN. Per-connection pragmas go into the DSN for
// the sqlite3 driver so that every pooled connection enforces foreign keys.
func dataSourceName(driver string, opts Options) string {
	if strings.Contains(opts.Path, "://") {
		if opts.AuthToken == "" {
			return opts.Path
		}
		sep := "?"
		if strings.Contains(opts.Path, "?") {
			sep = "&"
		}
		return opts.Path + sep + "authToken=" + opts.AuthToken
	}
	if driver == DriverSQLite {
		return "file:" + opts.Path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}
	return "file:" + opts.Path
}

// Path returns the location the store was opened from.
func (db *DB) Path() string {
	return db.path
}

// Driver returns the database/sql driver name in use.
func (db *DB) Driver() string {
	return db.driver
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
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

// InitSchema creates the database schema if it doesn't exist.
// This is idempotent - safe to call multiple times.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		api_key TEXT NOT NULL UNIQUE,
		todoist_token TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		todoist_id TEXT,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		color TEXT NOT NULL DEFAULT '',
		is_favorite INTEGER NOT NULL DEFAULT 0,
		is_inbox INTEGER NOT NULL DEFAULT 0,
		view_style TEXT NOT NULL DEFAULT '',
		position INTEGER NOT NULL DEFAULT 0,
		parent_id TEXT,
		synced_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY (parent_id) REFERENCES projects(id) ON DELETE SET NULL
	);

	CREATE TABLE IF NOT EXISTS sections (
		id TEXT PRIMARY KEY,
		todoist_id TEXT,
		project_id TEXT NOT NULL,
		name TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		synced_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		todoist_id TEXT,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		completed INTEGER NOT NULL DEFAULT 0,
		priority INTEGER NOT NULL DEFAULT 4,
		due_date TEXT,
		synced_at TEXT,
		project_id TEXT,
		section_id TEXT,
		position INTEGER NOT NULL DEFAULT 0,
		type TEXT NOT NULL DEFAULT 'inbox',
		waiting_for TEXT NOT NULL DEFAULT '',
		energy TEXT NOT NULL DEFAULT '',
		time_estimate INTEGER,
		context TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE SET NULL,
		FOREIGN KEY (section_id) REFERENCES sections(id) ON DELETE SET NULL
	);

	-- Labels are global and shared across users
	CREATE TABLE IF NOT EXISTS labels (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS task_labels (
		task_id TEXT NOT NULL,
		label_id INTEGER NOT NULL,
		PRIMARY KEY (task_id, label_id),
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE,
		FOREIGN KEY (label_id) REFERENCES labels(id) ON DELETE CASCADE
	);

	-- One local row per remote id per owner
	CREATE UNIQUE INDEX IF NOT EXISTS idx_projects_todoist ON projects(user_id, todoist_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_sections_todoist ON sections(project_id, todoist_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_todoist ON tasks(user_id, todoist_id);

	CREATE INDEX IF NOT EXISTS idx_projects_user ON projects(user_id);
	CREATE INDEX IF NOT EXISTS idx_sections_project ON sections(project_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_type ON tasks(user_id, type, completed);
	CREATE INDEX IF NOT EXISTS idx_task_labels_label ON task_labels(label_id);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Stats holds row counts for the status command.
type Stats struct {
	Users       int `json:"users"`
	Projects    int `json:"projects"`
	Sections    int `json:"sections"`
	Tasks       int `json:"tasks"`
	LinkedTasks int `json:"linked_tasks"`
	Labels      int `json:"labels"`
}

// Stats returns row counts across the store.
func (db *DB) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM users", &s.Users},
		{"SELECT COUNT(*) FROM projects", &s.Projects},
		{"SELECT COUNT(*) FROM sections", &s.Sections},
		{"SELECT COUNT(*) FROM tasks", &s.Tasks},
		{"SELECT COUNT(*) FROM tasks WHERE todoist_id IS NOT NULL", &s.LinkedTasks},
		{"SELECT COUNT(*) FROM labels", &s.Labels},
	}
	for _, c := range counts {
		if err := db.conn.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to get stats: %w", err)
		}
	}
	return &s, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// notFound converts sql.ErrNoRows into apperr.ErrNotFound.
func notFound(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", apperr.ErrNotFound, kind, id)
	}
	return fmt.Errorf("failed to get %s %s: %w", kind, id, err)
}

// requireAffected returns ErrNotFound when an UPDATE or DELETE matched no row.
func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", apperr.ErrNotFound, kind, id)
	}
	return nil
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func strToNull(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullToStr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
