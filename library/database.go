package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"library-lending/logger"
)

// Database owns the single process-wide SQLite handle. The connection is
// opened on first use and can be closed and reopened.
type Database struct {
	path string

	mu sync.Mutex
	db *sqlx.DB
}

// NewDatabase prepares a Database for the SQLite file at dbPath. Nothing is
// opened until the first call to Conn.
func NewDatabase(dbPath string) (*Database, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	return &Database{path: dbPath}, nil
}

// Conn returns the shared handle, opening it and applying the schema on
// first use.
func (d *Database) Conn(ctx context.Context) (*sqlx.DB, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db != nil {
		return d.db, nil
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", d.path)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: statements from every caller run one after another.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("Opened database", "path", d.path)
	d.db = db
	return d.db, nil
}

// Close closes the connection if it is open. A later Conn reopens it.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil
	}
	logger.Debug("Closing database connection", "path", d.path)
	err := d.db.Close()
	d.db = nil
	return err
}

// ---------------------------------------------------------------------------
// Schema
// ---------------------------------------------------------------------------

var schemaTables = []string{
	`CREATE TABLE IF NOT EXISTS books (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        title TEXT NOT NULL,
        author TEXT NOT NULL,
        available INTEGER NOT NULL DEFAULT 1,
        cover_path TEXT
    );`,
	`CREATE TABLE IF NOT EXISTS members (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT NOT NULL,
        password TEXT NOT NULL,
        balance REAL NOT NULL DEFAULT 0
    );`,
	`CREATE TABLE IF NOT EXISTS borrowed_books (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        book_id INTEGER NOT NULL REFERENCES books(id),
        member_id INTEGER NOT NULL REFERENCES members(id),
        borrow_date TEXT NOT NULL,
        due_date TEXT NOT NULL,
        return_date TEXT,
        fine_paid REAL NOT NULL DEFAULT 0
    );`,
}

// Additive patches for databases created before these columns existed.
// On an up-to-date schema they fail with "duplicate column" and are skipped.
var schemaPatches = []string{
	`ALTER TABLE books ADD COLUMN cover_path TEXT`,
	`ALTER TABLE borrowed_books ADD COLUMN due_date TEXT`,
	`ALTER TABLE borrowed_books ADD COLUMN fine_paid REAL NOT NULL DEFAULT 0`,
}

func applySchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schemaTables {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	for _, stmt := range schemaPatches {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			logger.Debug("Schema patch skipped", "stmt", stmt, "error", err)
		}
	}
	return nil
}
