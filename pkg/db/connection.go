package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Connection is the history database handle.
type Connection struct {
	db     *sql.DB
	dbPath string
}

// execer is satisfied by both *Connection and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// dsn enables foreign keys and WAL, waits on a locked database instead of
// failing, and takes the write lock when a transaction begins.
func dsn(dbPath string) string {
	q := url.Values{}
	q.Set("_foreign_keys", "on")
	q.Set("_journal_mode", "WAL")
	q.Set("_busy_timeout", "5000")
	q.Set("_txlock", "immediate")
	return "file:" + dbPath + "?" + q.Encode()
}

// Open opens the history database at dbPath, creating its directory, the
// schema and any run columns added since the file was created.
func Open(dbPath string) (*Connection, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", dbPath, err)
	}

	conn := &Connection{db: sqlDB, dbPath: dbPath}
	for _, step := range []struct {
		name string
		fn   func(*Connection) error
	}{
		{"initialize schema", InitializeSchema},
		{"migrate runs", migrateRuns},
	} {
		if err := step.fn(conn); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to %s: %w", step.name, err)
		}
	}
	return conn, nil
}

// Close closes the database connection.
func (c *Connection) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Path returns the database file path.
func (c *Connection) Path() string { return c.dbPath }

func (c *Connection) Query(query string, args ...any) (*sql.Rows, error) {
	return c.db.Query(query, args...)
}

func (c *Connection) QueryRow(query string, args ...any) *sql.Row {
	return c.db.QueryRow(query, args...)
}

func (c *Connection) Exec(query string, args ...any) (sql.Result, error) {
	return c.db.Exec(query, args...)
}

// Transaction runs fn inside a transaction. The transaction is rolled back
// when fn returns an error or panics, and committed otherwise.
func (c *Connection) Transaction(fn func(*sql.Tx) error) (err error) {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && err != nil {
			err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// migrateRuns adds reconciliation_runs columns missing from older files.
func migrateRuns(c *Connection) error {
	rows, err := c.Query(`PRAGMA table_info(reconciliation_runs)`)
	if err != nil {
		return err
	}
	have := map[string]bool{}
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, typ        string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			_ = rows.Close()
			return err
		}
		have[name] = true
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	if err := rows.Close(); err != nil {
		return err
	}

	for _, col := range []string{"store_attempts", "store_retries"} {
		if have[col] {
			continue
		}
		if _, err := c.Exec(`ALTER TABLE reconciliation_runs ADD COLUMN ` + col + ` INTEGER NOT NULL DEFAULT 0`); err != nil {
			return fmt.Errorf("add column %s: %w", col, err)
		}
	}
	return nil
}
