// Package sqlite provides the SQLite connection factory and embedded schema migrations.
// Uses modernc.org/sqlite, a pure-Go driver (no CGO required).
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	// Register the modernc sqlite driver under the name "sqlite"
	_ "modernc.org/sqlite"
)

// NewDB opens (or creates) a SQLite database at path and configures it for a
// long-running chat server:
//   - WAL journal mode (history reads proceed while a turn is being completed)
//   - Foreign key enforcement (SQLite disables FKs by default)
//   - 5-second busy timeout (prevents SQLITE_BUSY when several rooms write at once)
//   - Synchronous=NORMAL
//
// Use ":memory:" as path for throwaway databases. Note that every pooled
// connection gets its own in-memory database, so tests that share state across
// queries should use a temp file instead.
// Returns an error if the parent directory does not exist (will not create it).
func NewDB(path string) (*sql.DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return nil, fmt.Errorf("sqlite.NewDB: parent directory %q does not exist", dir)
		}
	}

	dsn := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(ON)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=temp_store(MEMORY)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite.NewDB: open %q: %w", path, err)
	}

	// WAL allows concurrent readers but serializes writers; SQLite itself
	// queues the writers behind busy_timeout.
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.NewDB: ping %q: %w", path, err)
	}

	return db, nil
}
