package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// migrations bundles the schema into the binary; applied versions are
// tracked in schema_migrations so re-running is a no-op.
//
//go:embed migrations/*.up.sql
var migrations embed.FS

// migration is one parsed *.up.sql file ready to apply.
type migration struct {
	version int
	name    string // e.g. "001_init_schema.up.sql"
	sql     string
}

// MigrateUp applies all pending migrations in version order and returns the
// names of the ones it applied. Each migration runs in its own transaction.
func MigrateUp(ctx context.Context, db *sql.DB) ([]string, error) {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return nil, fmt.Errorf("migrate: ensure migrations table: %w", err)
	}

	all, err := loadMigrations()
	if err != nil {
		return nil, fmt.Errorf("migrate: load files: %w", err)
	}

	done, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("migrate: read applied versions: %w", err)
	}

	var applied []string
	for _, m := range all {
		if done[m.version] {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return applied, fmt.Errorf("migrate: apply %s: %w", m.name, err)
		}
		applied = append(applied, m.name)
	}
	return applied, nil
}

// MigrationVersion returns the highest migration version currently applied,
// or 0 on a fresh database.
func MigrationVersion(ctx context.Context, db *sql.DB) (int, error) {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return 0, fmt.Errorf("migrate: ensure migrations table: %w", err)
	}

	var version int
	row := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&version); err != nil {
		return 0, fmt.Errorf("migrate: query version: %w", err)
	}
	return version, nil
}

// ─── internal ────────────────────────────────────────────────────────────────

func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER NOT NULL PRIMARY KEY,
			name        TEXT    NOT NULL,
			applied_at  TEXT    NOT NULL DEFAULT (datetime('now'))
		)
	`)
	return err
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out[v] = true
	}
	return out, rows.Err()
}

// loadMigrations reads the embedded files, skipping any without a numeric
// prefix, sorted by version.
func loadMigrations() ([]migration, error) {
	entries, err := fs.Glob(migrations, "migrations/*.up.sql")
	if err != nil {
		return nil, err
	}

	out := make([]migration, 0, len(entries))
	for _, p := range entries {
		name := path.Base(p)
		version := versionFromFilename(name)
		if version == 0 {
			continue
		}
		content, readErr := migrations.ReadFile(p)
		if readErr != nil {
			return nil, fmt.Errorf("read %s: %w", p, readErr)
		}
		out = append(out, migration{version: version, name: name, sql: strings.TrimSpace(string(content))})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// versionFromFilename extracts the numeric version prefix from a migration filename.
// "001_init_schema.up.sql" → 1
// "002_turn_sender.up.sql" → 2
func versionFromFilename(name string) int {
	var version int
	if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
		return 0
	}
	return version
}

func apply(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after Commit
	}()

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return fmt.Errorf("exec SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
		m.version, m.name,
	); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}
